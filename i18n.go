package main

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Languages is the configured language set of a catalog. Every i18n map
// written to the catalog carries exactly these keys.
type Languages struct {
	Codes    []string
	Fallback string
}

func newLanguages(codes []string, fallback string) (Languages, error) {
	var l Languages
	seen := make(map[string]bool)
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		tag, err := language.Parse(c)
		if err != nil {
			return Languages{}, fmt.Errorf("invalid language %q: %w", c, err)
		}
		code := tag.String()
		if seen[code] {
			continue
		}
		seen[code] = true
		l.Codes = append(l.Codes, code)
	}
	if len(l.Codes) == 0 {
		return Languages{}, fmt.Errorf("no languages configured")
	}

	l.Fallback = l.Codes[0]
	if fallback != "" {
		tag, err := language.Parse(fallback)
		if err != nil {
			return Languages{}, fmt.Errorf("invalid fallback language %q: %w", fallback, err)
		}
		if !seen[tag.String()] {
			return Languages{}, fmt.Errorf("fallback language %q is not one of %v", fallback, l.Codes)
		}
		l.Fallback = tag.String()
	}
	return l, nil
}

// authored reports whether an operator (or an earlier run) already put text
// into the map.
func authored(m map[string]string) bool {
	for _, v := range m {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// normalize returns a map holding exactly the configured keys. Present values
// are kept verbatim, missing ones come from the map's own fallback language,
// then from its first non-empty value, then from def. translate is applied to
// borrowed values when non-nil.
func (l Languages) normalize(m map[string]string, def string, translate func(text, lang string) string) map[string]string {
	srcLang, src := l.source(m)

	out := make(map[string]string, len(l.Codes))
	for _, code := range l.Codes {
		if v := m[code]; strings.TrimSpace(v) != "" {
			out[code] = v
			continue
		}
		switch {
		case src == "":
			out[code] = def
		case translate != nil && srcLang != code:
			out[code] = translate(src, code)
		default:
			out[code] = src
		}
	}
	return out
}

func (l Languages) source(m map[string]string) (string, string) {
	if v := m[l.Fallback]; strings.TrimSpace(v) != "" {
		return l.Fallback, v
	}
	for _, code := range l.Codes {
		if v := m[code]; strings.TrimSpace(v) != "" {
			return code, v
		}
	}

	extra := make([]string, 0, len(m))
	for k := range m {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		if v := m[k]; strings.TrimSpace(v) != "" {
			return k, v
		}
	}
	return "", ""
}

// uniform builds a map with the same text under every configured key.
func (l Languages) uniform(text string) map[string]string {
	out := make(map[string]string, len(l.Codes))
	for _, code := range l.Codes {
		out[code] = text
	}
	return out
}
