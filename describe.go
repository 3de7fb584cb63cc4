package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// --- Structs ---

type textTemplate struct {
	types      map[TrailType]string
	difficulty map[Difficulty]string
	audience   map[Difficulty]string
	withStats  string // type, km, ascent, descent, difficulty
	noStats    string // type, difficulty
}

// textTemplates holds the languages we can write natively. Anything else is
// rendered in English and sent through the translator.
var textTemplates = map[string]textTemplate{
	"en": {
		types:      map[TrailType]string{TypeLeisure: "Leisure", TypeCrossCountry: "Cross-country", TypeEnduro: "Enduro", TypeDownhill: "Downhill"},
		difficulty: map[Difficulty]string{DifficultyGreen: "easy (green)", DifficultyBlue: "intermediate (blue)", DifficultyRed: "difficult (red)", DifficultyBlack: "expert (black)"},
		audience:   map[Difficulty]string{DifficultyGreen: "Beginners and families", DifficultyBlue: "Intermediate riders", DifficultyRed: "Experienced riders", DifficultyBlack: "Expert riders only"},
		withStats:  "%s trail. Length %.1f km, ascent %d m, descent %d m. Difficulty: %s.",
		noStats:    "%s trail. Difficulty: %s.",
	},
	"ru": {
		types:      map[TrailType]string{TypeLeisure: "Прогулочная", TypeCrossCountry: "Кросс-кантри", TypeEnduro: "Эндуро", TypeDownhill: "Даунхилл"},
		difficulty: map[Difficulty]string{DifficultyGreen: "лёгкая (зелёная)", DifficultyBlue: "средняя (синяя)", DifficultyRed: "сложная (красная)", DifficultyBlack: "экспертная (чёрная)"},
		audience:   map[Difficulty]string{DifficultyGreen: "Новичкам и семьям", DifficultyBlue: "Райдерам среднего уровня", DifficultyRed: "Опытным райдерам", DifficultyBlack: "Только для экспертов"},
		withStats:  "%s трасса. Длина %.1f км, набор %d м, сброс %d м. Сложность: %s.",
		noStats:    "%s трасса. Сложность: %s.",
	},
	"uk": {
		types:      map[TrailType]string{TypeLeisure: "Прогулянкова", TypeCrossCountry: "Крос-кантрі", TypeEnduro: "Ендуро", TypeDownhill: "Даунгіл"},
		difficulty: map[Difficulty]string{DifficultyGreen: "легка (зелена)", DifficultyBlue: "середня (синя)", DifficultyRed: "складна (червона)", DifficultyBlack: "експертна (чорна)"},
		audience:   map[Difficulty]string{DifficultyGreen: "Новачкам і сім'ям", DifficultyBlue: "Райдерам середнього рівня", DifficultyRed: "Досвідченим райдерам", DifficultyBlack: "Лише для експертів"},
		withStats:  "%s траса. Довжина %.1f км, набір %d м, скидання %d м. Складність: %s.",
		noStats:    "%s траса. Складність: %s.",
	},
	"ro": {
		types:      map[TrailType]string{TypeLeisure: "de agrement", TypeCrossCountry: "cross-country", TypeEnduro: "enduro", TypeDownhill: "downhill"},
		difficulty: map[Difficulty]string{DifficultyGreen: "ușor (verde)", DifficultyBlue: "mediu (albastru)", DifficultyRed: "dificil (roșu)", DifficultyBlack: "expert (negru)"},
		audience:   map[Difficulty]string{DifficultyGreen: "Începători și familii", DifficultyBlue: "Bicicliști de nivel mediu", DifficultyRed: "Bicicliști experimentați", DifficultyBlack: "Doar pentru experți"},
		withStats:  "Traseu %s. Lungime %.1f km, urcare %d m, coborâre %d m. Dificultate: %s.",
		noStats:    "Traseu %s. Dificultate: %s.",
	},
}

type textGenerator struct {
	langs     Languages
	translate func(text, lang string) string
}

// --- Generation ---

func (g textGenerator) describe(c Classification, stats *TrailStats) map[string]string {
	return g.perLanguage(func(lang string, t textTemplate) string {
		p := message.NewPrinter(language.Make(lang))
		if stats == nil {
			return p.Sprintf(t.noStats, t.types[c.Type], t.difficulty[c.Difficulty])
		}
		return p.Sprintf(t.withStats, t.types[c.Type], float64(stats.LengthM)/1000, stats.AscentM, stats.DescentM, t.difficulty[c.Difficulty])
	})
}

func (g textGenerator) suitable(c Classification) map[string]string {
	return g.perLanguage(func(_ string, t textTemplate) string {
		s := t.audience[c.Difficulty]
		if len(c.Styles) > 0 {
			s += " · " + strings.Join(c.Styles, ", ")
		}
		return s
	})
}

func (g textGenerator) perLanguage(render func(lang string, t textTemplate) string) map[string]string {
	out := make(map[string]string, len(g.langs.Codes))
	var english string
	for _, code := range g.langs.Codes {
		base, _ := language.Make(code).Base()
		if t, ok := textTemplates[base.String()]; ok {
			out[code] = render(code, t)
			continue
		}
		if english == "" {
			english = render("en", textTemplates["en"])
		}
		if g.translate != nil {
			out[code] = g.translate(english, code)
		} else {
			out[code] = english
		}
	}
	return out
}

// displayName turns a file based id like "scate_park" into "Scate Park".
func displayName(id string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(id))
	if len(words) == 0 {
		return id
	}
	return cases.Title(language.Und).String(strings.Join(words, " "))
}
