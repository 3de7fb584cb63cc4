package main

import (
	"crypto/md5"
	"encoding/binary"
	"strconv"
)

type Difficulty string

const (
	DifficultyGreen Difficulty = "green"
	DifficultyBlue  Difficulty = "blue"
	DifficultyRed   Difficulty = "red"
	DifficultyBlack Difficulty = "black"
)

var difficulties = []Difficulty{DifficultyGreen, DifficultyBlue, DifficultyRed, DifficultyBlack}

func (d Difficulty) Valid() bool {
	for _, v := range difficulties {
		if d == v {
			return true
		}
	}
	return false
}

type TrailType string

const (
	TypeLeisure      TrailType = "leisure"
	TypeCrossCountry TrailType = "xc"
	TypeEnduro       TrailType = "enduro"
	TypeDownhill     TrailType = "downhill"
)

const (
	StyleMTB = "MTB"
	StyleDH  = "DH"
)

// scaleTagKeys are looked up in order in the extension tags of a track log.
var scaleTagKeys = []string{"mtb:scale", "mtb_scale", "scale"}

// --- Structs ---

type ClassifyInput struct {
	ID         string
	Prior      Difficulty
	PriorStyle []string
	Stats      *TrailStats
	Tags       map[string]string
}

type Classification struct {
	Difficulty Difficulty
	Styles     []string
	Type       TrailType

	// DifficultyRule and TypeRule name the strategy that produced the value.
	DifficultyRule string
	TypeRule       string
}

type difficultyStrategy struct {
	name  string
	apply func(in ClassifyInput) (Difficulty, bool)
}

type typeStrategy struct {
	name  string
	apply func(in ClassifyInput) (TrailType, bool)
}

// --- Strategies ---

var difficultyStrategies = []difficultyStrategy{
	{name: "manual", apply: func(in ClassifyInput) (Difficulty, bool) {
		return in.Prior, in.Prior.Valid()
	}},
	{name: "gradient", apply: func(in ClassifyInput) (Difficulty, bool) {
		if !hasElevation(in.Stats) {
			return "", false
		}
		return difficultyForGradient(in.Stats.AvgGradientPct), true
	}},
	{name: "stable-hash", apply: func(in ClassifyInput) (Difficulty, bool) {
		return stableRandomDifficulty(in.ID), true
	}},
}

var typeStrategies = []typeStrategy{
	{name: "scale-tag", apply: func(in ClassifyInput) (TrailType, bool) {
		scale, ok := scaleTag(in.Tags)
		if !ok {
			return "", false
		}
		return typeForScale(scale), true
	}},
	{name: "downhill-profile", apply: func(in ClassifyInput) (TrailType, bool) {
		if !hasElevation(in.Stats) || !downhillDominant(in.Stats) {
			return "", false
		}
		return TypeDownhill, true
	}},
	{name: "gradient", apply: func(in ClassifyInput) (TrailType, bool) {
		if !hasElevation(in.Stats) {
			return "", false
		}
		switch g := in.Stats.AvgGradientPct; {
		case g >= 10:
			return TypeEnduro, true
		case g >= 3 || in.Stats.AscentM >= 300:
			return TypeCrossCountry, true
		default:
			return TypeLeisure, true
		}
	}},
	{name: "default", apply: func(in ClassifyInput) (TrailType, bool) {
		return TypeCrossCountry, true
	}},
}

// --- Classification ---

func classify(in ClassifyInput) Classification {
	var c Classification
	for _, s := range difficultyStrategies {
		if d, ok := s.apply(in); ok {
			c.Difficulty, c.DifficultyRule = d, s.name
			break
		}
	}
	for _, s := range typeStrategies {
		if t, ok := s.apply(in); ok {
			c.Type, c.TypeRule = t, s.name
			break
		}
	}
	// hard trails never read as the easy category
	if c.Type == TypeLeisure && (c.Difficulty == DifficultyRed || c.Difficulty == DifficultyBlack) {
		c.Type = TypeCrossCountry
	}
	c.Styles = classifyStyles(in.PriorStyle, in.Stats)
	return c
}

func classifyStyles(prior []string, stats *TrailStats) []string {
	if len(prior) > 0 {
		return prior
	}
	if hasElevation(stats) && downhillDominant(stats) {
		return []string{StyleDH}
	}
	return []string{StyleMTB}
}

func difficultyForGradient(g float64) Difficulty {
	switch {
	case g < 5:
		return DifficultyGreen
	case g < 10:
		return DifficultyBlue
	case g < 15:
		return DifficultyRed
	default:
		return DifficultyBlack
	}
}

// stableRandomDifficulty spreads ids over the difficulty list without any
// process randomness: the same id always lands on the same bucket.
func stableRandomDifficulty(id string) Difficulty {
	sum := md5.Sum([]byte(id))
	n := binary.BigEndian.Uint64(sum[8:])
	return difficulties[n%uint64(len(difficulties))]
}

func typeForScale(scale float64) TrailType {
	switch {
	case scale < 1:
		return TypeLeisure
	case scale < 2:
		return TypeCrossCountry
	case scale < 4:
		return TypeEnduro
	default:
		return TypeDownhill
	}
}

func scaleTag(tags map[string]string) (float64, bool) {
	for _, k := range scaleTagKeys {
		v, ok := tags[k]
		if !ok {
			continue
		}
		// OSM values like "2+" or "3-" keep their leading digits
		if f, err := strconv.ParseFloat(trimScaleSuffix(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func trimScaleSuffix(v string) string {
	for len(v) > 0 && (v[len(v)-1] == '+' || v[len(v)-1] == '-') {
		v = v[:len(v)-1]
	}
	return v
}

func downhillDominant(s *TrailStats) bool {
	return s.DescentM > 2*s.AscentM && s.DescentM > 50
}

func hasElevation(s *TrailStats) bool {
	return s != nil && s.HasElevation
}
