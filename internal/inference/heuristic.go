package inference

import (
	"strings"
)

type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{LevelNone: 0, LevelLow: 1, LevelModerate: 2, LevelHigh: 3, LevelCritical: 4}

// Rank orders levels from none (0) to critical (4).
func (l Level) Rank() int {
	return levelRank[l]
}

const (
	FallArmywormType = "Fall Armyworm (suspected)"
	UnknownPestType  = "Unknown pest"

	pestScoreThreshold = 0.3
)

var pestKeywords = []string{
	"caterpillar", "worm", "larva", "insect", "beetle", "moth", "butterfly",
	"grasshopper", "locust", "aphid", "mite", "spider", "ant", "weevil",
	"bug", "pest", "maggot", "grub", "cricket", "fly", "wasp", "bee",
}

var armywormKeywords = []string{"caterpillar", "larva", "worm"}

type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analysis is the pest verdict derived from a label distribution.
type Analysis struct {
	IsPest     bool
	PestTypes  []string
	Confidence float64
}

// AnalyzeLabels applies the keyword heuristic to classifier output.
//
// A label is a pest type when it contains any pest keyword; the best score
// among those labels is the confidence basis. Caterpillar, larva and worm
// labels also add the Fall Armyworm sentinel. Without any keyword hit the
// top score alone decides: above 0.3 the image is reported as an unknown pest.
func AnalyzeLabels(labels []Label) Analysis {
	pestTypes := []string{}
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			pestTypes = append(pestTypes, t)
		}
	}

	var maxMatched, maxOverall float64
	matched := false

	for _, l := range labels {
		lower := strings.ToLower(l.Label)
		if l.Score > maxOverall {
			maxOverall = l.Score
		}

		for _, kw := range pestKeywords {
			if strings.Contains(lower, kw) {
				add(l.Label)
				matched = true
				if l.Score > maxMatched {
					maxMatched = l.Score
				}
				break
			}
		}

		for _, kw := range armywormKeywords {
			if strings.Contains(lower, kw) {
				add(FallArmywormType)
				break
			}
		}
	}

	if matched {
		return Analysis{IsPest: true, PestTypes: pestTypes, Confidence: maxMatched * 100}
	}

	if maxOverall > pestScoreThreshold {
		return Analysis{IsPest: true, PestTypes: []string{UnknownPestType}, Confidence: maxOverall * 100}
	}

	return Analysis{IsPest: false, PestTypes: []string{}}
}

// InfestationLevel maps a 0-100 confidence to a level. Non-pests are always
// LevelNone.
func InfestationLevel(isPest bool, confidence float64) Level {
	switch {
	case !isPest:
		return LevelNone
	case confidence >= 80:
		return LevelCritical
	case confidence >= 60:
		return LevelHigh
	case confidence >= 40:
		return LevelModerate
	}
	return LevelLow
}
