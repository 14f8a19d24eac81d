package inference

import (
	"reflect"
	"testing"
)

func TestAnalyzeLabels(t *testing.T) {
	tests := []struct {
		name           string
		labels         []Label
		wantPest       bool
		wantTypes      []string
		wantConfidence float64
	}{
		{
			name:           "worm and beetle",
			labels:         []Label{{"army worm", 0.5}, {"leaf beetle", 0.2}, {"daisy", 0.1}},
			wantPest:       true,
			wantTypes:      []string{"army worm", FallArmywormType, "leaf beetle"},
			wantConfidence: 50,
		},
		{
			name:           "case insensitive",
			labels:         []Label{{"Monarch BUTTERFLY", 0.9}},
			wantPest:       true,
			wantTypes:      []string{"Monarch BUTTERFLY"},
			wantConfidence: 90,
		},
		{
			name:           "sentinel added once",
			labels:         []Label{{"caterpillar", 0.4}, {"inchworm", 0.3}},
			wantPest:       true,
			wantTypes:      []string{"caterpillar", FallArmywormType, "inchworm"},
			wantConfidence: 40,
		},
		{
			name:           "duplicate labels collapse",
			labels:         []Label{{"aphid", 0.2}, {"aphid", 0.25}},
			wantPest:       true,
			wantTypes:      []string{"aphid"},
			wantConfidence: 25,
		},
		{
			name:           "threshold fallback",
			labels:         []Label{{"tractor", 0.31}, {"barn", 0.2}},
			wantPest:       true,
			wantTypes:      []string{UnknownPestType},
			wantConfidence: 31,
		},
		{
			name:           "below threshold",
			labels:         []Label{{"tractor", 0.3}, {"barn", 0.2}},
			wantPest:       false,
			wantTypes:      []string{},
			wantConfidence: 0,
		},
		{
			name:      "no labels",
			labels:    nil,
			wantPest:  false,
			wantTypes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeLabels(tt.labels)

			if got.IsPest != tt.wantPest {
				t.Errorf("Expected IsPest %v, got %v", tt.wantPest, got.IsPest)
			}
			if !reflect.DeepEqual(got.PestTypes, tt.wantTypes) {
				t.Errorf("Expected types %v, got %v", tt.wantTypes, got.PestTypes)
			}
			if diff := got.Confidence - tt.wantConfidence; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Expected confidence %v, got %v", tt.wantConfidence, got.Confidence)
			}
		})
	}
}

func TestInfestationLevel(t *testing.T) {
	tests := []struct {
		isPest     bool
		confidence float64
		want       Level
	}{
		{false, 0, LevelNone},
		{false, 99, LevelNone},
		{true, 100, LevelCritical},
		{true, 80, LevelCritical},
		{true, 79.99, LevelHigh},
		{true, 60, LevelHigh},
		{true, 59.9, LevelModerate},
		{true, 40, LevelModerate},
		{true, 39.9, LevelLow},
		{true, 0, LevelLow},
	}

	for _, tt := range tests {
		if got := InfestationLevel(tt.isPest, tt.confidence); got != tt.want {
			t.Errorf("InfestationLevel(%v, %v): expected %s, got %s", tt.isPest, tt.confidence, tt.want, got)
		}
	}
}

func TestLevelRank(t *testing.T) {
	order := []Level{LevelNone, LevelLow, LevelModerate, LevelHigh, LevelCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Expected %s to rank above %s", order[i], order[i-1])
		}
	}
}
