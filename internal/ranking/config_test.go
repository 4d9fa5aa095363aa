package ranking

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultWeights()
	sum := w.ContentAffinity + w.SocialAffinity + w.PastEngagement + w.Timing + w.Popularity
	if math.Abs(sum-1.0) > weightSumTolerance {
		t.Errorf("default weights sum = %v, want 1.0", sum)
	}
	if err := w.Validate(); err != nil {
		t.Errorf("DefaultWeights().Validate() = %v, want nil", err)
	}
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", *DefaultWeights(), false},
		{
			"rebalanced",
			Weights{ContentAffinity: 0.4, SocialAffinity: 0.3, PastEngagement: 0.1, Timing: 0.1, Popularity: 0.1},
			false,
		},
		{
			"sum below one",
			Weights{ContentAffinity: 0.2, SocialAffinity: 0.2, PastEngagement: 0.2, Timing: 0.2, Popularity: 0.1},
			true,
		},
		{
			"zero weight",
			Weights{ContentAffinity: 0.5, SocialAffinity: 0.5, PastEngagement: 0, Timing: 0, Popularity: 0},
			true,
		},
		{
			"negative weight",
			Weights{ContentAffinity: 0.5, SocialAffinity: 0.5, PastEngagement: 0.2, Timing: -0.1, Popularity: -0.1},
			true,
		},
		{
			"weight above one",
			Weights{ContentAffinity: 1.2, SocialAffinity: 0.1, PastEngagement: 0.1, Timing: 0.1, Popularity: 0.1},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("Validate() = %v, want ErrInvalidWeights", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestMergeCalibration(t *testing.T) {
	base := DefaultWeights()

	t.Run("nil override copies base", func(t *testing.T) {
		got := MergeCalibration(base, nil)
		if *got != *base {
			t.Errorf("got %+v, want %+v", got, base)
		}
		if got == base {
			t.Error("MergeCalibration returned the base pointer, want a copy")
		}
	})

	t.Run("partial override", func(t *testing.T) {
		got := MergeCalibration(base, &Weights{ContentAffinity: 0.35, Popularity: 0.1})
		if got.ContentAffinity != 0.35 || got.Popularity != 0.1 {
			t.Errorf("overrides not applied: %+v", got)
		}
		if got.SocialAffinity != base.SocialAffinity || got.Timing != base.Timing {
			t.Errorf("untouched weights changed: %+v", got)
		}
	})

	t.Run("nil base falls back to defaults", func(t *testing.T) {
		got := MergeCalibration(nil, &Weights{ContentAffinity: 0.9})
		if *got != *DefaultWeights() {
			t.Errorf("got %+v, want defaults", got)
		}
	})
}

func writeCalibrationFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing calibration file: %v", err)
	}
	return path
}

func TestLoadCalibration(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		got, err := LoadCalibration("")
		if err != nil {
			t.Fatalf("LoadCalibration(\"\") = %v", err)
		}
		if *got != *DefaultWeights() {
			t.Errorf("got %+v, want defaults", got)
		}
	})

	t.Run("valid full override", func(t *testing.T) {
		path := writeCalibrationFile(t, `{
			"version": "1",
			"weights": {
				"content_affinity": 0.30,
				"social_affinity": 0.30,
				"past_engagement": 0.10,
				"timing": 0.10,
				"popularity": 0.20
			}
		}`)
		got, err := LoadCalibration(path)
		if err != nil {
			t.Fatalf("LoadCalibration: %v", err)
		}
		if got.ContentAffinity != 0.30 || got.SocialAffinity != 0.30 {
			t.Errorf("overrides not applied: %+v", got)
		}
	})

	t.Run("partial override merges with defaults", func(t *testing.T) {
		// 0.35 content only balances against a reduced social weight.
		path := writeCalibrationFile(t, `{
			"weights": {"content_affinity": 0.35, "social_affinity": 0.15}
		}`)
		got, err := LoadCalibration(path)
		if err != nil {
			t.Fatalf("LoadCalibration: %v", err)
		}
		if got.ContentAffinity != 0.35 || got.SocialAffinity != 0.15 {
			t.Errorf("overrides not applied: %+v", got)
		}
		if got.Popularity != 0.20 {
			t.Errorf("Popularity = %v, want default 0.20", got.Popularity)
		}
	})

	t.Run("missing file returns defaults and error", func(t *testing.T) {
		got, err := LoadCalibration(filepath.Join(t.TempDir(), "absent.json"))
		if err == nil {
			t.Error("expected an error for a missing file")
		}
		if *got != *DefaultWeights() {
			t.Errorf("got %+v, want defaults on failure", got)
		}
	})

	t.Run("malformed JSON returns defaults and error", func(t *testing.T) {
		path := writeCalibrationFile(t, `{"weights": `)
		got, err := LoadCalibration(path)
		if err == nil {
			t.Error("expected an error for malformed JSON")
		}
		if *got != *DefaultWeights() {
			t.Errorf("got %+v, want defaults on failure", got)
		}
	})

	t.Run("invalid sum returns defaults and error", func(t *testing.T) {
		path := writeCalibrationFile(t, `{
			"weights": {"content_affinity": 0.9}
		}`)
		got, err := LoadCalibration(path)
		if !errors.Is(err, ErrInvalidWeights) {
			t.Errorf("got %v, want ErrInvalidWeights", err)
		}
		if *got != *DefaultWeights() {
			t.Errorf("got %+v, want defaults on failure", got)
		}
	})
}
