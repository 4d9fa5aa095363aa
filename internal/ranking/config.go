package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// Weights defines the fixed linear combination of the five signals.
// The five weights must sum to exactly 1.0.
type Weights struct {
	ContentAffinity float64 `json:"content_affinity"` // default: 0.25
	SocialAffinity  float64 `json:"social_affinity"`  // default: 0.25
	PastEngagement  float64 `json:"past_engagement"`  // default: 0.15
	Timing          float64 `json:"timing"`           // default: 0.15
	Popularity      float64 `json:"popularity"`       // default: 0.20
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// weightSumTolerance absorbs float rounding when validating that the
// weights sum to 1.0.
const weightSumTolerance = 1e-9

// ErrInvalidWeights indicates a weight set that is out of bounds or does
// not sum to 1.0.
var ErrInvalidWeights = errors.New("signal weights must each be in (0, 1] and sum to 1.0")

// DefaultWeights returns the default signal weight configuration.
//
//	final_score = (content * 0.25) + (social * 0.25) + (past_engagement * 0.15)
//	            + (timing * 0.15) + (popularity * 0.20)
//
// Content and social affinity carry the most weight: what a post is about
// and who posted it dominate predicted relevance, with timing and tenant
// popularity adjusting within that.
func DefaultWeights() *Weights {
	return &Weights{
		ContentAffinity: 0.25,
		SocialAffinity:  0.25,
		PastEngagement:  0.15,
		Timing:          0.15,
		Popularity:      0.20,
	}
}

// Validate checks that every weight lies in (0, 1] and that the five
// weights sum to 1.0 within tolerance.
func (w *Weights) Validate() error {
	parts := []float64{w.ContentAffinity, w.SocialAffinity, w.PastEngagement, w.Timing, w.Popularity}
	sum := 0.0
	for _, p := range parts {
		if p <= 0 || p > 1 {
			return ErrInvalidWeights
		}
		sum += p
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w (sum = %v)", ErrInvalidWeights, sum)
	}
	return nil
}

// LoadCalibration loads signal weights from a JSON calibration file.
// Partial configurations are merged with defaults; the merged result must
// still pass Validate. On any read, parse, or validation failure the
// defaults are returned alongside the error so callers can degrade
// gracefully.
func LoadCalibration(filePath string) (*Weights, error) {
	// Return defaults if no file path provided
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("invalid calibration weights, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), err
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights onto base weights.
// Only non-zero values from the override are applied, which allows partial
// overrides in the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	// Guard against nil base to avoid panics; fall back to defaults.
	if base == nil {
		return DefaultWeights()
	}

	// If there is no override provided, return a copy of the base.
	if override == nil {
		result := *base
		return &result
	}

	result := *base // Copy base

	if override.ContentAffinity != 0 {
		result.ContentAffinity = override.ContentAffinity
	}
	if override.SocialAffinity != 0 {
		result.SocialAffinity = override.SocialAffinity
	}
	if override.PastEngagement != 0 {
		result.PastEngagement = override.PastEngagement
	}
	if override.Timing != 0 {
		result.Timing = override.Timing
	}
	if override.Popularity != 0 {
		result.Popularity = override.Popularity
	}

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	if loaded.ContentAffinity != defaults.ContentAffinity {
		overrides = append(overrides, fmt.Sprintf("content_affinity: %.2f -> %.2f",
			defaults.ContentAffinity, loaded.ContentAffinity))
	}
	if loaded.SocialAffinity != defaults.SocialAffinity {
		overrides = append(overrides, fmt.Sprintf("social_affinity: %.2f -> %.2f",
			defaults.SocialAffinity, loaded.SocialAffinity))
	}
	if loaded.PastEngagement != defaults.PastEngagement {
		overrides = append(overrides, fmt.Sprintf("past_engagement: %.2f -> %.2f",
			defaults.PastEngagement, loaded.PastEngagement))
	}
	if loaded.Timing != defaults.Timing {
		overrides = append(overrides, fmt.Sprintf("timing: %.2f -> %.2f",
			defaults.Timing, loaded.Timing))
	}
	if loaded.Popularity != defaults.Popularity {
		overrides = append(overrides, fmt.Sprintf("popularity: %.2f -> %.2f",
			defaults.Popularity, loaded.Popularity))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
