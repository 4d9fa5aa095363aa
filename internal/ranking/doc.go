// Package ranking orders candidate posts for a user by predicted relevance.
//
// Five independent signals, each normalized to [0, 1], are combined by fixed
// weights into a final score: content affinity (0.25), social affinity
// (0.25), past engagement (0.15), timing (0.15), and popularity (0.20).
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	engine := ranking.NewEngine(gateway, ranking.EngineConfig{Weights: weights})
//	scores, err := engine.ScorePosts(ctx, userID, tenantID, candidates)
//
// Signal Functions:
//
// Each signal is a pure function over the analytics gateway. Data-absence
// conditions (no category history, no tags, no percentile baseline) resolve
// to documented neutral defaults rather than errors; only infrastructure
// failures surface as errors, and the engine degrades a failing post to an
// all-neutral score instead of failing the batch.
//
// Calibration:
//
// The calibration system allows deploy-time tuning of signal weights via a
// JSON configuration file loaded at startup. Overrides merge onto defaults
// and must still sum to 1.0; an invalid file falls back to the defaults.
package ranking
