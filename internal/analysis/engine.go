package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/basket/sentinel/internal/settings"
)

// Engine is the Analysis Engine: for a given text and settings snapshot it
// produces per-category scores and a final verdict.
type Engine struct {
	cache  *Cache
	logger *slog.Logger
}

// NewEngine returns an Engine backed by cache. logger may be nil, in which
// case slog.Default() is used.
func NewEngine(cache *Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cache: cache, logger: logger}
}

// CacheFor exposes the Classifier Cache backing this Engine, for callers
// (such as the Ingestion Runtime's pre-warm step) that need to trigger
// instantiation without running a full analysis.
func (e *Engine) CacheFor() *Cache { return e.cache }

// Analyze runs the full pipeline against text using s as the configuration
// snapshot.
func (e *Engine) Analyze(ctx context.Context, text string, s settings.Settings) Result {
	if strings.TrimSpace(text) == "" {
		zero := make(map[string]float64, len(Categories))
		for _, cat := range Categories {
			zero[cat] = 0
		}
		return Result{
			Type:            "safe",
			Score:           0.99,
			Scores:          zero,
			HeuristicScores: copyMap(zero),
			ModelScores:     copyMap(zero),
			Thresholds:      copyMap(zero),
		}
	}

	cfg := deriveConfig(s)

	heuristic := make(map[string]float64, len(Categories))
	if cfg.enableHeuristics {
		heuristic = scoreHeuristics(text, cfg)
	} else {
		for _, cat := range Categories {
			heuristic[cat] = 0
		}
	}

	if cfg.enableCriticalPatterns {
		applyCriticalOverride(text, heuristic, cfg.criticalHitFloor)
	}

	model := scoreModel(ctx, e.cache, cfg, text, e.logger)

	final := make(map[string]float64, len(Categories))
	for _, cat := range Categories {
		blended := cfg.modelWeight*model[cat] + cfg.heuristicWeight*heuristic[cat]
		final[cat] = clamp01(blended)
	}

	if cfg.enableCriticalPatterns {
		for _, cat := range Categories {
			if heuristic[cat] >= cfg.criticalHitFloor && final[cat] < heuristic[cat] {
				final[cat] = heuristic[cat]
			}
		}
	}

	verdictType, verdictScore := decide(final, cfg.thresholds)

	return Result{
		Type:            verdictType,
		Score:           verdictScore,
		Scores:          final,
		HeuristicScores: heuristic,
		ModelScores:     model,
		Thresholds:      cfg.thresholds,
	}
}

// decide implements pipeline step 9: sort categories by final score
// descending (fixed-list tie-break), pick the first that meets its
// threshold.
func decide(final map[string]float64, thresholds map[string]float64) (string, float64) {
	ordered := make([]string, len(Categories))
	copy(ordered, Categories)
	// Stable insertion sort by descending score; ties keep Categories order.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && final[ordered[j]] > final[ordered[j-1]]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	var topScore float64
	for i, cat := range ordered {
		if i == 0 {
			topScore = final[cat]
		}
		if final[cat] >= thresholds[cat] {
			return cat, final[cat]
		}
	}

	score := 1 - topScore
	if score < 0.05 {
		score = 0.05
	}
	return "safe", score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
