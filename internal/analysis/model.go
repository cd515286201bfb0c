package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/basket/sentinel/internal/settings"
)

// safeLabelMarkers identify a raw classifier label as meaning "this text is
// benign" rather than voting for any risk category.
var safeLabelMarkers = []string{"non-toxic", "not-toxic", "safe", "neutral", "label-0", "label_0", "benign"}

// genericLabelHints is the fallback label-to-category mapping used when a
// model's own LabelHints don't match a raw label.
var genericLabelHints = map[string][]string{
	"toxicity":    {"toxic", "insult", "abuse", "hate"},
	"threat":      {"threat", "violence", "violent"},
	"scam":        {"scam", "fraud", "phishing"},
	"recruitment": {"recruit"},
	"drugs":       {"drug", "narcotic"},
	"terrorism":   {"terror", "extremis"},
}

// scoreModel runs pipeline steps 5 and 6: call the classifier, map its
// labels to risk categories, and attenuate by the safe-label confidence.
// If the classifier call fails, it logs a warning and returns zero scores
// for every category — heuristics alone then decide.
func scoreModel(ctx context.Context, cache *Cache, cfg runtimeConfig, text string, logger *slog.Logger) map[string]float64 {
	zero := make(map[string]float64, len(Categories))
	for _, cat := range Categories {
		zero[cat] = 0
	}

	classifier, err := cache.Get(ctx, cfg.modelID)
	if err != nil {
		logger.Warn("classifier unavailable, falling back to heuristics only", "model", cfg.modelID, "error", err.Error())
		return zero
	}

	truncated := text
	if cfg.maxAnalysisChars > 0 && len([]rune(truncated)) > cfg.maxAnalysisChars {
		truncated = string([]rune(truncated)[:cfg.maxAnalysisChars])
	}

	req := ClassifyRequest{ModelID: cfg.modelID, Text: truncated}
	switch classifier.Def.Task {
	case settings.TaskZeroShotClassification:
		req.Task = string(settings.TaskZeroShotClassification)
		req.MultiLabel = classifier.Def.MultiLabel
		req.HypothesisTemplate = classifier.Def.HypothesisTemplate
		for _, cl := range classifier.Def.CandidateLabels {
			req.CandidateLabels = append(req.CandidateLabels, cl.Label)
		}
	default:
		req.Task = string(settings.TaskTextClassification)
		req.TopK = cfg.modelTopK
	}

	resp, err := classifier.Runner.Classify(ctx, req)
	if err != nil {
		logger.Warn("classifier call failed, falling back to heuristics only", "model", cfg.modelID, "error", err.Error())
		return zero
	}

	raw := make(map[string]float64, len(Categories))
	var safeScore float64
	for _, ls := range resp.Labels {
		lower := strings.ToLower(strings.TrimSpace(ls.Label))
		if isSafeLabel(lower) {
			if ls.Score > safeScore {
				safeScore = ls.Score
			}
			continue
		}
		cat := mapLabelToCategory(lower, classifier.Def.LabelHints)
		if cat == "" {
			continue
		}
		if ls.Score > raw[cat] {
			raw[cat] = ls.Score
		}
	}

	attenuation := 1 - 0.65*safeScore
	out := make(map[string]float64, len(Categories))
	for _, cat := range Categories {
		out[cat] = raw[cat] * attenuation
	}
	return out
}

func isSafeLabel(lower string) bool {
	for _, marker := range safeLabelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// mapLabelToCategory maps a raw, lowercased classifier label to one of the
// six risk categories, trying the model's own hints first, then generic
// substring heuristics, then the degenerate "label-1" => toxicity rule.
func mapLabelToCategory(lower string, hints map[string][]string) string {
	for _, cat := range Categories {
		for _, hint := range hints[cat] {
			if strings.Contains(lower, strings.ToLower(hint)) {
				return cat
			}
		}
	}
	for _, cat := range Categories {
		for _, hint := range genericLabelHints[cat] {
			if strings.Contains(lower, hint) {
				return cat
			}
		}
	}
	if lower == "label-1" || lower == "label_1" {
		return "toxicity"
	}
	return ""
}
