package analysis

import (
	"strings"

	"github.com/basket/sentinel/internal/settings"
)

// runtimeConfig is the derived, ratio-valued configuration the pipeline
// actually operates on for a single analyze() call.
type runtimeConfig struct {
	modelID string

	enableHeuristics       bool
	enableCriticalPatterns bool

	modelWeight     float64
	heuristicWeight float64

	modelTopK        int
	maxAnalysisChars int

	urlScamBoost     float64
	keywordHitBoost  float64
	criticalHitFloor float64

	thresholds map[string]float64

	keywords            []string
	scamTriggers        []string
	drugTriggers        []string
	recruitmentTriggers []string
	terrorismTriggers   []string
	threatTriggers      []string
	toxicityTriggers    []string
}

// deriveConfig implements pipeline steps 1 and 2: config derivation and
// per-category effective thresholds.
func deriveConfig(s settings.Settings) runtimeConfig {
	modelID := s.MLModel
	if _, ok := settings.ModelCatalog[modelID]; !ok {
		modelID = settings.DefaultModelID()
	}

	var modelWeight, heuristicWeight float64
	switch {
	case !s.EnableHeuristics:
		modelWeight, heuristicWeight = 1.0, 0.0
	case s.ModelWeight == 0 && s.HeuristicWeight == 0:
		modelWeight, heuristicWeight = 0.55, 0.45
	default:
		mw := float64(s.ModelWeight)
		hw := float64(s.HeuristicWeight)
		sum := mw + hw
		if sum == 0 {
			modelWeight, heuristicWeight = 0.55, 0.45
		} else {
			modelWeight, heuristicWeight = mw/sum, hw/sum
		}
	}

	globalThreshold := percentToRatio(s.ThreatThreshold)
	thresholds := map[string]float64{
		"toxicity":    effectiveThreshold(s.CategoryThresholds.Toxicity, globalThreshold),
		"threat":      effectiveThreshold(s.CategoryThresholds.Threat, globalThreshold),
		"scam":        effectiveThreshold(s.CategoryThresholds.Scam, globalThreshold),
		"recruitment": effectiveThreshold(s.CategoryThresholds.Recruitment, globalThreshold),
		"drugs":       effectiveThreshold(s.CategoryThresholds.Drugs, globalThreshold),
		"terrorism":   effectiveThreshold(s.CategoryThresholds.Terrorism, globalThreshold),
	}

	return runtimeConfig{
		modelID:                modelID,
		enableHeuristics:       s.EnableHeuristics,
		enableCriticalPatterns: s.EnableCriticalPatterns,
		modelWeight:            modelWeight,
		heuristicWeight:        heuristicWeight,
		modelTopK:              s.ModelTopK,
		maxAnalysisChars:       s.MaxAnalysisChars,
		urlScamBoost:           percentToRatio(s.URLScamBoost),
		keywordHitBoost:        percentToRatio(s.KeywordHitBoost),
		criticalHitFloor:       percentToRatio(s.CriticalHitFloor),
		thresholds:             thresholds,
		keywords:               relowerDedup(s.Keywords),
		scamTriggers:           relowerDedup(s.ScamTriggers),
		drugTriggers:           relowerDedup(s.DrugTriggers),
		recruitmentTriggers:    relowerDedup(s.RecruitmentTriggers),
		terrorismTriggers:      relowerDedup(s.TerrorismTriggers),
		threatTriggers:         relowerDedup(s.ThreatTriggers),
		toxicityTriggers:       relowerDedup(s.ToxicityTriggers),
	}
}

func effectiveThreshold(categoryPercent int, global float64) float64 {
	if categoryPercent != 0 {
		return percentToRatio(categoryPercent)
	}
	return global
}

func percentToRatio(v int) float64 {
	return float64(v) / 100.0
}

func relowerDedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		t := strings.ToLower(strings.TrimSpace(v))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
