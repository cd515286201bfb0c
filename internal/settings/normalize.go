package settings

import "strings"

// Normalize applies the Settings Store's invariants to s and returns the
// normalized value. It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s Settings) Settings {
	out := s

	if out.AuthMode != AuthModeBot && out.AuthMode != AuthModeUser {
		out.AuthMode = AuthModeBot
	}
	if strings.TrimSpace(out.SessionName) == "" {
		out.SessionName = "sentinel"
	}

	out.ThreatThreshold = clampPercent(out.ThreatThreshold, 1, 99, 60)
	out.CategoryThresholds.Toxicity = clampCategoryThreshold(out.CategoryThresholds.Toxicity)
	out.CategoryThresholds.Threat = clampCategoryThreshold(out.CategoryThresholds.Threat)
	out.CategoryThresholds.Scam = clampCategoryThreshold(out.CategoryThresholds.Scam)
	out.CategoryThresholds.Recruitment = clampCategoryThreshold(out.CategoryThresholds.Recruitment)
	out.CategoryThresholds.Drugs = clampCategoryThreshold(out.CategoryThresholds.Drugs)
	out.CategoryThresholds.Terrorism = clampCategoryThreshold(out.CategoryThresholds.Terrorism)

	out.ModelWeight = clampRange(out.ModelWeight, 0, 100)
	out.HeuristicWeight = clampRange(out.HeuristicWeight, 0, 100)
	out.ModelTopK = clampRange(out.ModelTopK, 1, 30)
	if out.ModelTopK == 0 {
		out.ModelTopK = 5
	}
	out.MaxAnalysisChars = clampRangeDefault(out.MaxAnalysisChars, 200, 4000, 1000)
	out.URLScamBoost = clampRange(out.URLScamBoost, 0, 100)
	out.KeywordHitBoost = clampRange(out.KeywordHitBoost, 0, 100)
	out.CriticalHitFloor = clampRange(out.CriticalHitFloor, 0, 100)

	out.Keywords = dedupLower(out.Keywords)
	out.ScamTriggers = dedupLower(out.ScamTriggers)
	out.DrugTriggers = dedupLower(out.DrugTriggers)
	out.RecruitmentTriggers = dedupLower(out.RecruitmentTriggers)
	out.TerrorismTriggers = dedupLower(out.TerrorismTriggers)
	out.ThreatTriggers = dedupLower(out.ThreatTriggers)
	out.ToxicityTriggers = dedupLower(out.ToxicityTriggers)

	out.BotTargetChats = dedupTrimmed(out.BotTargetChats)
	out.UserTargetChats = dedupTrimmed(out.UserTargetChats)
	out.TargetChats = dedupTrimmed(out.TargetChats)

	active := out.BotTargetChats
	if out.AuthMode == AuthModeUser {
		active = out.UserTargetChats
	}
	if len(active) == 0 {
		active = dedupTrimmed(out.TargetChats)
	}
	if len(active) == 0 {
		active = []string{defaultTargetChat}
	}
	out.TargetChats = active

	if _, ok := ModelCatalog[out.MLModel]; !ok {
		out.MLModel = defaultModelID
	}

	return out
}

// clampCategoryThreshold clamps a non-zero category threshold into [1,99];
// zero is left alone (it means "inherit the global threshold").
func clampCategoryThreshold(v int) int {
	if v == 0 {
		return 0
	}
	return clampRange(v, 1, 99)
}

func clampRange(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampRangeDefault(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	return clampRange(v, min, max)
}

// clampPercent clamps v into [min,max], substituting fallback when v is
// outside the declared range and not recoverable (i.e. zero/unset).
func clampPercent(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	return clampRange(v, min, max)
}

// dedupLower trims, drops empties, and deduplicates case-insensitively,
// preserving first-occurrence order.
func dedupLower(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// dedupTrimmed trims, drops empties, and deduplicates case-sensitively,
// preserving the trimmed form and first-occurrence order.
func dedupTrimmed(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
