package settings

import "encoding/json"

// percentFields lists the JSON keys that accept either a ratio in [0,1] or
// a percent in (1,100], per the Settings Store's normalization contract.
var percentFields = map[string]struct{}{
	"threatThreshold":  {},
	"modelWeight":      {},
	"heuristicWeight":  {},
	"urlScamBoost":     {},
	"keywordHitBoost":  {},
	"criticalHitFloor": {},
}

var categoryThresholdFields = map[string]struct{}{
	"toxicity": {}, "threat": {}, "scam": {}, "recruitment": {}, "drugs": {}, "terrorism": {},
}

// MergeJSON decodes an inbound API body atop current and returns the
// normalized result. Unknown or malformed fields are ignored rather than
// rejected — Normalize fills in fallbacks for anything left inconsistent.
func MergeJSON(current Settings, body []byte) (Settings, error) {
	var raw map[string]json.RawMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return Settings{}, err
		}
	}

	out := current
	for key, value := range raw {
		switch key {
		case "apiId":
			assignString(&out.APIID, value)
		case "apiHash":
			assignString(&out.APIHash, value)
		case "authMode":
			var v string
			if err := json.Unmarshal(value, &v); err == nil {
				out.AuthMode = AuthMode(v)
			}
		case "botToken":
			assignString(&out.BotToken, value)
		case "sessionString":
			assignString(&out.SessionString, value)
		case "sessionName":
			assignString(&out.SessionName, value)
		case "botTargetChats":
			assignStringSlice(&out.BotTargetChats, value)
		case "userTargetChats":
			assignStringSlice(&out.UserTargetChats, value)
		case "targetChats":
			assignStringSlice(&out.TargetChats, value)
		case "userAuthAllMessages":
			assignBool(&out.UserAuthAllMessages, value)
		case "proxy":
			_ = json.Unmarshal(value, &out.Proxy)
		case "media":
			_ = json.Unmarshal(value, &out.Media)
		case "mlModel":
			assignString(&out.MLModel, value)
		case "threatThreshold":
			out.ThreatThreshold = decodePercent(value, out.ThreatThreshold)
		case "categoryThresholds":
			mergeCategoryThresholds(&out.CategoryThresholds, value)
		case "enableHeuristics":
			assignBool(&out.EnableHeuristics, value)
		case "enableCriticalPatterns":
			assignBool(&out.EnableCriticalPatterns, value)
		case "modelWeight":
			out.ModelWeight = decodePercent(value, out.ModelWeight)
		case "heuristicWeight":
			out.HeuristicWeight = decodePercent(value, out.HeuristicWeight)
		case "modelTopK":
			assignInt(&out.ModelTopK, value)
		case "maxAnalysisChars":
			assignInt(&out.MaxAnalysisChars, value)
		case "urlScamBoost":
			out.URLScamBoost = decodePercent(value, out.URLScamBoost)
		case "keywordHitBoost":
			out.KeywordHitBoost = decodePercent(value, out.KeywordHitBoost)
		case "criticalHitFloor":
			out.CriticalHitFloor = decodePercent(value, out.CriticalHitFloor)
		case "keywords":
			assignStringSlice(&out.Keywords, value)
		case "scamTriggers":
			assignStringSlice(&out.ScamTriggers, value)
		case "drugTriggers":
			assignStringSlice(&out.DrugTriggers, value)
		case "recruitmentTriggers":
			assignStringSlice(&out.RecruitmentTriggers, value)
		case "terrorismTriggers":
			assignStringSlice(&out.TerrorismTriggers, value)
		case "threatTriggers":
			assignStringSlice(&out.ThreatTriggers, value)
		case "toxicityTriggers":
			assignStringSlice(&out.ToxicityTriggers, value)
		}
	}

	return Normalize(out), nil
}

func mergeCategoryThresholds(ct *CategoryThresholds, value json.RawMessage) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(value, &raw); err != nil {
		return
	}
	for key, v := range raw {
		if _, ok := categoryThresholdFields[key]; !ok {
			continue
		}
		switch key {
		case "toxicity":
			ct.Toxicity = decodePercent(v, ct.Toxicity)
		case "threat":
			ct.Threat = decodePercent(v, ct.Threat)
		case "scam":
			ct.Scam = decodePercent(v, ct.Scam)
		case "recruitment":
			ct.Recruitment = decodePercent(v, ct.Recruitment)
		case "drugs":
			ct.Drugs = decodePercent(v, ct.Drugs)
		case "terrorism":
			ct.Terrorism = decodePercent(v, ct.Terrorism)
		}
	}
}

// decodePercent accepts either a ratio in [0,1] or a percent in (1,100] and
// returns the integer percent form; invalid input keeps fallback.
func decodePercent(value json.RawMessage, fallback int) int {
	var f float64
	if err := json.Unmarshal(value, &f); err != nil {
		return fallback
	}
	if f >= 0 && f <= 1 {
		return int(f*100 + 0.5)
	}
	if f > 1 && f <= 100 {
		return int(f + 0.5)
	}
	return fallback
}

func assignString(dst *string, value json.RawMessage) {
	var v string
	if err := json.Unmarshal(value, &v); err == nil {
		*dst = v
	}
}

func assignBool(dst *bool, value json.RawMessage) {
	var v bool
	if err := json.Unmarshal(value, &v); err == nil {
		*dst = v
	}
}

func assignInt(dst *int, value json.RawMessage) {
	var v float64
	if err := json.Unmarshal(value, &v); err == nil {
		*dst = int(v)
	}
}

func assignStringSlice(dst *[]string, value json.RawMessage) {
	var v []string
	if err := json.Unmarshal(value, &v); err == nil {
		*dst = v
	}
}
