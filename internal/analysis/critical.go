package analysis

import "regexp"

// criticalRule is a tighter, high-precision pattern that — when it matches —
// raises its category's heuristic score to at least severity, regardless of
// what the looser pattern/trigger scoring produced.
type criticalRule struct {
	category string
	pattern  *regexp.Regexp
	severity float64
}

// criticalRules is the compiled-in set evaluated when enableCriticalPatterns
// is true. Severities sit in [0.88, 0.97] per the Analysis Engine contract.
var criticalRules = []criticalRule{
	{
		category: "toxicity",
		pattern:  regexp.MustCompile(`(?i)идиот|ничтожество|дебил\b|тварь\b`),
		severity: 0.90,
	},
	{
		category: "threat",
		pattern:  regexp.MustCompile(`(?i)я\s+тебя\s+убь|убью\s+тебя|зарежу\s+тебя|сдохнешь`),
		severity: 0.95,
	},
	{
		category: "scam",
		pattern:  regexp.MustCompile(`(?i)гарантированн\w*\s+доход|удвоим\s+вклад|перевед\w*\s+usdt`),
		severity: 0.90,
	},
	{
		category: "recruitment",
		pattern:  regexp.MustCompile(`(?i)закрытую\s+группу.*(специальных|особых)\s+задач|ищем\s+людей\s+в\s+закрытую`),
		severity: 0.88,
	},
	{
		category: "drugs",
		pattern:  regexp.MustCompile(`(?i)мефедрон|закладк\w*\s+по\s+город|героин\s+продам|гашиш\s+продам`),
		severity: 0.92,
	},
	{
		category: "terrorism",
		pattern:  regexp.MustCompile(`(?i)готовим\s+теракт|теракт\s+в\s+людном|нужен\s+исполнитель.*теракт|взрыв\w*\s+устройств`),
		severity: 0.95,
	},
}

// applyCriticalOverride raises scores[rule.category] to at least
// max(rule.severity, criticalHitFloor) for every matching rule, mutating
// scores in place.
func applyCriticalOverride(text string, scores map[string]float64, criticalHitFloor float64) {
	for _, rule := range criticalRules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		floor := rule.severity
		if criticalHitFloor > floor {
			floor = criticalHitFloor
		}
		if scores[rule.category] < floor {
			scores[rule.category] = floor
		}
	}
}
