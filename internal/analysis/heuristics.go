package analysis

import (
	"regexp"
	"strings"
	"unicode"
)

// triggerRule is the base/step/cap formula applied to one trigger list's
// hit count against one category's score.
type triggerRule struct {
	base, step, cap float64
}

// ownTriggerRules is the base/step/cap for a category's own trigger list.
var ownTriggerRules = map[string]triggerRule{
	"toxicity":    {0.52, 0.11, 0.96},
	"threat":      {0.58, 0.11, 0.98},
	"scam":        {0.56, 0.10, 0.98},
	"recruitment": {0.66, 0.10, 0.99},
	"drugs":       {0.74, 0.08, 0.99},
	"terrorism":   {0.78, 0.07, 0.99},
}

// threatCrossContribution is the base/step/cap applied to the threat score
// when recruitment/drug/terrorism trigger lists also fire.
var threatCrossContribution = map[string]triggerRule{
	"recruitment": {0.58, 0.08, 0.95},
	"drugs":       {0.62, 0.08, 0.95},
	"terrorism":   {0.68, 0.08, 0.97},
}

// patternSets are the compiled-in, loosely-matching per-category regex
// sets used before any configured trigger list is consulted.
var patternSets = map[string]*regexp.Regexp{
	"toxicity":    regexp.MustCompile(`(?i)идиот|дебил|ничтожество|тварь|мраз|сволоч|ненавид|тупиц|урод`),
	"threat":      regexp.MustCompile(`(?i)убью|убьем|зарежу|прибью|пожалеешь|найду тебя|сдохн`),
	"scam":        regexp.MustCompile(`(?i)гарантирован\w*\s+доход|быстрый\s+заработок|удвоим\s+вклад|инвестиц\w*\s+под|перевод\w*\s+(usdt|btc|крипт)`),
	"recruitment": regexp.MustCompile(`(?i)закрытую\s+группу|ищем\s+людей|набор\s+в\s+группу|специальных\s+задач`),
	"drugs":       regexp.MustCompile(`(?i)мефедрон|закладк|гашиш|героин|амфетамин|шишки\s+купить`),
	"terrorism":   regexp.MustCompile(`(?i)теракт|взрыв\w*\s+устройств|джихад|нужен\s+исполнитель`),
}

// scamURLContextTerms are substrings that, together with an http(s):// URL,
// indicate a scam-solicitation link rather than an arbitrary link.
var scamURLContextTerms = []string{"оплат", "крипт", "usdt", "btc", "кошел", "payment", "wallet", "crypto"}

// scoreHeuristics runs the regex pattern sets and configured trigger lists
// against text and returns a per-category score in [0,1].
func scoreHeuristics(text string, cfg runtimeConfig) map[string]float64 {
	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(Categories))

	for _, cat := range Categories {
		pattern := patternSets[cat]
		hits := len(pattern.FindAllStringIndex(lower, -1))
		scores[cat] = min(0.9, 0.22*float64(hits))
	}

	ownTriggers := map[string][]string{
		"toxicity":    cfg.toxicityTriggers,
		"threat":      cfg.threatTriggers,
		"scam":        cfg.scamTriggers,
		"recruitment": cfg.recruitmentTriggers,
		"drugs":       cfg.drugTriggers,
		"terrorism":   cfg.terrorismTriggers,
	}
	for cat, triggers := range ownTriggers {
		hits := countTriggerHits(lower, triggers)
		if hits == 0 {
			continue
		}
		rule := ownTriggerRules[cat]
		score := min(rule.cap, rule.base+rule.step*float64(hits))
		if score > scores[cat] {
			scores[cat] = score
		}
	}

	crossTriggers := map[string][]string{
		"recruitment": cfg.recruitmentTriggers,
		"drugs":       cfg.drugTriggers,
		"terrorism":   cfg.terrorismTriggers,
	}
	for cat, triggers := range crossTriggers {
		hits := countTriggerHits(lower, triggers)
		if hits == 0 {
			continue
		}
		rule := threatCrossContribution[cat]
		score := min(rule.cap, rule.base+rule.step*float64(hits))
		if score > scores["threat"] {
			scores["threat"] = score
		}
	}

	if hits := countTriggerHits(lower, cfg.keywords); hits > 0 {
		bonus := min(0.98, 0.35+cfg.keywordHitBoost*float64(hits))
		if bonus > scores["scam"] {
			scores["scam"] = bonus
		}
	}

	if containsURL(lower) && containsAny(lower, scamURLContextTerms) {
		floor := min(0.98, 0.6+cfg.urlScamBoost)
		if floor > scores["scam"] {
			scores["scam"] = floor
		}
	}

	return scores
}

func containsURL(lower string) bool {
	return strings.Contains(lower, "http://") || strings.Contains(lower, "https://")
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// countTriggerHits counts how many of triggers fire against lower (already
// lowercased text). Single-token triggers match on Unicode word boundaries;
// multi-word triggers match as a plain substring.
func countTriggerHits(lower string, triggers []string) int {
	hits := 0
	for _, trigger := range triggers {
		t := strings.ToLower(strings.TrimSpace(trigger))
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, " \t") {
			if strings.Contains(lower, t) {
				hits++
			}
			continue
		}
		if wholeWordContains(lower, t) {
			hits++
		}
	}
	return hits
}

// wholeWordContains reports whether word occurs in text bounded by
// non-letter/non-digit runes (or string edges) on both sides.
func wholeWordContains(text, word string) bool {
	runes := []rune(text)
	wordRunes := []rune(word)
	n := len(wordRunes)
	if n == 0 {
		return false
	}
	for i := 0; i+n <= len(runes); i++ {
		if string(runes[i:i+n]) != word {
			continue
		}
		beforeOK := i == 0 || !isWordRune(runes[i-1])
		afterOK := i+n == len(runes) || !isWordRune(runes[i+n])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
