package analysis

import (
	"context"
	"testing"

	"github.com/basket/sentinel/internal/settings"
)

// zeroRunner always reports an empty classification, exercising the
// "model scores all zero" path so heuristics alone decide the verdict.
type zeroRunner struct{}

func (zeroRunner) Classify(context.Context, ClassifyRequest) (ClassifyResponse, error) {
	return ClassifyResponse{}, nil
}

type staticInstantiator struct{ runner InferenceRunner }

func (s staticInstantiator) Instantiate(context.Context, settings.ModelDef) (InferenceRunner, error) {
	return s.runner, nil
}

func newTestEngine() *Engine {
	cache := NewCache(staticInstantiator{runner: zeroRunner{}})
	return NewEngine(cache, nil)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	e := newTestEngine()
	s := settings.Normalize(settings.Defaults())

	res := e.Analyze(context.Background(), "   ", s)
	if res.Type != "safe" || res.Score != 0.99 {
		t.Fatalf("expected safe/0.99 for empty input, got %+v", res)
	}
	for _, cat := range Categories {
		if res.Scores[cat] != 0 {
			t.Fatalf("expected zero score for %s, got %v", cat, res.Scores[cat])
		}
	}
}

func TestAnalyze_ScenarioSuite(t *testing.T) {
	e := newTestEngine()
	s := settings.Normalize(settings.Defaults())

	cases := []struct {
		name     string
		text     string
		wantType string
		minScore float64
	}{
		{"toxicity", "Ты идиот и ничтожество, тебя все ненавидят.", "toxicity", 0.72},
		{"threat", "Я тебя убью, если еще раз напишешь.", "threat", 0.72},
		{"scam", "Гарантированный доход 15% в день, только сегодня, переведи usdt.", "scam", 0.70},
		{"recruitment", "Ищем людей в закрытую группу для специальных задач.", "recruitment", 0.74},
		{"drugs", "Продам мефедрон, есть закладки по городу.", "drugs", 0.74},
		{"terrorism", "Готовим теракт в людном месте, нужен исполнитель.", "terrorism", 0.76},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Analyze(context.Background(), tc.text, s)
			if res.Type != tc.wantType {
				t.Fatalf("%q: expected verdict %s, got %s (scores=%v)", tc.text, tc.wantType, res.Type, res.Scores)
			}
			if res.Score < tc.minScore {
				t.Fatalf("%q: expected score >= %.2f, got %.2f", tc.text, tc.minScore, res.Score)
			}
		})
	}
}

func TestAnalyze_ScoresAndThresholdsInRange(t *testing.T) {
	e := newTestEngine()
	s := settings.Normalize(settings.Defaults())

	res := e.Analyze(context.Background(), "Просто обычное сообщение без ничего особенного.", s)
	for _, cat := range Categories {
		if res.Scores[cat] < 0 || res.Scores[cat] > 1 {
			t.Fatalf("score for %s out of range: %v", cat, res.Scores[cat])
		}
		if res.Thresholds[cat] <= 0 || res.Thresholds[cat] >= 1 {
			t.Fatalf("threshold for %s out of (0,1): %v", cat, res.Thresholds[cat])
		}
	}
	found := false
	for _, cat := range append(append([]string{}, Categories...), "safe") {
		if res.Type == cat {
			found = true
		}
	}
	if !found {
		t.Fatalf("verdict %q not in the seven-category set", res.Type)
	}
}

func TestAnalyze_NonSafeVerdictMeetsItsThreshold(t *testing.T) {
	e := newTestEngine()
	s := settings.Normalize(settings.Defaults())

	res := e.Analyze(context.Background(), "Я тебя убью, если еще раз напишешь.", s)
	if res.Type == "safe" {
		t.Fatal("expected a non-safe verdict for this input")
	}
	if res.Scores[res.Type] < res.Thresholds[res.Type] {
		t.Fatalf("verdict %s score %v below its own threshold %v", res.Type, res.Scores[res.Type], res.Thresholds[res.Type])
	}
}

func TestAnalyze_CriticalOverrideReinstatesFinalScore(t *testing.T) {
	e := newTestEngine()
	s := settings.Normalize(settings.Defaults())
	s.EnableCriticalPatterns = true
	s.CriticalHitFloor = 88
	s.ModelWeight = 90
	s.HeuristicWeight = 10

	res := e.Analyze(context.Background(), "Готовим теракт в людном месте, нужен исполнитель.", s)
	if res.HeuristicScores["terrorism"] < 0.88 {
		t.Fatalf("expected critical override to raise heuristic score, got %v", res.HeuristicScores["terrorism"])
	}
	if res.Scores["terrorism"] < res.HeuristicScores["terrorism"] {
		t.Fatalf("final score %v should be >= heuristic score %v once reinstated", res.Scores["terrorism"], res.HeuristicScores["terrorism"])
	}
}

func TestDecide_TieBreakOrder(t *testing.T) {
	final := map[string]float64{
		"toxicity":    0.8,
		"threat":      0.8,
		"scam":        0.8,
		"recruitment": 0.8,
		"drugs":       0.8,
		"terrorism":   0.8,
	}
	thresholds := map[string]float64{
		"toxicity":    0.6,
		"threat":      0.6,
		"scam":        0.6,
		"recruitment": 0.6,
		"drugs":       0.6,
		"terrorism":   0.6,
	}
	cat, _ := decide(final, thresholds)
	if cat != "toxicity" {
		t.Fatalf("expected toxicity to win the tie-break, got %s", cat)
	}
}
