// Package analysis implements the hybrid heuristic + ML classification
// engine: the Analysis Engine and the Classifier Cache that backs it.
package analysis

import "context"

// Categories lists the six risk categories in the fixed tie-break order
// used when two final scores are equal.
var Categories = []string{"toxicity", "threat", "scam", "recruitment", "drugs", "terrorism"}

// Result is the outcome of analyzing one message.
type Result struct {
	Type            string
	Score           float64
	Scores          map[string]float64
	HeuristicScores map[string]float64
	ModelScores     map[string]float64
	Thresholds      map[string]float64
}

// LabelScore is one raw (label, confidence) pair returned by a classifier.
type LabelScore struct {
	Label string
	Score float64
}

// ClassifyRequest is what the Analysis Engine sends to an InferenceRunner
// for one message.
type ClassifyRequest struct {
	ModelID            string
	Text               string
	Task               string
	TopK               int
	CandidateLabels    []string
	HypothesisTemplate string
	MultiLabel         bool
}

// ClassifyResponse carries the normalized label/score pairs a classifier
// returned for one request.
type ClassifyResponse struct {
	Labels []LabelScore
}

// InferenceRunner is the ONNX (or any other) inference collaborator. Only
// its calling contract matters to this package — the runtime itself is an
// external collaborator per the Non-goals.
type InferenceRunner interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}
