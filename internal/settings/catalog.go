package settings

// Task names the inference pipeline shape a model exposes.
type Task string

const (
	TaskTextClassification     Task = "text-classification"
	TaskZeroShotClassification Task = "zero-shot-classification"
)

// ZeroShotLabel is the natural-language candidate label a zero-shot model
// uses to stand in for one internal risk category.
type ZeroShotLabel struct {
	Category string
	Label    string
}

// InferenceOptions carries the weight-file/runtime hints a model needs when
// instantiated by the Classifier Cache.
type InferenceOptions struct {
	WeightFile string
	Subfolder  string
	DType      string
}

// ModelDef is one Model Catalog entry.
type ModelDef struct {
	ID          string
	Name        string
	Description string
	Repository  string
	Task        Task
	Options     InferenceOptions

	// Zero-shot only.
	CandidateLabels    []ZeroShotLabel
	HypothesisTemplate string
	MultiLabel         bool

	// LabelHints maps each risk category to substrings that identify a raw
	// classifier label as belonging to that category.
	LabelHints map[string][]string
}

// ModelCatalog is the static, compiled-in set of classifier models this
// build knows how to instantiate.
var ModelCatalog = map[string]ModelDef{
	defaultModelID: {
		ID:          defaultModelID,
		Name:        "Multilingual Toxic-BERT",
		Description: "Text-classification model fine-tuned for toxic and abusive language across multiple languages.",
		Repository:  "textdetox/xlmr-large-toxicity-classifier",
		Task:        TaskTextClassification,
		Options:     InferenceOptions{WeightFile: "model.onnx", DType: "q8"},
		LabelHints: map[string][]string{
			"toxicity": {"toxic", "label_1", "insult", "abuse"},
		},
	},
	"zero-shot-multilingual": {
		ID:          "zero-shot-multilingual",
		Name:        "Zero-Shot Multilingual Risk Classifier",
		Description: "General-purpose NLI zero-shot model used to score arbitrary candidate risk labels.",
		Repository:  "MoritzLaurer/mDeBERTa-v3-base-mnli-xnli",
		Task:        TaskZeroShotClassification,
		Options:     InferenceOptions{WeightFile: "onnx/model_quantized.onnx"},
		CandidateLabels: []ZeroShotLabel{
			{Category: "toxicity", Label: "toxic or abusive language"},
			{Category: "threat", Label: "a direct threat of violence"},
			{Category: "scam", Label: "a financial scam or fraud solicitation"},
			{Category: "recruitment", Label: "recruitment into a closed or criminal group"},
			{Category: "drugs", Label: "sale or solicitation of illegal drugs"},
			{Category: "terrorism", Label: "planning or incitement of a terrorist act"},
		},
		HypothesisTemplate: "This message is {}.",
		MultiLabel:         true,
		LabelHints: map[string][]string{
			"toxicity":    {"toxic", "abusive"},
			"threat":      {"threat", "violence"},
			"scam":        {"scam", "fraud"},
			"recruitment": {"recruit"},
			"drugs":       {"drug"},
			"terrorism":   {"terror"},
		},
	},
}

// DefaultModelID is the fallback model id used whenever a configured id is
// unknown or unset.
func DefaultModelID() string { return defaultModelID }
