// Package settings owns the persisted configuration singleton: loading,
// saving, and normalizing the document that drives the Analysis Engine and
// the Ingestion Runtime.
package settings

// defaultTargetChat is used when neither the active mode's target list nor
// the legacy targetChats field yields anything.
const defaultTargetChat = "-1003803680927"

const defaultModelID = "toxic-bert-multi"

// AuthMode selects which Telegram collaborator the Ingestion Runtime drives.
type AuthMode string

const (
	AuthModeBot  AuthMode = "bot"
	AuthModeUser AuthMode = "user"
)

// CategoryThresholds maps each risk category to its own 1..99 percent
// threshold; zero means "use the global threatThreshold instead".
type CategoryThresholds struct {
	Toxicity    int `json:"toxicity"`
	Threat      int `json:"threat"`
	Scam        int `json:"scam"`
	Recruitment int `json:"recruitment"`
	Drugs       int `json:"drugs"`
	Terrorism   int `json:"terrorism"`
}

// Proxy is descriptive only for the core engine; it is carried through
// load/save/normalize untouched by the Analysis Engine.
type Proxy struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"`
	Host    string `json:"host"`
	Port    string `json:"port"`
	User    string `json:"user"`
	Pass    string `json:"pass"`
}

// Media is descriptive only; carried through untouched.
type Media struct {
	DownloadPhotos bool `json:"downloadPhotos"`
	DownloadFiles  bool `json:"downloadFiles"`
	MaxFileSizeMB  int  `json:"maxFileSizeMb"`
}

// Settings is the singleton configuration document persisted as
// admin-settings.json.
type Settings struct {
	// Telegram credentials.
	APIID         string   `json:"apiId"`
	APIHash       string   `json:"apiHash"`
	AuthMode      AuthMode `json:"authMode"`
	BotToken      string   `json:"botToken"`
	SessionString string   `json:"sessionString"`
	SessionName   string   `json:"sessionName"`

	// Targets.
	BotTargetChats      []string `json:"botTargetChats"`
	UserTargetChats     []string `json:"userTargetChats"`
	TargetChats         []string `json:"targetChats"`
	UserAuthAllMessages bool     `json:"userAuthAllMessages"`

	Proxy Proxy `json:"proxy"`
	Media Media `json:"media"`

	// Engine knobs.
	MLModel                string             `json:"mlModel"`
	ThreatThreshold        int                `json:"threatThreshold"`
	CategoryThresholds     CategoryThresholds `json:"categoryThresholds"`
	EnableHeuristics       bool               `json:"enableHeuristics"`
	EnableCriticalPatterns bool               `json:"enableCriticalPatterns"`
	ModelWeight            int                `json:"modelWeight"`
	HeuristicWeight        int                `json:"heuristicWeight"`
	ModelTopK              int                `json:"modelTopK"`
	MaxAnalysisChars       int                `json:"maxAnalysisChars"`
	URLScamBoost           int                `json:"urlScamBoost"`
	KeywordHitBoost        int                `json:"keywordHitBoost"`
	CriticalHitFloor       int                `json:"criticalHitFloor"`

	Keywords            []string `json:"keywords"`
	ScamTriggers        []string `json:"scamTriggers"`
	DrugTriggers        []string `json:"drugTriggers"`
	RecruitmentTriggers []string `json:"recruitmentTriggers"`
	TerrorismTriggers   []string `json:"terrorismTriggers"`
	ThreatTriggers      []string `json:"threatTriggers"`
	ToxicityTriggers    []string `json:"toxicityTriggers"`
}

// Defaults returns the settings document written on first cold start.
func Defaults() Settings {
	return Settings{
		AuthMode:               AuthModeBot,
		SessionName:            "sentinel",
		TargetChats:            []string{defaultTargetChat},
		MLModel:                defaultModelID,
		ThreatThreshold:        60,
		EnableHeuristics:       true,
		EnableCriticalPatterns: true,
		ModelWeight:            55,
		HeuristicWeight:        45,
		ModelTopK:              5,
		MaxAnalysisChars:       1000,
		URLScamBoost:           10,
		KeywordHitBoost:        5,
		CriticalHitFloor:       88,
	}
}
