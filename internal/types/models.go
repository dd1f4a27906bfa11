package types

import "time"

// JobStatus tracks one call through the audit pipeline. Transitions are
// strictly forward; failed is reachable from any non-terminal state.
type JobStatus string

const (
	StatusUploaded          JobStatus = "uploaded"
	StatusTranscribing      JobStatus = "transcribing"
	StatusAnalyzingMetrics  JobStatus = "analyzing_metrics"
	StatusDetectingTriggers JobStatus = "detecting_triggers"
	StatusBuildingRubric    JobStatus = "building_rubric"
	StatusScoring           JobStatus = "scoring"
	StatusAssembling        JobStatus = "assembling"
	StatusDone              JobStatus = "done"
	StatusFailed            JobStatus = "failed"
)

// Job is one uploaded call recording tracked by status. The pipeline only
// mutates its status; deletion is an external concern.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	AudioPath  string    `json:"audio_path"`
	RubricPath string    `json:"rubric_path,omitempty"`
	Language   string    `json:"language"` // "auto" or ISO code
	WebhookURL string    `json:"webhook_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcript is produced once by the transcription stage and immutable after.
type Transcript struct {
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Duration   float64   `json:"duration"` // seconds, 0 if undetected
	Segments   []Segment `json:"segments"`
	Confidence float64   `json:"confidence"` // exp(mean segment logprob), 0 without segments
}

// TriggerEvent is one lexicon or audio hit inside the call.
type TriggerEvent struct {
	Type    string         `json:"type"`
	Term    string         `json:"term,omitempty"`
	TStart  float64        `json:"t_start"`
	TEnd    *float64       `json:"t_end"`
	Speaker string         `json:"speaker"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// AudioMetrics carries the flat measurement map plus detected silence windows.
type AudioMetrics struct {
	Values   map[string]float64 `json:"values"`
	Silences []Interval         `json:"silences"`
}

type Criterion struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Max   float64 `json:"max"`
}

type EthicsCriterion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Fatal bool   `json:"fatal"`
}

// Rubric holds the scoring criteria applied to a call. Criterion ids must be
// unique across the three blocks.
type Rubric struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Mandatory []Criterion       `json:"mandatory"`
	General   []Criterion       `json:"general"`
	Ethics    []EthicsCriterion `json:"ethics"`
}

type CallMeta struct {
	CallType   string  `json:"call_type"`
	Language   string  `json:"language"`
	Duration   float64 `json:"duration_sec"`
	AgentName  string  `json:"agent_name"`
	ClientName string  `json:"client_name"`
}

type CriterionScore struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Max      float64  `json:"max"`
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence"`
	Comment  string   `json:"comment"`
}

type EthicsCheck struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Violation bool     `json:"violation"`
	Evidence  []string `json:"evidence"`
	Comment   string   `json:"comment"`
}

type Blocks struct {
	Mandatory []CriterionScore `json:"mandatory"`
	General   []CriterionScore `json:"general"`
	Ethics    []EthicsCheck    `json:"ethics"`
}

type LexiconHit struct {
	Type     string  `json:"type"`
	Term     string  `json:"term"`
	TStart   float64 `json:"t_start"`
	Speaker  string  `json:"speaker"`
	Quote    string  `json:"quote"`
	Severity string  `json:"severity"`
}

type AudioEvent struct {
	Kind     string  `json:"kind"`
	TStart   float64 `json:"t_start"`
	TEnd     float64 `json:"t_end"`
	Severity string  `json:"severity"`
}

type TriggerSection struct {
	LexiconHits []LexiconHit `json:"lexicon_hits"`
	AudioEvents []AudioEvent `json:"audio_events"`
}

type Scores struct {
	MandatoryAvg    float64 `json:"mandatory_avg"`
	GeneralAvg      float64 `json:"general_avg"`
	EthicsFlag      bool    `json:"ethics_flag"`
	FinalScore      float64 `json:"final_score"`
	EthicsDeduction float64 `json:"ethics_deduction,omitempty"`
}

type Recommendation struct {
	When    string `json:"when"`
	Tip     string `json:"tip"`
	Example string `json:"example"`
}

// ScoreResult is the scoring service's raw output. It is untrusted: the report
// assembler re-derives the ethics flag and final score instead of taking the
// service's arithmetic at face value.
type ScoreResult struct {
	CallMeta        CallMeta           `json:"call_meta"`
	Blocks          Blocks             `json:"blocks"`
	Triggers        TriggerSection     `json:"triggers"`
	Scores          Scores             `json:"scores"`
	Recommendations []Recommendation   `json:"recommendations"`
	Diagnostics     map[string]float64 `json:"diagnostics"`
}

type Summary struct {
	TotalCriteria    int     `json:"total_criteria"`
	PassedCriteria   int     `json:"passed_criteria"`
	PassRate         float64 `json:"pass_rate"`
	EthicsViolations int     `json:"ethics_violations"`
	TriggerCount     int     `json:"trigger_count"`
}

// Report is the final audit artifact: the score result with a recomputed
// scores block and pass/fail summary. At most one per job.
type Report struct {
	ScoreResult
	Summary Summary `json:"summary"`
}
