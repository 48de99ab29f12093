package models

// Journey actors.
const (
	ActorRouter     = "router"
	ActorPerplexity = "perplexity"
	ActorCodeRunner = "code_runner"
	ActorOverseer   = "overseer"
)

// JourneyStep is one processing step of a run. Which payload fields are
// populated depends on the actor.
type JourneyStep struct {
	Step      FlexInt   `json:"step"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitempty"`

	Prompt       string `json:"prompt,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Response     Scalar `json:"response,omitempty"`

	// router
	Solvers StringList `json:"solvers,omitempty"`
	Reason  string     `json:"reason,omitempty"`

	// code_runner
	Code       string `json:"code,omitempty"`
	CodeOutput string `json:"code_output,omitempty"`

	// overseer
	Verdict      string   `json:"verdict,omitempty"`
	Critique     string   `json:"critique,omitempty"`
	RequireRerun FlexBool `json:"require_rerun,omitempty"`

	Recommendation Scalar         `json:"recommendation,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
