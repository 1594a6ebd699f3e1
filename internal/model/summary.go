package model

// SummarizedMessage is one entry of the bounded structured summary the
// summarizer produces from raw history. Summaries are rebuilt per request and
// never persisted.
type SummarizedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Routing decision values.
const (
	DecisionHuman = "human"
	DecisionAgent = "agent"
)

// HandoffDecision is the classifier's routing verdict for one incoming
// customer message. Transient: consumed immediately by the orchestrator.
type HandoffDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}
