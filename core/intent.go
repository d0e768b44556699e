package core

// IntentLabel enumerates the fixed set of intents the router can produce.
type IntentLabel string

const (
	// IntentDiagnosis routes to the structured diagnosis-report pipeline.
	IntentDiagnosis IntentLabel = "diagnosis"
	// IntentQA routes to the question-answering pipeline.
	IntentQA IntentLabel = "qa"
	// IntentReasoning marks multi-step reasoning queries; these currently
	// execute through the QA pipeline.
	IntentReasoning IntentLabel = "reasoning"
	// IntentUnknown means no intent could be determined.
	IntentUnknown IntentLabel = "unknown"
)

// ClassifyMethod records which classification path produced an Intent.
type ClassifyMethod string

const (
	// MethodFewShotCoT is the primary model-backed few-shot chain-of-thought path.
	MethodFewShotCoT ClassifyMethod = "few_shot_cot"
	// MethodRuleBased is the deterministic keyword fallback path.
	MethodRuleBased ClassifyMethod = "rule_based"
)

// Intent is the router's classification of a query. LowConfidence is set when
// Confidence falls below the configured threshold; whether to proceed or ask a
// clarifying question is the orchestrator's decision, not the router's.
type Intent struct {
	Label         IntentLabel    `json:"label"`
	Confidence    float64        `json:"confidence"`
	Method        ClassifyMethod `json:"method"`
	LowConfidence bool           `json:"low_confidence"`
	Rationale     string         `json:"rationale,omitempty"`
}
