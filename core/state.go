package core

// Message is an entry in the running prompt transcript of a pipeline run.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AgentState is the mutable record threaded through one pipeline run. Exactly
// one instance exists per run and it is exclusively owned by the orchestrator
// for the run's lifetime; nodes receive it read-only and return a StateDelta
// with only the fields they changed.
type AgentState struct {
	RunID string `json:"run_id"`
	Query Query  `json:"query"`

	Intent    Intent           `json:"intent"`
	Retrieval *RetrievalResult `json:"retrieval,omitempty"`

	// Fields holds intermediate string results keyed by name: analysis
	// findings, extracted report fields, device hints.
	Fields map[string]string `json:"fields,omitempty"`

	Answer     string `json:"answer,omitempty"`
	ReportPath string `json:"report_path,omitempty"`

	Messages []Message     `json:"messages,omitempty"`
	Errors   []ErrorRecord `json:"errors,omitempty"`
}

// NewAgentState creates the initial state for a run.
func NewAgentState(q Query) *AgentState {
	return &AgentState{
		RunID:  NewID(),
		Query:  q,
		Fields: map[string]string{},
	}
}

// StateDelta is the partial update a node returns. Nil pointers and empty
// collections mean "unchanged"; a field is never implicitly cleared by
// omission. Messages and Errors append; Fields merges key-wise.
type StateDelta struct {
	Intent     *Intent
	Retrieval  *RetrievalResult
	Fields     map[string]string
	Answer     *string
	ReportPath *string
	Messages   []Message
	Errors     []ErrorRecord
}

// Apply shallow-merges the delta into the state. Later nodes override a field
// only when they explicitly set it.
func (s *AgentState) Apply(d StateDelta) {
	if d.Intent != nil {
		s.Intent = *d.Intent
	}
	if d.Retrieval != nil {
		s.Retrieval = d.Retrieval
	}
	if len(d.Fields) > 0 {
		if s.Fields == nil {
			s.Fields = map[string]string{}
		}
		for k, v := range d.Fields {
			s.Fields[k] = v
		}
	}
	if d.Answer != nil {
		s.Answer = *d.Answer
	}
	if d.ReportPath != nil {
		s.ReportPath = *d.ReportPath
	}
	s.Messages = append(s.Messages, d.Messages...)
	s.Errors = append(s.Errors, d.Errors...)
}

// StringPtr is a convenience for populating optional delta fields.
func StringPtr(s string) *string { return &s }
