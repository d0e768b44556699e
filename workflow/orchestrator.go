package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
	"github.com/gridwise/diagmesh/report"
	"github.com/gridwise/diagmesh/router"
)

// ClarifyText is the reply for unclassifiable or low-confidence queries.
const ClarifyText = "无法确定您的问题类型，请补充更具体的描述，例如需要诊断的设备或想了解的知识点。"

// FailureText is the best-effort reply when a run hits an unrecoverable
// internal error.
const FailureText = "处理您的请求时出现内部错误，未能得出完整结论，请稍后重试。"

// Result is the terminal output of a pipeline run. Every run produces
// exactly one Result; internal errors degrade its quality but never replace
// it with a fault.
type Result struct {
	RunID      string                `json:"run_id"`
	Intent     core.Intent           `json:"intent"`
	Answer     string                `json:"answer"`
	Fields     map[string]string     `json:"fields,omitempty"`
	ReportPath string                `json:"report_path,omitempty"`
	Retrieval  *core.RetrievalResult `json:"retrieval,omitempty"`
	Errors     []core.ErrorRecord    `json:"errors,omitempty"`
	Duration   time.Duration         `json:"duration"`
}

// Config tunes orchestrator behavior.
type Config struct {
	// RetrievalK bounds chunks fetched per run.
	RetrievalK int
	// MaxConcurrentRuns bounds simultaneous runs. 0 means unlimited.
	MaxConcurrentRuns int
	// RenderTimeout bounds report rendering. Zero means no bound beyond
	// the run's context.
	RenderTimeout time.Duration
}

// Options configure an Orchestrator.
type Options struct {
	Router    *router.Router
	Retriever core.Retriever
	Generator core.Generator
	Renderer  core.Renderer
	Memory    core.MemoryStore
	Config    Config
	Logger    *logging.EngineLogger
}

// Orchestrator executes pipeline runs. It owns the AgentState for each run's
// lifetime, merges node deltas, and tracks active runs for cancellation.
type Orchestrator struct {
	router *router.Router
	deps   nodeDeps
	config Config
	logger *logging.EngineLogger

	slots chan struct{}

	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// New creates an Orchestrator. Router, Retriever and Generator are required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Router == nil {
		return nil, &core.ConfigError{Field: "Router", Message: "is required"}
	}
	if opts.Retriever == nil {
		return nil, &core.ConfigError{Field: "Retriever", Message: "is required"}
	}
	if opts.Generator == nil {
		return nil, &core.ConfigError{Field: "Generator", Message: "is required"}
	}
	if opts.Config.RetrievalK <= 0 {
		opts.Config.RetrievalK = 5
	}
	if opts.Config.MaxConcurrentRuns < 0 {
		return nil, &core.ConfigError{Field: "MaxConcurrentRuns", Message: "must be >= 0"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}

	var slots chan struct{}
	if opts.Config.MaxConcurrentRuns > 0 {
		slots = make(chan struct{}, opts.Config.MaxConcurrentRuns)
	}

	return &Orchestrator{
		router: opts.Router,
		deps: nodeDeps{
			retriever:     opts.Retriever,
			generator:     opts.Generator,
			renderer:      opts.Renderer,
			memory:        opts.Memory,
			reportIDs:     report.NewIDGenerator(),
			k:             opts.Config.RetrievalK,
			renderTimeout: opts.Config.RenderTimeout,
			logger:        logger.WithComponent("workflow"),
		},
		config:     opts.Config,
		logger:     logger.WithComponent("workflow"),
		slots:      slots,
		activeRuns: make(map[string]context.CancelFunc),
	}, nil
}

// Run executes one pipeline traversal for the query. The only error returned
// is context cancellation while waiting for a run slot; everything that
// happens inside the run degrades into the Result instead.
func (o *Orchestrator) Run(ctx context.Context, query core.Query) (*Result, error) {
	if o.slots != nil {
		select {
		case o.slots <- struct{}{}:
			defer func() { <-o.slots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	state := core.NewAgentState(query)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.runsMu.Lock()
	o.activeRuns[state.RunID] = cancel
	o.runsMu.Unlock()
	defer func() {
		o.runsMu.Lock()
		delete(o.activeRuns, state.RunID)
		o.runsMu.Unlock()
	}()

	start := time.Now()
	logger := o.logger.WithRun(query.SessionID, state.RunID)

	intent := o.router.Classify(runCtx, query)
	state.Apply(core.StateDelta{Intent: &intent})

	var nodes []Node
	switch {
	case intent.Label == core.IntentUnknown || intent.LowConfidence:
		state.Apply(core.StateDelta{Answer: core.StringPtr(ClarifyText)})
	case intent.Label == core.IntentDiagnosis:
		nodes = []Node{
			retrieveNode(o.deps),
			analyzeNode(o.deps),
			extractFieldsNode(o.deps),
			composeReportNode(o.deps),
		}
	default:
		// QA; reasoning queries run the QA pipeline as well.
		nodes = []Node{
			retrieveNode(o.deps),
			synthesizeNode(o.deps),
		}
	}

	failed := false
	for _, node := range nodes {
		delta, err := o.runNode(runCtx, node, state)
		if err != nil {
			state.Apply(core.StateDelta{
				Errors: []core.ErrorRecord{core.NewErrorRecord(node.Name, err)},
			})
			logger.Error("node %s failed: %v", node.Name, err)
			if node.Required {
				failed = true
				break
			}
			continue
		}
		state.Apply(delta)
	}

	// A cancelled run takes the failure terminal: whatever the nodes
	// produced under cancellation is partial and must not reach memory.
	if runCtx.Err() != nil {
		failed = true
	}
	if failed || (len(nodes) > 0 && state.Answer == "") {
		state.Apply(core.StateDelta{Answer: core.StringPtr(FailureText)})
		failed = true
	}

	if !failed && len(nodes) > 0 {
		o.remember(runCtx, state)
	}

	duration := time.Since(start)
	logger.LogPipelineRun(string(intent.Label), len(nodes), duration, len(state.Errors))

	return &Result{
		RunID:      state.RunID,
		Intent:     state.Intent,
		Answer:     state.Answer,
		Fields:     state.Fields,
		ReportPath: state.ReportPath,
		Retrieval:  state.Retrieval,
		Errors:     state.Errors,
		Duration:   duration,
	}, nil
}

// runNode executes one node, converting a panic into an error so no run can
// terminate without a result.
func (o *Orchestrator) runNode(ctx context.Context, node Node, state *core.AgentState) (delta core.StateDelta, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()
	return node.Run(ctx, state)
}

// remember appends the completed exchange to session memory. Memory write
// failures are recorded, never fatal.
func (o *Orchestrator) remember(ctx context.Context, state *core.AgentState) {
	if o.deps.memory == nil || state.Query.SessionID == "" {
		return
	}
	turns := []core.ConversationTurn{
		{Role: core.RoleUser, Content: state.Query.Text},
		{Role: core.RoleAssistant, Content: state.Answer},
	}
	for _, turn := range turns {
		if err := o.deps.memory.AppendTurn(ctx, state.Query.SessionID, turn); err != nil {
			state.Apply(core.StateDelta{
				Errors: []core.ErrorRecord{core.NewErrorRecord("memory", err)},
			})
		}
	}
}

// Stop cancels an active run by id.
func (o *Orchestrator) Stop(runID string) error {
	o.runsMu.RLock()
	cancel, ok := o.activeRuns[runID]
	o.runsMu.RUnlock()
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	cancel()
	return nil
}

// ActiveRuns returns the number of runs currently executing.
func (o *Orchestrator) ActiveRuns() int {
	o.runsMu.RLock()
	defer o.runsMu.RUnlock()
	return len(o.activeRuns)
}
