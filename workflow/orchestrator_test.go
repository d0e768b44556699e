package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/diagmesh/artifact"
	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/memory"
	"github.com/gridwise/diagmesh/model"
	"github.com/gridwise/diagmesh/report"
	"github.com/gridwise/diagmesh/router"
)

type stubRetriever struct {
	result  *core.RetrievalResult
	err     error
	panics  bool
	release chan struct{}
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) (*core.RetrievalResult, error) {
	if s.panics {
		panic("index corrupted")
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func threeChunks() *core.RetrievalResult {
	return &core.RetrievalResult{
		Chunks: []core.RetrievedChunk{
			{DocumentID: "doc-7", Text: "变压器短路试验用于测定短路阻抗和负载损耗。", FusedScore: 0.9},
			{DocumentID: "doc-2", Text: "短路试验需在额定电流下进行。", FusedScore: 0.7},
			{DocumentID: "doc-9", Text: "试验前应断开所有二次回路。", FusedScore: 0.5},
		},
		QueryUsed: "变压器短路试验的目的是什么",
	}
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.Renderer == nil {
		opts.Renderer = report.NewMarkdownRenderer(artifact.NewInMemoryStore())
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func TestQARunCitesTopChunk(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：变压器短路试验的目的是什么", "属于知识问答 | qa | 0.9")
	gen.AddResponse("用户问题：变压器短路试验的目的是什么", "短路试验的目的是测定短路阻抗和负载损耗，见资料[1]。")

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: gen,
	})

	result, err := o.Run(context.Background(), core.Query{Text: "变压器短路试验的目的是什么", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentQA, result.Intent.Label)
	assert.Contains(t, result.Answer, "doc-7")
	assert.Contains(t, result.Answer, "短路阻抗")
	assert.Empty(t, result.Errors)
}

func TestQARunNoResultsProducesExplicitAnswer(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{err: &core.RetrievalError{Source: "hybrid", Err: core.ErrNoResults}},
		Generator: gen,
	})

	result, err := o.Run(context.Background(), core.Query{Text: "冷门问题", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, result.Answer)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "retrieve", result.Errors[0].Node)
}

func TestDiagnosisRunProducesCompleteReport(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：生成变压器诊断报告", "诊断请求 | diagnosis | 0.95")
	gen.AddResponse("用户请求：生成变压器诊断报告", "油温偏高，绕组温度正常，存在过载风险。")
	gen.AddResponse("分析结论：", `{"health_score": "78", "health_status": "警告", "risk_level": "中", "abstract": "油温偏高"}`)

	store := artifact.NewInMemoryStore()
	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: gen,
		Renderer:  report.NewMarkdownRenderer(store),
	})

	result, err := o.Run(context.Background(), core.Query{Text: "生成变压器诊断报告", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentDiagnosis, result.Intent.Label)
	assert.NotEmpty(t, result.ReportPath)
	assert.Len(t, result.Fields, len(report.FieldNames))
	assert.Equal(t, "警告", result.Fields["health_status"])
	assert.Equal(t, "变压器", result.Fields["device_name"])
	assert.Equal(t, report.Unknown, result.Fields["fault_location"])
	assert.Contains(t, result.Answer, result.Fields["report_id"])

	_, ok := store.Latest(result.Fields["report_id"])
	assert.True(t, ok)
}

func TestDiagnosisRunDegradesWhenGeneratorFails(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.FailWith(errors.New("model offline"))

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: gen,
	})

	result, err := o.Run(context.Background(), core.Query{Text: "生成变压器诊断报告", SessionID: "s1"})
	require.NoError(t, err)
	// Rules classified; analyze and extract recorded failures but the run
	// still composed a report with sentinel fields.
	assert.Equal(t, core.MethodRuleBased, result.Intent.Method)
	assert.NotEmpty(t, result.Answer)
	assert.NotEmpty(t, result.ReportPath)
	assert.Equal(t, report.Unknown, result.Fields["health_status"])
	assert.NotEmpty(t, result.Errors)
}

func TestUnknownIntentReturnsClarification(t *testing.T) {
	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: model.NewMockGenerator("mock", "mock"),
	})

	result, err := o.Run(context.Background(), core.Query{Text: "你好", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentUnknown, result.Intent.Label)
	assert.Equal(t, ClarifyText, result.Answer)
	assert.Nil(t, result.Retrieval)
}

func TestPanickingNodeIsContained(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{panics: true},
		Generator: gen,
	})

	result, err := o.Run(context.Background(), core.Query{Text: "任意问题", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, result.Answer)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "panicked")
}

func TestMemoryWrittenOnlyOnSuccess(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")
	gen.AddResponse("用户问题：", "短路试验用于测定短路阻抗。")
	mem := memory.NewInMemoryStore(10)

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: gen,
		Memory:    mem,
	})

	_, err := o.Run(context.Background(), core.Query{Text: "变压器短路试验", SessionID: "s1"})
	require.NoError(t, err)

	turns := mem.RecentTurns("s1", 10)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
}

func TestClarificationDoesNotTouchMemory(t *testing.T) {
	mem := memory.NewInMemoryStore(10)
	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{}),
		Retriever: &stubRetriever{result: threeChunks()},
		Generator: model.NewMockGenerator("mock", "mock"),
		Memory:    mem,
	})

	_, err := o.Run(context.Background(), core.Query{Text: "你好", SessionID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, mem.RecentTurns("s1", 10))
}

func TestRunSlotWaitRespectsContext(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")
	release := make(chan struct{})

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks(), release: release},
		Generator: gen,
		Config:    Config{MaxConcurrentRuns: 1},
	})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = o.Run(context.Background(), core.Query{Text: "占用运行槽", SessionID: "s1"})
		close(done)
	}()
	<-started
	// Wait for the first run to hold the slot.
	for o.ActiveRuns() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Run(ctx, core.Query{Text: "排队的请求", SessionID: "s2"})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestStopCancelsActiveRun(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")
	release := make(chan struct{})
	defer close(release)

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks(), release: release},
		Generator: gen,
	})

	results := make(chan *Result, 1)
	go func() {
		r, _ := o.Run(context.Background(), core.Query{Text: "长时间运行", SessionID: "s1"})
		results <- r
	}()
	for o.ActiveRuns() == 0 {
		time.Sleep(time.Millisecond)
	}

	o.runsMu.RLock()
	var runID string
	for id := range o.activeRuns {
		runID = id
	}
	o.runsMu.RUnlock()

	require.NoError(t, o.Stop(runID))
	result := <-results
	// A stopped run takes the failure terminal with the error recorded.
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Errors)
	assert.Equal(t, FailureText, result.Answer)

	assert.Error(t, o.Stop("missing-run"))
}

func TestStopLeavesMemoryUntouched(t *testing.T) {
	gen := model.NewMockGenerator("mock", "mock")
	gen.AddResponse("用户查询：", "问答 | qa | 0.9")
	release := make(chan struct{})
	defer close(release)
	mem := memory.NewInMemoryStore(10)

	o := newOrchestrator(t, Options{
		Router:    router.New(router.Options{Generator: gen}),
		Retriever: &stubRetriever{result: threeChunks(), release: release},
		Generator: gen,
		Memory:    mem,
	})

	results := make(chan *Result, 1)
	go func() {
		r, _ := o.Run(context.Background(), core.Query{Text: "长时间运行", SessionID: "s1"})
		results <- r
	}()
	for o.ActiveRuns() == 0 {
		time.Sleep(time.Millisecond)
	}

	o.runsMu.RLock()
	var runID string
	for id := range o.activeRuns {
		runID = id
	}
	o.runsMu.RUnlock()

	require.NoError(t, o.Stop(runID))
	<-results
	assert.Empty(t, mem.RecentTurns("s1", 10))
}
