package diagmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/model"
)

func TestNewWithDefaults(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	require.NoError(t, m.AddDocuments(context.Background(),
		core.Document{ID: "doc-1", Text: "变压器短路试验用于测定短路阻抗和负载损耗。"},
		core.Document{ID: "doc-2", Text: "断路器的分闸时间应定期检测。"},
	))
	assert.Equal(t, 0, m.ActiveRuns())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Config.SparseWeight = 0.9
		o.Config.DenseWeight = 0.9
	})
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEndToEndQARun(t *testing.T) {
	gen := model.NewMockGenerator("dev", "mock")
	gen.AddResponse("用户查询：变压器短路试验", "知识问答 | qa | 0.9")
	gen.AddResponse("用户问题：变压器短路试验", "短路试验用于测定短路阻抗和负载损耗。")

	m, err := New(func(o *Options) {
		o.Generator = gen
	})
	require.NoError(t, err)
	require.NoError(t, m.AddDocuments(context.Background(),
		core.Document{ID: "doc-1", Text: "变压器短路试验用于测定短路阻抗和负载损耗。"},
		core.Document{ID: "doc-2", Text: "断路器的分闸时间应定期检测。"},
	))

	result, err := m.Run(context.Background(), core.Query{Text: "变压器短路试验的目的是什么", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, core.IntentQA, result.Intent.Label)
	assert.Contains(t, result.Answer, "doc-1")
	require.NotNil(t, result.Retrieval)
	assert.NotEmpty(t, result.Retrieval.Chunks)
}

func TestAddDocumentsRejectedForExternalIndexes(t *testing.T) {
	m, err := New(func(o *Options) {
		o.LexicalIndex = failingIndex{}
		o.VectorIndex = failingIndex{}
	})
	require.NoError(t, err)
	assert.Error(t, m.AddDocuments(context.Background(), core.Document{ID: "d", Text: "t"}))
}

type failingIndex struct{}

func (failingIndex) Search(ctx context.Context, query string, limit int) ([]core.Candidate, error) {
	return nil, nil
}
