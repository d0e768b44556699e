package retrieval

import (
	"context"
	"strings"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
)

const rewriteSystemPrompt = `你是一个专业的查询优化助手。将用户的查询重写为更清晰、更具体、更适合检索的表述。

要求：
1. 保持原意不变
2. 使用专业术语
3. 补充省略的上下文
4. 使查询更完整
5. 只返回重写后的查询，不要解释`

const multiQuerySystemPrompt = `你是一个专业的查询扩展助手。基于用户的原始查询，生成多个不同角度的查询变体。

要求：
1. 每个查询从不同角度阐述问题
2. 使用同义词和相关概念
3. 包含不同的表述方式（问题描述、原因分析、解决方案等）
4. 每行一个查询
5. 只返回查询列表，不要编号`

// QueryExpander rewrites queries before retrieval. Expansion is best-effort:
// every failure degrades to the original query, never to an error.
type QueryExpander struct {
	generator core.Generator
	logger    *logging.EngineLogger
}

// NewQueryExpander creates an expander backed by the given generator.
func NewQueryExpander(generator core.Generator, logger *logging.EngineLogger) *QueryExpander {
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}
	return &QueryExpander{generator: generator, logger: logger.WithComponent("expander")}
}

// Rewrite produces a cleaner retrieval phrasing of query. On any failure or
// empty output the original query is returned unchanged.
func (e *QueryExpander) Rewrite(ctx context.Context, query string) string {
	if e.generator == nil {
		return query
	}
	resp, err := e.generator.Generate(ctx, core.GenerateRequest{
		System: rewriteSystemPrompt,
		Prompt: "原始查询：" + query + "\n\n重写后的查询：",
	})
	if err != nil {
		e.logger.Warn("query rewrite failed: %v", err)
		return query
	}
	rewritten := strings.TrimSpace(resp.Text)
	if rewritten == "" {
		return query
	}
	return rewritten
}

// MultiQuery generates up to n query variants, the original always first.
// Duplicates are removed preserving order. Failures return just the original.
func (e *QueryExpander) MultiQuery(ctx context.Context, query string, n int) []string {
	if e.generator == nil || n <= 1 {
		return []string{query}
	}
	resp, err := e.generator.Generate(ctx, core.GenerateRequest{
		System: multiQuerySystemPrompt,
		Prompt: "原始查询：" + query + "\n\n生成查询变体：",
	})
	if err != nil {
		e.logger.Warn("multi-query generation failed: %v", err)
		return []string{query}
	}

	queries := []string{query}
	seen := map[string]bool{query: true}
	for _, line := range strings.Split(resp.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		queries = append(queries, line)
		if len(queries) == n {
			break
		}
	}
	return queries
}
