package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gridwise/diagmesh/core"
)

// Reranker scores documents against a query in a second pass. The returned
// slice is aligned with the input documents. Errors mean the reranker is
// unavailable; callers keep the fused order in that case.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// HTTPReranker calls a Cohere-style rerank endpoint.
type HTTPReranker struct {
	client *http.Client
	url    string
	apiKey string
	model  string
}

// HTTPRerankerOptions configure the remote rerank endpoint.
type HTTPRerankerOptions struct {
	URL    string
	APIKey string
	Model  string
	Client *http.Client
}

// NewHTTPReranker creates a reranker against a hosted rerank API.
func NewHTTPReranker(opts HTTPRerankerOptions) *HTTPReranker {
	if opts.URL == "" {
		opts.URL = "https://api.cohere.ai/v1/rerank"
	}
	if opts.Model == "" {
		opts.Model = "rerank-multilingual-v3.0"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &HTTPReranker{
		client: opts.Client,
		url:    opts.URL,
		apiKey: opts.APIKey,
		model:  opts.Model,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements Reranker.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: api returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(documents) {
			return nil, fmt.Errorf("rerank: result index %d out of range", result.Index)
		}
		scores[result.Index] = result.RelevanceScore
	}
	return scores, nil
}

const rerankSystemPrompt = `你是一个专业的相关性评估助手。给定一个查询和若干文档片段，为每个片段的相关性打分。

要求：
1. 分数范围0到10，10表示完全相关
2. 每行一个分数，顺序与片段一致
3. 只返回分数，不要解释`

// GeneratorReranker scores documents with an LLM when no dedicated rerank
// service is available.
type GeneratorReranker struct {
	generator core.Generator
}

// NewGeneratorReranker creates a reranker backed by a generator.
func NewGeneratorReranker(generator core.Generator) *GeneratorReranker {
	return &GeneratorReranker{generator: generator}
}

// Rerank implements Reranker.
func (r *GeneratorReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	prompt.WriteString("查询：" + query + "\n\n")
	for i, doc := range documents {
		fmt.Fprintf(&prompt, "片段%d：%s\n\n", i+1, doc)
	}
	prompt.WriteString("请为每个片段打分：")

	resp, err := r.generator.Generate(ctx, core.GenerateRequest{
		System: rerankSystemPrompt,
		Prompt: prompt.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: generate scores: %w", err)
	}

	scores := make([]float64, 0, len(documents))
	for _, line := range strings.Split(resp.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		score, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		scores = append(scores, score)
		if len(scores) == len(documents) {
			break
		}
	}
	if len(scores) != len(documents) {
		return nil, fmt.Errorf("rerank: got %d scores for %d documents", len(scores), len(documents))
	}
	return scores, nil
}
