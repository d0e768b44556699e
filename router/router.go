// Package router classifies user queries into pipeline intents. The primary
// path is few-shot chain-of-thought classification via the generation
// capability; any failure there degrades to a deterministic keyword matcher,
// so classification itself never returns an error.
package router

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/gridwise/diagmesh/config"
	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
)

const classifySystemPrompt = `你是一个专业的意图分类助手。分析用户查询，将其分类为以下几种意图之一：

**意图类型**：
1. **diagnosis** - 设备诊断：用户请求生成诊断报告、分析设备状态、评估健康度、故障诊断等
2. **qa** - 问答：用户询问具体问题、寻求知识解答、概念定义、技术参数等
3. **reasoning** - 推理：需要多步推理、计算、因果分析、综合判断的问题

**分类要求**：
- 参考以下示例，理解分类逻辑
- 逐步分析查询内容
- 识别关键动词和名词
- 评估主要意图
- 输出格式：推理过程 | 意图 | 置信度(0-1)

`

var diagnosisKeywords = []string{
	"诊断", "报告", "分析", "评估", "健康", "故障分析", "状态评估", "生成报告",
	"diagnosis", "report", "analyze", "evaluate", "运行正常", "状态", "检测",
}

var reasoningKeywords = []string{
	"为什么导致", "如果", "计算", "推断", "综合", "多步", "推理", "后果",
	"why", "calculate", "infer", "reasoning", "会怎样", "影响",
}

// Router implements intent classification. It holds no per-call mutable
// state; the generator and example set are fixed at construction.
type Router struct {
	generator core.Generator
	examples  config.IntentExampleSet
	threshold float64
	logger    *logging.EngineLogger
}

// Options configure a Router.
type Options struct {
	// Generator drives the few-shot path. Nil means rule-based only.
	Generator core.Generator
	// Examples is the few-shot set; defaults to the shipped set.
	Examples config.IntentExampleSet
	// ConfidenceThreshold gates the few-shot result. Default 0.5.
	ConfidenceThreshold float64
	Logger              *logging.EngineLogger
}

// New creates a Router.
func New(opts Options) *Router {
	if len(opts.Examples.Examples) == 0 {
		opts.Examples = config.DefaultIntentExamples()
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.5
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}
	return &Router{
		generator: opts.Generator,
		examples:  opts.Examples,
		threshold: opts.ConfidenceThreshold,
		logger:    logger.WithComponent("router"),
	}
}

// Classify determines the intent of a query. It never fails: when the
// few-shot path is unavailable, errors, or yields a result below the
// confidence threshold, the rule-based matcher decides.
func (r *Router) Classify(ctx context.Context, query core.Query) core.Intent {
	if r.generator != nil {
		intent, err := r.classifyFewShot(ctx, query.Text)
		if err != nil {
			cerr := &core.ClassificationError{Query: query.Text, Err: err}
			r.logger.Warn("few-shot classification failed, using rules: %v", cerr)
		} else if intent.Confidence >= r.threshold {
			return intent
		}
	}
	intent := r.classifyRules(query.Text)
	intent.LowConfidence = intent.Confidence < r.threshold
	return intent
}

func (r *Router) classifyFewShot(ctx context.Context, query string) (core.Intent, error) {
	resp, err := r.generator.Generate(ctx, core.GenerateRequest{
		System: classifySystemPrompt + r.examples.Prompt() + "请按照上述格式分析用户查询。",
		Prompt: "用户查询：" + query + "\n\n分析：",
	})
	if err != nil {
		return core.Intent{}, err
	}
	return parseResponse(resp.Text)
}

var (
	numberPattern = regexp.MustCompile(`0?\.\d+|\d+`)
	errMalformed  = errors.New("no intent label in response")
)

// parseResponse extracts intent and confidence from a "rationale | intent |
// confidence" response. Label keywords may appear anywhere in the text;
// numbers above 1 are treated as percentages.
func parseResponse(text string) (core.Intent, error) {
	lower := strings.ToLower(strings.TrimSpace(text))

	var label core.IntentLabel
	switch {
	case strings.Contains(lower, "diagnosis") || strings.Contains(lower, "诊断"):
		label = core.IntentDiagnosis
	case strings.Contains(lower, "reasoning") || strings.Contains(lower, "推理"):
		label = core.IntentReasoning
	case strings.Contains(lower, "qa") || strings.Contains(lower, "问答"):
		label = core.IntentQA
	default:
		return core.Intent{}, &core.ClassificationError{Query: text, Err: errMalformed}
	}

	confidence := 0.5
	for _, match := range numberPattern.FindAllString(lower, -1) {
		val, err := strconv.ParseFloat(match, 64)
		if err != nil {
			continue
		}
		if val >= 0 && val <= 1 {
			confidence = val
			break
		}
		if val > 1 {
			confidence = val / 100
			if confidence > 1 {
				confidence = 1
			}
		}
	}

	rationale := text
	if idx := strings.Index(text, "|"); idx >= 0 {
		rationale = strings.TrimSpace(text[:idx])
	}

	return core.Intent{
		Label:      label,
		Confidence: confidence,
		Method:     core.MethodFewShotCoT,
		Rationale:  rationale,
	}, nil
}

// classifyRules is the deterministic fallback. Matched intents score a fixed
// 0.6 confidence; equal scores prefer QA; no match yields Unknown at 0.0.
func (r *Router) classifyRules(query string) core.Intent {
	lower := strings.ToLower(query)

	diagnosisHits := countHits(lower, diagnosisKeywords)
	reasoningHits := countHits(lower, reasoningKeywords)

	var label core.IntentLabel
	switch {
	case diagnosisHits == 0 && reasoningHits == 0:
		return core.Intent{Label: core.IntentUnknown, Confidence: 0.0, Method: core.MethodRuleBased}
	case diagnosisHits == reasoningHits:
		label = core.IntentQA
	case diagnosisHits > reasoningHits:
		label = core.IntentDiagnosis
	default:
		label = core.IntentReasoning
	}
	return core.Intent{Label: label, Confidence: 0.6, Method: core.MethodRuleBased}
}

func countHits(query string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			hits++
		}
	}
	return hits
}
