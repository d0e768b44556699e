package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
	"github.com/gridwise/diagmesh/report"
)

// Node is one state of a pipeline. Run reads the current state and returns
// the delta to merge. A Required node's failure moves the run to the failure
// terminal; other failures are recorded and the run continues.
type Node struct {
	Name     string
	Required bool
	Run      func(ctx context.Context, state *core.AgentState) (core.StateDelta, error)
}

// NoAnswerText is the explicit reply when retrieval found nothing relevant.
const NoAnswerText = "未在知识库中找到相关信息，无法回答该问题。"

// deviceTerms are equipment names used as retrieval hints by the diagnosis
// pipeline.
var deviceTerms = []string{
	"变压器", "断路器", "电容器", "继电保护", "母线", "避雷器", "互感器", "电抗器", "隔离开关",
}

const analyzeSystemPrompt = `你是一个电力设备诊断专家。根据检索到的资料，分析设备的运行状态。

要求：
1. 指出资料中反映的关键指标和异常现象
2. 给出定性的健康判断和故障线索
3. 使用专业术语，条理清晰`

// extractSystemPrompt is derived from the report schema so the model is
// offered every extractable field. report_id and diagnosis_date are excluded
// since the pipeline sets them itself.
var extractSystemPrompt = fmt.Sprintf(`你是一个诊断报告撰写助手。根据分析结论，抽取结构化报告字段。

要求：
1. 以JSON对象输出，键为字段名，值为字符串
2. 可用字段包括：%s
3. 无法确定的字段省略，不要编造`, strings.Join(extractableFields(), ", "))

// extractableFields is the schema minus the fields filled before extraction.
func extractableFields() []string {
	out := make([]string, 0, len(report.FieldNames))
	for _, name := range report.FieldNames {
		if name == "report_id" || name == "diagnosis_date" {
			continue
		}
		out = append(out, name)
	}
	return out
}

const synthesizeSystemPrompt = `你是一个电力领域的知识问答助手。根据检索到的资料回答用户问题。

要求：
1. 只依据资料内容回答，不要编造
2. 回答中标注所引用资料的编号
3. 资料不足以回答时明确说明`

// nodeDeps carries the capability handles every node closes over.
type nodeDeps struct {
	retriever     core.Retriever
	generator     core.Generator
	renderer      core.Renderer
	memory        core.MemoryStore
	reportIDs     *report.IDGenerator
	k             int
	renderTimeout time.Duration
	logger        *logging.EngineLogger
}

// retrieveNode fetches evidence for the query. For diagnosis runs the query
// is augmented with recognized device terms. Retrieval failure, including
// NoResults, is recorded and the run continues; downstream nodes treat a
// missing RetrievalResult as "no evidence".
func retrieveNode(deps nodeDeps) Node {
	return Node{
		Name: "retrieve",
		Run: func(ctx context.Context, state *core.AgentState) (core.StateDelta, error) {
			query := state.Query.Text
			if state.Intent.Label == core.IntentDiagnosis {
				if hints := deviceHints(query); hints != "" {
					query = query + " " + hints
				}
			}
			result, err := deps.retriever.Retrieve(ctx, query, deps.k)
			if err != nil {
				return core.StateDelta{
					Errors: []core.ErrorRecord{core.NewErrorRecord("retrieve", err)},
				}, nil
			}
			return core.StateDelta{Retrieval: result}, nil
		},
	}
}

// deviceHints returns the equipment terms present in the query.
func deviceHints(query string) string {
	var hints []string
	for _, term := range deviceTerms {
		if strings.Contains(query, term) {
			hints = append(hints, term)
		}
	}
	return strings.Join(hints, " ")
}

// analyzeNode derives qualitative findings from retrieved chunks.
func analyzeNode(deps nodeDeps) Node {
	return Node{
		Name: "analyze",
		Run: func(ctx context.Context, state *core.AgentState) (core.StateDelta, error) {
			if state.Retrieval == nil || len(state.Retrieval.Chunks) == 0 {
				return core.StateDelta{
					Fields: map[string]string{"findings": "未检索到相关运行资料，无法进行深入分析。"},
				}, nil
			}
			resp, err := deps.generator.Generate(ctx, core.GenerateRequest{
				System: analyzeSystemPrompt,
				Prompt: "用户请求：" + state.Query.Text + "\n\n检索资料：\n" + chunkContext(state.Retrieval.Chunks),
			})
			if err != nil {
				return core.StateDelta{
					Fields: map[string]string{"findings": "分析能力暂不可用，以下结论基于原始检索资料。"},
					Errors: []core.ErrorRecord{core.NewErrorRecord("analyze", &core.GenerationError{Reason: "analyze", Err: err})},
				}, nil
			}
			return core.StateDelta{
				Fields: map[string]string{"findings": strings.TrimSpace(resp.Text)},
			}, nil
		},
	}
}

// extractFieldsNode maps findings into the structured report schema. Fields
// the model cannot provide stay absent here; composeReportNode fills them
// with the unknown sentinel.
func extractFieldsNode(deps nodeDeps) Node {
	return Node{
		Name: "extract_fields",
		Run: func(ctx context.Context, state *core.AgentState) (core.StateDelta, error) {
			fields := map[string]string{
				"report_id":      deps.reportIDs.Next(time.Now()),
				"diagnosis_date": time.Now().Format("2006-01-02"),
			}
			if hints := deviceHints(state.Query.Text); hints != "" {
				fields["device_name"] = strings.Fields(hints)[0]
			}

			resp, err := deps.generator.Generate(ctx, core.GenerateRequest{
				System: extractSystemPrompt,
				Prompt: "分析结论：\n" + state.Fields["findings"] + "\n\n请输出报告字段：",
			})
			if err != nil {
				return core.StateDelta{
					Fields: fields,
					Errors: []core.ErrorRecord{core.NewErrorRecord("extract_fields", &core.GenerationError{Reason: "extract_fields", Err: err})},
				}, nil
			}
			for k, v := range report.ParseFields(resp.Text) {
				if _, fixed := fields[k]; !fixed {
					fields[k] = v
				}
			}
			return core.StateDelta{Fields: fields}, nil
		},
	}
}

// composeReportNode completes the schema, renders the report and produces the
// user-facing answer. Render failure keeps the structured fields and reports
// the error; it never discards the run.
func composeReportNode(deps nodeDeps) Node {
	return Node{
		Name: "compose_report",
		Run: func(ctx context.Context, state *core.AgentState) (core.StateDelta, error) {
			complete := report.Fill(state.Fields)

			renderCtx := ctx
			if deps.renderTimeout > 0 {
				var cancel context.CancelFunc
				renderCtx, cancel = context.WithTimeout(ctx, deps.renderTimeout)
				defer cancel()
			}
			path, err := deps.renderer.Render(renderCtx, complete, report.TemplateDiagnosis)
			if err != nil {
				answer := fmt.Sprintf("诊断完成（报告编号 %s），但报告渲染失败，结构化结果仍然可用。", complete["report_id"])
				return core.StateDelta{
					Fields: complete,
					Answer: core.StringPtr(answer),
					Errors: []core.ErrorRecord{core.NewErrorRecord("compose_report", err)},
				}, nil
			}

			answer := fmt.Sprintf("诊断完成，报告编号 %s，健康状态：%s。报告已生成：%s",
				complete["report_id"], complete["health_status"], path)
			return core.StateDelta{
				Fields:     complete,
				Answer:     core.StringPtr(answer),
				ReportPath: core.StringPtr(path),
			}, nil
		},
	}
}

// synthesizeNode produces a grounded answer citing retrieved document ids.
// Without evidence it answers with NoAnswerText instead of guessing.
func synthesizeNode(deps nodeDeps) Node {
	return Node{
		Name: "synthesize",
		Run: func(ctx context.Context, state *core.AgentState) (core.StateDelta, error) {
			if state.Retrieval == nil || len(state.Retrieval.Chunks) == 0 {
				return core.StateDelta{Answer: core.StringPtr(NoAnswerText)}, nil
			}
			chunks := state.Retrieval.Chunks

			var history string
			if deps.memory != nil {
				var b strings.Builder
				if turns := deps.memory.RecentTurns(state.Query.SessionID, 6); len(turns) > 0 {
					b.WriteString("对话历史：\n")
					for _, turn := range turns {
						fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
					}
				}
				similar, err := deps.memory.SimilarTurns(ctx, state.Query.SessionID, state.Query.Text, 3)
				if err != nil {
					deps.logger.Warn("similar-turn lookup failed: %v", err)
				}
				if len(similar) > 0 {
					b.WriteString("相关历史：\n")
					for _, turn := range similar {
						fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
					}
				}
				if b.Len() > 0 {
					history = b.String() + "\n"
				}
			}

			resp, err := deps.generator.Generate(ctx, core.GenerateRequest{
				System: synthesizeSystemPrompt,
				Prompt: history + "检索资料：\n" + chunkContext(chunks) + "\n用户问题：" + state.Query.Text + "\n\n回答：",
			})
			if err != nil {
				answer := fmt.Sprintf("生成回答失败，以下为最相关的资料摘录：\n%s%s",
					chunks[0].Text, citations(chunks[:1]))
				return core.StateDelta{
					Answer: core.StringPtr(answer),
					Errors: []core.ErrorRecord{core.NewErrorRecord("synthesize", &core.GenerationError{Reason: "synthesize", Err: err})},
				}, nil
			}

			answer := strings.TrimSpace(resp.Text) + citations(chunks)
			return core.StateDelta{Answer: core.StringPtr(answer)}, nil
		},
	}
}

// chunkContext renders chunks as a numbered evidence block.
func chunkContext(chunks []core.RetrievedChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, chunk.DocumentID, chunk.Text)
	}
	return b.String()
}

// citations lists the cited document ids, top chunk first.
func citations(chunks []core.RetrievedChunk) string {
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.DocumentID
	}
	return "\n\n参考资料：" + strings.Join(ids, ", ")
}
