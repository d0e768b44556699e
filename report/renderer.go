package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridwise/diagmesh/artifact"
	"github.com/gridwise/diagmesh/core"
)

// TemplateDiagnosis is the built-in markdown report template id.
const TemplateDiagnosis = "diagnosis-markdown"

type section struct {
	heading string
	fields  []string
}

var diagnosisSections = []section{
	{"基本信息", []string{"report_id", "device_name", "device_model", "location", "diagnosis_date", "data_range"}},
	{"健康评估", []string{"health_score", "health_status", "risk_level", "issue_count"}},
	{"摘要", []string{"abstract"}},
	{"设备概况", []string{"device_basic_info", "operating_environment", "maintenance_history"}},
	{"运行数据分析", []string{"monitoring_data_summary", "key_metrics_analysis", "trend_analysis", "anomaly_detection"}},
	{"故障分析", []string{"fault_description", "fault_cause_analysis", "fault_location"}},
	{"处理建议", []string{"urgent_measures", "maintenance_plan", "spare_parts_suggestion"}},
	{"风险评估", []string{"current_risks", "potential_risks", "risk_control"}},
	{"结论", []string{"conclusion_and_recommendations", "technical_parameters", "related_standards", "diagnosis_method"}},
}

var fieldTitles = map[string]string{
	"report_id":                      "报告编号",
	"device_name":                    "设备名称",
	"device_model":                   "设备型号",
	"location":                       "安装位置",
	"diagnosis_date":                 "诊断日期",
	"data_range":                     "数据范围",
	"health_score":                   "健康评分",
	"health_status":                  "健康状态",
	"risk_level":                     "风险等级",
	"issue_count":                    "问题数量",
	"abstract":                       "摘要",
	"device_basic_info":              "设备基本信息",
	"operating_environment":          "运行环境",
	"maintenance_history":            "维护历史",
	"monitoring_data_summary":        "监测数据概览",
	"key_metrics_analysis":           "关键指标分析",
	"trend_analysis":                 "趋势分析",
	"anomaly_detection":              "异常检测",
	"fault_description":              "故障描述",
	"fault_cause_analysis":           "故障原因分析",
	"fault_location":                 "故障定位",
	"urgent_measures":                "紧急措施",
	"maintenance_plan":               "维护计划",
	"spare_parts_suggestion":         "备件建议",
	"current_risks":                  "当前风险",
	"potential_risks":                "潜在风险",
	"risk_control":                   "风险管控",
	"conclusion_and_recommendations": "结论与建议",
	"technical_parameters":           "技术参数",
	"related_standards":              "相关标准",
	"diagnosis_method":               "诊断方法",
}

// MarkdownRenderer implements core.Renderer. Rendered reports are stored as
// versioned artifacts and addressed by the returned path.
type MarkdownRenderer struct {
	store *artifact.InMemoryStore
}

// NewMarkdownRenderer creates a renderer backed by the given artifact store.
func NewMarkdownRenderer(store *artifact.InMemoryStore) *MarkdownRenderer {
	return &MarkdownRenderer{store: store}
}

// Render assembles the markdown document and stores it. Fields are completed
// against the schema first, so partial extraction still renders.
func (r *MarkdownRenderer) Render(ctx context.Context, fields map[string]string, templateID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.RenderError{TemplateID: templateID, Err: err}
	}
	if templateID != TemplateDiagnosis {
		return "", &core.RenderError{TemplateID: templateID, Err: fmt.Errorf("unknown template")}
	}

	complete := Fill(fields)

	var doc strings.Builder
	fmt.Fprintf(&doc, "# %s\n\n", complete["title"])
	for _, sec := range diagnosisSections {
		fmt.Fprintf(&doc, "## %s\n\n", sec.heading)
		for _, field := range sec.fields {
			fmt.Fprintf(&doc, "- **%s**: %s\n", fieldTitles[field], complete[field])
		}
		doc.WriteString("\n")
	}

	name := complete["report_id"]
	if name == Unknown {
		name = "diagnosis-report"
	}
	return r.store.Save(name, "text/markdown", []byte(doc.String())), nil
}
