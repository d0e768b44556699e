package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridwise/diagmesh/core"
)

// IntentExample is one few-shot classification example shown to the model.
type IntentExample struct {
	Text     string `yaml:"text"`
	Analysis string `yaml:"analysis"`
	Keywords string `yaml:"keywords"`
	Label    string `yaml:"label"`
}

// IntentExampleSet is a versioned collection of few-shot examples.
type IntentExampleSet struct {
	Version  string          `yaml:"version"`
	Examples []IntentExample `yaml:"examples"`
}

// DefaultIntentExamples returns the shipped few-shot set for the power-grid
// corpus.
func DefaultIntentExamples() IntentExampleSet {
	return IntentExampleSet{
		Version: "1",
		Examples: []IntentExample{
			{
				Text:     "生成变压器诊断报告",
				Analysis: "用户明确要求生成诊断报告，这是典型的设备诊断请求",
				Keywords: "生成、诊断、报告",
				Label:    "diagnosis",
			},
			{
				Text:     "变压器的正常温度范围是多少？",
				Analysis: "用户询问具体的技术参数，这是一个知识问答问题",
				Keywords: "温度范围、是多少",
				Label:    "qa",
			},
			{
				Text:     "如果变压器温度过高，会导致什么后果？",
				Analysis: "用户询问因果关系，需要推理分析",
				Keywords: "如果、导致、后果",
				Label:    "reasoning",
			},
			{
				Text:     "评估断路器的健康状态",
				Analysis: "用户请求评估设备健康，属于诊断范畴",
				Keywords: "评估、健康状态",
				Label:    "diagnosis",
			},
			{
				Text:     "电力系统的电压等级有哪些？",
				Analysis: "用户询问基础知识，属于问答",
				Keywords: "有哪些、电压等级",
				Label:    "qa",
			},
			{
				Text:     "计算变压器的负载率",
				Analysis: "用户请求计算，涉及推理",
				Keywords: "计算、负载率",
				Label:    "reasoning",
			},
			{
				Text:     "这台设备运行正常吗？",
				Analysis: "用户询问设备状态，需要诊断评估",
				Keywords: "运行正常吗、设备",
				Label:    "diagnosis",
			},
			{
				Text:     "什么是继电保护？",
				Analysis: "用户询问概念定义，属于知识问答",
				Keywords: "什么是",
				Label:    "qa",
			},
		},
	}
}

// LoadIntentExamples reads a few-shot example set from a YAML file. An empty
// path returns the shipped defaults.
func LoadIntentExamples(path string) (IntentExampleSet, error) {
	if path == "" {
		return DefaultIntentExamples(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return IntentExampleSet{}, &core.ConfigError{Field: "IntentExamples", Message: err.Error()}
	}
	var set IntentExampleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return IntentExampleSet{}, &core.ConfigError{Field: "IntentExamples", Message: "invalid YAML: " + err.Error()}
	}
	if len(set.Examples) == 0 {
		return IntentExampleSet{}, &core.ConfigError{Field: "IntentExamples", Message: "example set is empty"}
	}
	for i, ex := range set.Examples {
		switch ex.Label {
		case "diagnosis", "qa", "reasoning":
		default:
			return IntentExampleSet{}, &core.ConfigError{
				Field:   "IntentExamples",
				Message: fmt.Sprintf("example %d has unknown label %q", i, ex.Label),
			}
		}
		if ex.Text == "" {
			return IntentExampleSet{}, &core.ConfigError{
				Field:   "IntentExamples",
				Message: fmt.Sprintf("example %d has empty text", i),
			}
		}
	}
	return set, nil
}

// Prompt renders the example set as a few-shot block for the classifier
// prompt.
func (s IntentExampleSet) Prompt() string {
	var out string
	for i, ex := range s.Examples {
		out += fmt.Sprintf("# 示例%d\n查询：%s\n分析：%s\n关键词：%s\n意图：%s\n\n",
			i+1, ex.Text, ex.Analysis, ex.Keywords, ex.Label)
	}
	return out
}
