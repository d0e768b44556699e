package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridwise/diagmesh/report"
)

func TestExtractPromptOffersEveryExtractableField(t *testing.T) {
	for _, name := range report.FieldNames {
		if name == "report_id" || name == "diagnosis_date" {
			assert.NotContains(t, extractSystemPrompt, name)
			continue
		}
		assert.Contains(t, extractSystemPrompt, name, "schema field missing from extraction prompt")
	}
}

func TestDeviceHintsMatchKnownEquipment(t *testing.T) {
	hints := deviceHints("1号主变压器和避雷器的试验数据异常")
	assert.True(t, strings.Contains(hints, "变压器"))
	assert.True(t, strings.Contains(hints, "避雷器"))
	assert.Empty(t, deviceHints("今天天气如何"))
}
