package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-audit-go/internal/audiometrics"
	"call-audit-go/internal/types"
)

func TestCompileSchemaTopLevelShape(t *testing.T) {
	schema := CompileSchema(defaultRubric())

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t,
		[]string{"blocks", "call_meta", "diagnostics", "recommendations", "scores", "triggers"},
		schema["required"])
}

func TestCompileSchemaCriterionItemsAreStrict(t *testing.T) {
	schema := CompileSchema(defaultRubric())

	blocks := schema["properties"].(map[string]any)["blocks"].(map[string]any)
	mandatory := blocks["properties"].(map[string]any)["mandatory"].(map[string]any)
	items := mandatory["items"].(map[string]any)

	assert.Equal(t, []string{"comment", "evidence", "id", "max", "score", "title"}, items["required"])
	assert.Equal(t, false, items["additionalProperties"])
	// Exactly one score entry per rubric criterion.
	assert.Equal(t, 4, mandatory["minItems"])
	assert.Equal(t, 4, mandatory["maxItems"])
}

func TestCompileSchemaEthicsItems(t *testing.T) {
	r := types.Rubric{
		ID:        "mini",
		Mandatory: []types.Criterion{{ID: "a", Title: "A", Max: 1}},
		Ethics:    []types.EthicsCriterion{{ID: "e1", Title: "E1"}, {ID: "e2", Title: "E2", Fatal: true}},
	}
	schema := CompileSchema(r)

	blocks := schema["properties"].(map[string]any)["blocks"].(map[string]any)
	ethics := blocks["properties"].(map[string]any)["ethics"].(map[string]any)
	items := ethics["items"].(map[string]any)

	assert.Equal(t, []string{"comment", "evidence", "id", "title", "violation"}, items["required"])
	assert.Equal(t, 2, ethics["minItems"])
	assert.Equal(t, 2, ethics["maxItems"])
}

func TestCompileSchemaSeverityEnum(t *testing.T) {
	schema := CompileSchema(defaultRubric())

	triggers := schema["properties"].(map[string]any)["triggers"].(map[string]any)
	hits := triggers["properties"].(map[string]any)["lexicon_hits"].(map[string]any)
	severity := hits["items"].(map[string]any)["properties"].(map[string]any)["severity"].(map[string]any)

	assert.Equal(t, []any{"low", "medium", "high"}, severity["enum"])
}

func TestCompileSchemaDiagnosticsCoverAllMetricKeys(t *testing.T) {
	schema := CompileSchema(defaultRubric())

	diag := schema["properties"].(map[string]any)["diagnostics"].(map[string]any)
	props := diag["properties"].(map[string]any)

	require.Len(t, props, len(audiometrics.MetricKeys()))
	for _, key := range audiometrics.MetricKeys() {
		assert.Contains(t, props, key)
	}
	assert.Equal(t, false, diag["additionalProperties"])
}

func TestCompileSchemaDeterministic(t *testing.T) {
	r := defaultRubric()
	assert.Equal(t, CompileSchema(r), CompileSchema(r))
}
