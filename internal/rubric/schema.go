package rubric

import (
	"sort"

	"call-audit-go/internal/audiometrics"
	"call-audit-go/internal/types"
)

// Severity values the scorer may assign to a trigger.
var Severities = []string{"low", "medium", "high"}

// CompileSchema maps a rubric to the strict JSON schema handed to the scoring
// service. Every object closes with additionalProperties:false and lists all
// of its keys as required, so an output that drifts from the contract is
// rejected rather than silently accepted. Pure function, no I/O.
func CompileSchema(r types.Rubric) map[string]any {
	return obj(map[string]any{
		"call_meta": obj(map[string]any{
			"call_type":    str(),
			"language":     str(),
			"duration_sec": num(),
			"agent_name":   str(),
			"client_name":  str(),
		}),
		"blocks": obj(map[string]any{
			"mandatory": criterionArray(len(r.Mandatory)),
			"general":   criterionArray(len(r.General)),
			"ethics":    ethicsArray(len(r.Ethics)),
		}),
		"triggers": obj(map[string]any{
			"lexicon_hits": arr(obj(map[string]any{
				"type":     str(),
				"term":     str(),
				"t_start":  num(),
				"speaker":  str(),
				"quote":    str(),
				"severity": enum(Severities),
			})),
			"audio_events": arr(obj(map[string]any{
				"kind":     str(),
				"t_start":  num(),
				"t_end":    num(),
				"severity": enum(Severities),
			})),
		}),
		"scores": obj(map[string]any{
			"mandatory_avg": num(),
			"general_avg":   num(),
			"ethics_flag":   boolean(),
			"final_score":   num(),
		}),
		"recommendations": arr(obj(map[string]any{
			"when":    str(),
			"tip":     str(),
			"example": str(),
		})),
		"diagnostics": diagnosticsSchema(),
	})
}

func criterionArray(count int) map[string]any {
	items := obj(map[string]any{
		"id":       str(),
		"title":    str(),
		"max":      num(),
		"score":    num(),
		"evidence": arr(str()),
		"comment":  str(),
	})
	a := arr(items)
	a["minItems"] = count
	a["maxItems"] = count
	return a
}

func ethicsArray(count int) map[string]any {
	items := obj(map[string]any{
		"id":        str(),
		"title":     str(),
		"violation": boolean(),
		"evidence":  arr(str()),
		"comment":   str(),
	})
	a := arr(items)
	a["minItems"] = count
	a["maxItems"] = count
	return a
}

func diagnosticsSchema() map[string]any {
	props := map[string]any{}
	for _, key := range audiometrics.MetricKeys() {
		props[key] = num()
	}
	return obj(props)
}

func obj(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func arr(items any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str() map[string]any { return map[string]any{"type": "string"} }

func num() map[string]any { return map[string]any{"type": "number"} }

func boolean() map[string]any { return map[string]any{"type": "boolean"} }

func enum(values []string) map[string]any {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]any{"type": "string", "enum": vals}
}
