package scorer

import (
	"fmt"
	"sort"
	"strings"

	"call-audit-go/internal/speakers"
	"call-audit-go/internal/types"
)

// systemPrompt fixes the evaluation methodology. The output shape itself is
// enforced by the structured-output schema, not by prose.
const systemPrompt = `You are a strict quality auditor for recorded sales and support calls.

Evaluate the call against the rubric you are given. Methodology:
1. Identify the agent's and the client's names from the conversation. Use empty strings when a name is never spoken.
2. Score every mandatory and general criterion from 0 to its max, and judge every ethics criterion as violation true/false.
3. Catalog EVERY instance of rudeness or profanity you find: quote the exact phrase with surrounding context and assign a severity (low, medium, high). Do the same for notable audio events (long silences, shouting) visible in the metrics.
4. Every score and every violation needs evidence: short verbatim quotes from the transcript. Keep comments to one or two sentences and always grounded in a quote.
5. Use the preliminary trigger list and audio metrics as leads, but verify each against the transcript; drop false positives and add anything they missed.
6. Recommendations must be concrete: when to apply the tip and an example phrasing the agent could have used.

Base everything on the transcript and metrics provided. Do not invent quotes, names, or numbers.`

// buildContentPrompt serializes everything the scorer needs as plain
// human-readable blocks.
func buildContentPrompt(tr types.Transcript, rub types.Rubric, trigs []types.TriggerEvent, metrics types.AudioMetrics) string {
	var b strings.Builder

	b.WriteString("== CALL ==\n")
	fmt.Fprintf(&b, "language: %s\nduration_sec: %.1f\ntranscription_confidence: %.3f\n\n", tr.Language, tr.Duration, tr.Confidence)

	b.WriteString("== TRANSCRIPT ==\n")
	for _, seg := range speakers.Label(tr.Segments) {
		fmt.Fprintf(&b, "[%.1fs - %.1fs] %s: %s\n", seg.Start, seg.End, seg.Speaker, strings.TrimSpace(seg.Text))
	}
	if len(tr.Segments) == 0 {
		b.WriteString(tr.Text)
		b.WriteString("\n")
	}

	b.WriteString("\n== RUBRIC ==\n")
	fmt.Fprintf(&b, "name: %s\nmandatory:\n", rub.Name)
	for _, c := range rub.Mandatory {
		fmt.Fprintf(&b, "  - %s: %s (max %.0f)\n", c.ID, c.Title, c.Max)
	}
	b.WriteString("general:\n")
	for _, c := range rub.General {
		fmt.Fprintf(&b, "  - %s: %s (max %.0f)\n", c.ID, c.Title, c.Max)
	}
	b.WriteString("ethics:\n")
	for _, c := range rub.Ethics {
		fatal := "non-fatal"
		if c.Fatal {
			fatal = "fatal"
		}
		fmt.Fprintf(&b, "  - %s: %s (%s)\n", c.ID, c.Title, fatal)
	}

	b.WriteString("\n== PRELIMINARY TRIGGERS ==\n")
	if len(trigs) == 0 {
		b.WriteString("none\n")
	}
	for _, t := range trigs {
		fmt.Fprintf(&b, "  - [%.1fs] %s by %s: %q\n", t.TStart, t.Type, t.Speaker, t.Term)
	}

	b.WriteString("\n== AUDIO METRICS ==\n")
	keys := make([]string, 0, len(metrics.Values))
	for k := range metrics.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %.3f\n", k, metrics.Values[k])
	}
	for _, s := range metrics.Silences {
		fmt.Fprintf(&b, "  silence [%.1fs - %.1fs]\n", s.Start, s.End)
	}

	return b.String()
}
