package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-audit-go/internal/config"
	"call-audit-go/internal/rubric"
	"call-audit-go/internal/types"
)

// SchemaViolationError reports a scorer response that did not conform to the
// compiled rubric schema. An unscored call must never be reported as scored,
// so this always aborts the stage.
type SchemaViolationError struct {
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation: %s", strings.Join(e.Violations, "; "))
}

// Scorer delegates call evaluation to an LLM scoring service constrained by
// the rubric's compiled schema.
type Scorer struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logrus.Entry
}

func New(cfg config.Config, log *logrus.Entry) *Scorer {
	return &Scorer{
		url:        cfg.ScoreURL,
		apiKey:     cfg.ScoreAPIKey,
		model:      cfg.ScoreModel,
		httpClient: &http.Client{Timeout: cfg.ScoreTimeout},
		log:        log,
	}
}

// Score sends transcript, rubric, preliminary triggers, and audio metrics to
// the scoring service and parses its schema-constrained reply. Transport and
// parse failures surface as errors; there are no silent defaults here.
func (s *Scorer) Score(ctx context.Context, tr types.Transcript, rub types.Rubric, trigs []types.TriggerEvent, metrics types.AudioMetrics) (types.ScoreResult, error) {
	schema := rubric.CompileSchema(rub)

	reqBody := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildContentPrompt(tr, rub, trigs, metrics)},
		},
		"temperature": 0.0,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "call_audit_result",
				"strict": true,
				"schema": schema,
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return types.ScoreResult{}, fmt.Errorf("scoring failed: marshal request: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"model":       s.model,
		"payload_len": len(payload),
	}).Info("requesting score")

	var result types.ScoreResult
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}

		content := extractContentFromChoices(body)
		if content == "" {
			content = extractJSON(string(body))
		}
		if content == "" {
			lastErr = fmt.Errorf("no JSON found in scorer output")
			return lastErr
		}

		var decoded any
		if err := json.Unmarshal([]byte(content), &decoded); err != nil {
			lastErr = fmt.Errorf("decode scorer output: %w", err)
			return lastErr
		}
		if violations := validate(decoded, schema, "$"); len(violations) > 0 {
			lastErr = &SchemaViolationError{Violations: violations}
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			lastErr = fmt.Errorf("parse score result: %w", err)
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.httpClient.Timeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return types.ScoreResult{}, fmt.Errorf("scoring failed: %w", lastErr)
		}
		return types.ScoreResult{}, fmt.Errorf("scoring failed: %w", err)
	}

	s.log.WithField("final_score_reported", result.Scores.FinalScore).Info("score received")
	return result, nil
}

// extractContentFromChoices reads openai-style choices[0].message.content.
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string, stripping
// common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, fence := range []string{"```json", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, fence, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
