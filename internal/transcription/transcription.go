package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-audit-go/internal/config"
	"call-audit-go/internal/types"
)

// verboseResponse mirrors the whisper-style verbose_json payload.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		Speaker    string   `json:"speaker,omitempty"`
		AvgLogprob *float64 `json:"avg_logprob,omitempty"`
	} `json:"segments"`
}

// Client talks to a whisper-style transcription API. When the service rejects
// the requested model it retries exactly once with the configured conservative
// fallback model, then fails permanently.
type Client struct {
	url        string
	apiKey     string
	model      string
	fallback   string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(cfg config.Config, log *logrus.Entry) *Client {
	return &Client{
		url:        cfg.TranscribeURL,
		apiKey:     cfg.TranscribeAPIKey,
		model:      cfg.TranscribeModel,
		fallback:   cfg.TranscribeFallback,
		httpClient: &http.Client{Timeout: cfg.TranscribeTimeout},
		log:        log,
	}
}

// Transcribe uploads the audio file and returns a fully populated Transcript.
// language is "auto" or an ISO code; auto leaves detection to the service.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (types.Transcript, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcription failed: read audio: %w", err)
	}

	resp, err := c.request(ctx, audio, filepath.Base(audioPath), language, c.model)
	if err != nil {
		if !isModelRejection(err) || c.fallback == "" || c.fallback == c.model {
			return types.Transcript{}, fmt.Errorf("transcription failed: %w", err)
		}
		c.log.WithError(err).WithField("fallback_model", c.fallback).
			Warn("model rejected, retrying once with fallback")
		resp, err = c.request(ctx, audio, filepath.Base(audioPath), language, c.fallback)
		if err != nil {
			return types.Transcript{}, fmt.Errorf("transcription failed after fallback: %w", err)
		}
	}

	tr := types.Transcript{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}
	var logprobSum float64
	var logprobN int
	for _, s := range resp.Segments {
		tr.Segments = append(tr.Segments, types.Segment{
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
			Speaker: s.Speaker,
		})
		if s.AvgLogprob != nil {
			logprobSum += *s.AvgLogprob
			logprobN++
		}
	}
	tr.Confidence = confidence(logprobSum, logprobN)

	c.log.WithFields(logrus.Fields{
		"language":   tr.Language,
		"duration":   tr.Duration,
		"segments":   len(tr.Segments),
		"confidence": tr.Confidence,
	}).Info("transcription complete")
	return tr, nil
}

// confidence is the geometric mean of segment probabilities,
// exp(mean(logprob)); no segments means 0.0, not an error.
func confidence(logprobSum float64, n int) float64 {
	if n == 0 {
		return 0.0
	}
	return math.Exp(logprobSum / float64(n))
}

// modelRejectedError marks a 4xx the caller may resolve by switching models.
type modelRejectedError struct {
	status int
	body   string
}

func (e *modelRejectedError) Error() string {
	return fmt.Sprintf("service rejected request: status=%d body=%s", e.status, e.body)
}

func isModelRejection(err error) bool {
	var mr *modelRejectedError
	return errors.As(err, &mr)
}

func (c *Client) request(ctx context.Context, audio []byte, filename, language, model string) (*verboseResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio part: %w", err)
	}
	w.WriteField("model", model)
	w.WriteField("response_format", "verbose_json")
	if language != "" && language != "auto" {
		w.WriteField("language", language)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	payload := body.Bytes()
	contentType := w.FormDataContentType()

	var out verboseResponse
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %s", string(respBody))
			return lastErr
		case resp.StatusCode >= 400:
			lastErr = &modelRejectedError{status: resp.StatusCode, body: string(respBody)}
			return backoff.Permanent(lastErr)
		}

		if err := json.Unmarshal(respBody, &out); err != nil {
			lastErr = fmt.Errorf("decode response: %w body=%s", err, string(respBody))
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return &out, nil
}
