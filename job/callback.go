package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"m3u8conv/logger"
)

// CallbackPayload is POSTed to a job's callback URL once it finishes
type CallbackPayload struct {
	ConversionID string `json:"conversionId"`
	Status       Status `json:"status"`
	Filename     string `json:"filename,omitempty"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	Error        string `json:"error,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Callbacks notifies submitters that asked for a completion callback
type Callbacks struct {
	Client    *http.Client
	UserAgent string
}

// NewCallbacks returns a notifier with a 30 second request timeout
func NewCallbacks(userAgent string) *Callbacks {
	return &Callbacks{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: userAgent,
	}
}

// Hook is a FinishHook that sends the callback, logging any failure
func (c *Callbacks) Hook(ctx context.Context, rec Record) {
	if rec.CallbackURL == "" {
		return
	}
	if err := c.send(ctx, rec); err != nil {
		logger.Errorf("Failed to send callback for %s: %v", rec.ID, err)
		// Don't fail the job for callback errors
		return
	}
	logger.Infof("Successfully sent callback for %s", rec.ID)
}

func (c *Callbacks) send(ctx context.Context, rec Record) error {
	payload := CallbackPayload{
		ConversionID: rec.ID,
		Status:       rec.Status,
		Error:        rec.ErrorDetail,
		Timestamp:    time.Now().Unix(),
	}
	if rec.Artifact != nil {
		payload.Filename = rec.Artifact.Filename
		payload.DownloadURL = rec.Artifact.DownloadURL
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.CallbackURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
