// Package reminder talks to the external scheduler that delivers a reminder
// even when no host is running the timer.
package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"focustimer/internal/model"
)

var ErrEmptyReminderID = errors.New("scheduler returned an empty reminder id")

type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

type scheduleRequest struct {
	DurationSeconds int               `json:"durationSeconds"`
	SubjectID       *string           `json:"subjectId,omitempty"`
	Mode            model.SessionMode `json:"mode"`
}

type scheduleResponse struct {
	ID string `json:"id"`
}

// NewHTTPClient returns a client for the scheduler at baseURL. Callers bound
// each call with a context deadline.
func NewHTTPClient(baseURL, token string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (c *HTTPClient) Schedule(ctx context.Context, durationSeconds int, subjectID *string, mode model.SessionMode) (string, error) {
	payload, err := json.Marshal(scheduleRequest{
		DurationSeconds: durationSeconds,
		SubjectID:       subjectID,
		Mode:            mode,
	})
	if err != nil {
		return "", fmt.Errorf("marshal schedule request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/reminders", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("schedule reminder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("schedule reminder", resp)
	}

	var body scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode schedule response: %w", err)
	}
	if body.ID == "" {
		return "", ErrEmptyReminderID
	}
	return body.ID, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, reminderID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.baseURL+"/reminders/"+url.PathEscape(reminderID), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	defer resp.Body.Close()

	// Already fired or already gone.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("cancel reminder", resp)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
