package firing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Payload kinds sent to the trigger collaborator.
const (
	kindAlarm   = "alarm"
	kindSkipped = "skipped"
)

// TriggerSender delivers one fire payload to the downstream collaborator.
type TriggerSender interface {
	Send(ctx context.Context, req TriggerRequest) TriggerResult
}

type TriggerRequest struct {
	URL       string
	Secret    string
	Timeout   time.Duration
	Payload   TriggerPayload
	AttemptID string
}

type TriggerPayload struct {
	Kind          string `json:"kind"` // "alarm" or "skipped"
	AlarmID       int32  `json:"alarm_id"`
	ExecutionID   string `json:"execution_id"`
	ShiftID       string `json:"shift_id"`
	ShiftName     string `json:"shift_name"`
	FormattedTime string `json:"formatted_time"`
	ScheduledAt   string `json:"scheduled_at"`
	FiredAt       string `json:"fired_at"`
}

type TriggerResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r TriggerResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r TriggerResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

// HTTPTriggerSender posts signed JSON payloads to the trigger webhook.
// Headers: X-Shiftwake-Event-ID (attempt), X-Shiftwake-Execution-ID,
// X-Shiftwake-Signature (hex HMAC-SHA256 of the body).
type HTTPTriggerSender struct {
	client *http.Client
}

func NewHTTPTriggerSender() *HTTPTriggerSender {
	return &HTTPTriggerSender{client: &http.Client{}}
}

func (s *HTTPTriggerSender) Send(ctx context.Context, req TriggerRequest) TriggerResult {
	start := time.Now()

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return TriggerResult{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return TriggerResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shiftwake-Event-ID", req.AttemptID)
	httpReq.Header.Set("X-Shiftwake-Execution-ID", req.Payload.ExecutionID)
	httpReq.Header.Set("X-Shiftwake-Signature", computeSignature(req.Secret, body))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return TriggerResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return TriggerResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets trigger receivers verify incoming payloads.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// containsFold is a case-insensitive substring check.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
