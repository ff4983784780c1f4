// Package media is the narrow interface to the external media transport
// server. The core never touches media itself; it only instructs the server to
// start or stop recording and reacts to its webhooks.
package media

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller issues recording control calls to the media server.
type Controller interface {
	StartRecording(ctx context.Context, roomID, recordingID uuid.UUID) error
	StopRecording(ctx context.Context, roomID, recordingID uuid.UUID) error
}

// Config holds the control endpoint and request signing secrets.
type Config struct {
	ControlURL string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
}

// Client is the HTTP implementation of Controller. Requests carry an API key
// header and an HMAC-SHA256 body signature.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a media server control client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type recordingRequest struct {
	RoomID      string `json:"room_id"`
	RecordingID string `json:"recording_id"`
}

func (c *Client) StartRecording(ctx context.Context, roomID, recordingID uuid.UUID) error {
	return c.post(ctx, "/recordings/start", recordingRequest{
		RoomID:      roomID.String(),
		RecordingID: recordingID.String(),
	})
}

func (c *Client) StopRecording(ctx context.Context, roomID, recordingID uuid.UUID) error {
	return c.post(ctx, "/recordings/stop", recordingRequest{
		RoomID:      roomID.String(),
		RecordingID: recordingID.String(),
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ControlURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if c.cfg.APISecret != "" {
		req.Header.Set("X-Signature", Sign(body, c.cfg.APISecret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("media server %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("media server %s: status %d: %s", path, resp.StatusCode, raw)
	}
	return nil
}

// Sign returns the "sha256=<hex>" HMAC-SHA256 signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" signature header in constant time.
func VerifySignature(body []byte, header, secret string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(header))
}
