// Package runner launches and monitors experiment processes through the
// process-management API.
package runner

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
	"time"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

var ErrProcessNotFound = errors.New("process not found")

// Client talks to the process-management API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "process-api").Logger(),
	}
}

// Start launches command and returns the new process id.
func (c *Client) Start(ctx context.Context, command string) (string, error) {
	var resp struct {
		ProcessID string `json:"process_id"`
		ID        string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/process/start", map[string]string{"command": command}, &resp); err != nil {
		return "", fmt.Errorf("start %q: %w", command, err)
	}
	id := resp.ProcessID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("start %q: response has no process id", command)
	}
	c.log.Info().Str("process_id", id).Str("command", command).Msg("process started")
	return id, nil
}

// List returns every process known to the API.
func (c *Client) List(ctx context.Context) ([]models.Process, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/processes", nil, &raw); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var procs []models.Process
	if err := json.Unmarshal(raw, &procs); err == nil {
		return procs, nil
	}
	var env struct {
		Processes []models.Process `json:"processes"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode processes: %w", err)
	}
	return env.Processes, nil
}

// Get returns the current state and logs of a process.
func (c *Client) Get(ctx context.Context, id string) (*models.Process, error) {
	var p models.Process
	if err := c.do(ctx, http.MethodGet, "/api/process/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get process %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

func (c *Client) Stop(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/process/stop/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("stop process %s: %w", id, err)
	}
	return nil
}

// SendInput writes a line to the process's standard input.
func (c *Client) SendInput(ctx context.Context, id, input string) error {
	if err := c.do(ctx, http.MethodPost, "/api/process/input/"+url.PathEscape(id), map[string]string{"input": input}, nil); err != nil {
		return fmt.Errorf("send input to %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrProcessNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, apiError(data))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError extracts {"error": "..."} from an error body.
func apiError(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
