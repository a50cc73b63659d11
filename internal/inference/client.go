// Package inference talks to the local generation backend and owns the
// single-model lifecycle: which model is resident, hot swaps between models,
// and resource headroom checks before a load.
package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/evaproject/eva/internal/config"
)

// GenerateRequest carries one generation call to the backend.
type GenerateRequest struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	Stop        []string
}

// GenerateResponse is the completed result of a generation call.
type GenerateResponse struct {
	Text         string
	TokensUsed   int
	Duration     time.Duration
	TokensPerSec float64
}

// Backend abstracts the model server so the manager and tests do not depend
// on a live process.
type Backend interface {
	// Load makes the named model resident with the given GPU layer count
	// (0 means the server default). It blocks until the model is ready to
	// serve or the context is done.
	Load(ctx context.Context, model string, gpuLayers int) error
	// Unload releases the named model's resources.
	Unload(ctx context.Context, model string) error
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan string, error)
}

// Client is an Ollama-compatible HTTP backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a backend client from the given config.
func NewClient(cfg config.BackendConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type generatePayload struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	System    string                 `json:"system,omitempty"`
	Stream    bool                   `json:"stream"`
	KeepAlive any                    `json:"keep_alive,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type generateResult struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Load issues a warm-up request so the model is resident before real traffic.
func (c *Client) Load(ctx context.Context, model string, gpuLayers int) error {
	payload := generatePayload{
		Model:     model,
		Stream:    false,
		KeepAlive: "30m",
	}
	if gpuLayers > 0 {
		payload.Options = map[string]interface{}{"num_gpu": gpuLayers}
	}
	if err := c.post(ctx, payload, nil); err != nil {
		return fmt.Errorf("failed to load model %s: %w", model, err)
	}
	return nil
}

// Unload asks the server to evict the model immediately.
func (c *Client) Unload(ctx context.Context, model string) error {
	payload := generatePayload{
		Model:     model,
		Stream:    false,
		KeepAlive: 0,
	}
	if err := c.post(ctx, payload, nil); err != nil {
		return fmt.Errorf("failed to unload model %s: %w", model, err)
	}
	return nil
}

// Generate performs a blocking generation call.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload := generatePayload{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: options(req),
	}

	start := time.Now()
	var result generateResult
	if err := c.post(ctx, payload, &result); err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	duration := time.Since(start)

	resp := &GenerateResponse{
		Text:       result.Response,
		TokensUsed: result.EvalCount,
		Duration:   duration,
	}
	if duration > 0 && result.EvalCount > 0 {
		resp.TokensPerSec = float64(result.EvalCount) / duration.Seconds()
	}
	return resp, nil
}

// GenerateStream performs a streaming generation call, sending chunks on the
// returned channel. The channel closes when the stream finishes or the
// context is cancelled.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload := generatePayload{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  true,
		Options: options(req),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		httpResp.Body.Close()
		return nil, fmt.Errorf("backend returned status %d", httpResp.StatusCode)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk generateResult
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Response != "" {
				select {
				case out <- chunk.Response:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

func (c *Client) post(ctx context.Context, payload generatePayload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(data))
	}

	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func options(req GenerateRequest) map[string]interface{} {
	opts := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.TopK > 0 {
		opts["top_k"] = req.TopK
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	return opts
}
