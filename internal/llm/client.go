package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
)

const baseTimeout = 20 * time.Second

// Client talks to an OpenAI-compatible chat completions endpoint. Each
// Complete call walks the configured model chain (primary, fallback, mini)
// until one succeeds; a per-key circuit breaker skips the primary model
// after repeated failures so a consistently rejected prompt stops paying
// the primary's latency and cost.
type Client struct {
	cfg      *config.LLMConfig
	http     *http.Client
	breakers *keyBreakers
	logger   logging.Logger
}

var _ interfaces.ChatClient = (*Client)(nil)

// New creates a Client. httpClient may be nil; per-call timeouts come from
// the request context, not the http.Client.
func New(cfg *config.LLMConfig, httpClient *http.Client, logger logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:      cfg,
		http:     httpClient,
		breakers: newKeyBreakers(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:   logger.With(logging.Field{Key: "component", Value: "llm"}),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete runs the request against the model chain and returns the first
// successful response. The returned error is the last model's *Error.
func (c *Client) Complete(ctx context.Context, req *interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	if c.cfg.APIKey == "" {
		return nil, &Error{Kind: KindUnavailable, cause: errors.New("no API key configured")}
	}

	chain := c.modelChain(req.Key)
	var lastErr *Error
	for _, model := range chain {
		resp, err := c.callModel(ctx, model, req)
		if err == nil {
			// Only a primary success clears the key's breaker; succeeding
			// on a fallback says nothing about the primary.
			if req.Key != "" && model == c.cfg.PrimaryModel {
				c.breakers.success(req.Key)
			}
			return resp, nil
		}

		var lerr *Error
		if !errors.As(err, &lerr) {
			lerr = &Error{Kind: KindBadResponse, Model: model, cause: err}
		}
		lastErr = lerr
		if req.Key != "" && model == c.cfg.PrimaryModel {
			c.breakers.failure(req.Key)
		}
		c.logger.Warn("model call failed",
			logging.Field{Key: "model", Value: model},
			logging.Field{Key: "key", Value: req.Key},
			logging.Field{Key: "kind", Value: string(lerr.Kind)},
			logging.Field{Key: "error", Value: err.Error()})

		if !lerr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// modelChain is primary, fallback, mini with duplicates removed. A tripped
// breaker for the key drops the primary from the front.
func (c *Client) modelChain(key string) []string {
	models := []string{c.cfg.PrimaryModel, c.cfg.FallbackModel, c.cfg.MiniModel}
	if key != "" && c.breakers.open(key) {
		models = models[1:]
	}

	seen := make(map[string]struct{}, len(models))
	var chain []string
	for _, m := range models {
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		chain = append(chain, m)
	}
	return chain
}

func (c *Client) callModel(ctx context.Context, model string, req *interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(req))
	defer cancel()

	body := chatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}
	if req.JSONOutput {
		body.ResponseFormat = json.RawMessage(`{"type":"json_object"}`)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Model: model, cause: fmt.Errorf("encoding request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Model: model, cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		metrics.LLMCallsTotal.WithLabelValues(model, string(kind)).Inc()
		return nil, &Error{Kind: kind, Model: model, cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(model, string(KindBadResponse)).Inc()
		return nil, &Error{Kind: KindBadResponse, Model: model, cause: fmt.Errorf("reading response: %w", err)}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.LLMCallsTotal.WithLabelValues(model, string(KindBadResponse)).Inc()
		return nil, &Error{Kind: KindBadResponse, Model: model, cause: fmt.Errorf("decoding response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		kind := classifyUpstream(resp.StatusCode, parsed)
		metrics.LLMCallsTotal.WithLabelValues(model, string(kind)).Inc()
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &Error{Kind: kind, Model: model, cause: errors.New(msg)}
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		metrics.LLMCallsTotal.WithLabelValues(model, string(KindBadResponse)).Inc()
		return nil, &Error{Kind: KindBadResponse, Model: model, cause: errors.New("response carried no content")}
	}

	metrics.LLMCallsTotal.WithLabelValues(model, "ok").Inc()
	metrics.LLMTokensTotal.Add(float64(parsed.Usage.TotalTokens))
	return &interfaces.ChatResponse{
		Raw:        parsed.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// timeoutFor scales the deadline with prompt size. Roughly four characters
// per token, 2ms of budget per token on top of the base, capped so a huge
// corpus can't stall a session. A cap below the base never undercuts it.
func (c *Client) timeoutFor(req *interfaces.ChatRequest) time.Duration {
	tokens := (len(req.System) + len(req.Prompt)) / 4
	t := baseTimeout + time.Duration(tokens)*2*time.Millisecond
	if c.cfg.TimeoutCap > 0 && t > c.cfg.TimeoutCap {
		t = c.cfg.TimeoutCap
	}
	if t < baseTimeout {
		t = baseTimeout
	}
	return t
}

func classifyUpstream(status int, parsed chatCompletionResponse) Kind {
	if parsed.Error != nil {
		t := strings.ToLower(parsed.Error.Type + " " + parsed.Error.Code)
		if strings.Contains(t, "insufficient_quota") {
			return KindQuotaExceeded
		}
	}
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadResponse
	}
}
