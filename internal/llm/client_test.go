package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/testutil"
)

func testConfig(endpoint string) *config.LLMConfig {
	return &config.LLMConfig{
		Endpoint:         endpoint,
		APIKey:           "test-key",
		PrimaryModel:     "model-a",
		FallbackModel:    "model-b",
		MiniModel:        "model-mini",
		BreakerThreshold: 2,
		BreakerCooldown:  10 * time.Minute,
		TimeoutCap:       60 * time.Second,
	}
}

// scriptedUpstream answers per-model with a canned status and body.
type scriptedUpstream struct {
	mu      sync.Mutex
	replies map[string]struct {
		status int
		body   string
	}
	models []string
}

func (s *scriptedUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding upstream request: %v", err)
		}

		s.mu.Lock()
		s.models = append(s.models, req.Model)
		reply := s.replies[req.Model]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		w.Write([]byte(reply.body))
	}
}

func (s *scriptedUpstream) calledModels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

const okBody = `{"choices":[{"message":{"content":"{\"score\":4}"}}],"usage":{"total_tokens":123}}`

func TestCompleteSuccess(t *testing.T) {
	up := &scriptedUpstream{replies: map[string]struct {
		status int
		body   string
	}{
		"model-a": {200, okBody},
	}}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	c := New(testConfig(srv.URL), srv.Client(), &testutil.DummyLogger{})
	resp, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi", Key: "Emotion"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Model != "model-a" || resp.TokensUsed != 123 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCompleteFallsBackOnRateLimit(t *testing.T) {
	up := &scriptedUpstream{replies: map[string]struct {
		status int
		body   string
	}{
		"model-a": {429, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`},
		"model-b": {200, okBody},
	}}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	c := New(testConfig(srv.URL), srv.Client(), &testutil.DummyLogger{})
	resp, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi", Key: "Emotion"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Model != "model-b" {
		t.Errorf("answered by %q, want the fallback model", resp.Model)
	}
	models := up.calledModels()
	if len(models) != 2 || models[0] != "model-a" {
		t.Errorf("call order = %v", models)
	}
}

func TestCompleteQuotaExhaustionStopsChain(t *testing.T) {
	up := &scriptedUpstream{replies: map[string]struct {
		status int
		body   string
	}{
		"model-a": {429, `{"error":{"message":"quota","type":"insufficient_quota"}}`},
	}}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	c := New(testConfig(srv.URL), srv.Client(), &testutil.DummyLogger{})
	_, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi"})

	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindQuotaExceeded {
		t.Fatalf("err = %v, want quota exceeded", err)
	}
	if n := len(up.calledModels()); n != 1 {
		t.Errorf("%d models tried, quota exhaustion should stop after the first", n)
	}
}

func TestBreakerSkipsPrimaryAfterThreshold(t *testing.T) {
	up := &scriptedUpstream{replies: map[string]struct {
		status int
		body   string
	}{
		"model-a": {500, `{"error":{"message":"boom","type":"server_error"}}`},
		"model-b": {200, okBody},
	}}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	c := New(testConfig(srv.URL), srv.Client(), &testutil.DummyLogger{})

	// Two failing calls for the same key trip the breaker (threshold 2).
	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi", Key: "Emotion"}); err != nil {
			t.Fatalf("call %d should succeed via fallback: %v", i, err)
		}
	}

	before := len(up.calledModels())
	resp, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi", Key: "Emotion"})
	if err != nil {
		t.Fatal(err)
	}
	models := up.calledModels()[before:]
	if len(models) != 1 || models[0] != "model-b" {
		t.Errorf("post-trip call hit %v, want only the fallback model", models)
	}
	if resp.Model != "model-b" {
		t.Errorf("resp.Model = %q", resp.Model)
	}
}

func TestBreakerCooldownRestoresPrimary(t *testing.T) {
	b := newKeyBreakers(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.failure("Emotion")
	if !b.open("Emotion") {
		t.Fatal("breaker should be open after hitting the threshold")
	}

	now = now.Add(2 * time.Minute)
	if b.open("Emotion") {
		t.Error("cooldown elapsed, primary should get another chance")
	}
}

func TestCompleteNoAPIKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.APIKey = ""
	c := New(cfg, nil, &testutil.DummyLogger{})

	_, err := c.Complete(context.Background(), &interfaces.ChatRequest{Prompt: "hi"})
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindUnavailable {
		t.Errorf("err = %v, want unavailable", err)
	}
}

func TestTimeoutScalesWithPromptCapped(t *testing.T) {
	cfg := testConfig("http://unused")
	c := New(cfg, nil, &testutil.DummyLogger{})

	small := c.timeoutFor(&interfaces.ChatRequest{Prompt: "short"})
	if small < baseTimeout {
		t.Errorf("small prompt timeout %v below base", small)
	}

	huge := c.timeoutFor(&interfaces.ChatRequest{Prompt: string(make([]byte, 1<<22))})
	if huge != cfg.TimeoutCap {
		t.Errorf("huge prompt timeout %v, want cap %v", huge, cfg.TimeoutCap)
	}
}

func TestTimeoutCapBelowBaseKeepsBase(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.TimeoutCap = time.Second
	c := New(cfg, nil, &testutil.DummyLogger{})

	if got := c.timeoutFor(&interfaces.ChatRequest{Prompt: "short"}); got != baseTimeout {
		t.Errorf("timeout = %v, want base %v", got, baseTimeout)
	}
	if got := c.timeoutFor(&interfaces.ChatRequest{Prompt: string(make([]byte, 1<<20))}); got != baseTimeout {
		t.Errorf("large prompt timeout = %v, want base %v", got, baseTimeout)
	}
}
