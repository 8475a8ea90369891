// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements interfaces.WebClient. By default it returns
// HTML "<html>ok:<url></html>" with status 200. Set FailURLs[url] = true
// to force an error for a specific URL, or Pages[url] to serve specific
// HTML.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	Pages         map[string][]byte
	Screenshot    []byte
	BackendName   string

	mu       sync.Mutex
	Requests []*interfaces.RenderRequest
}

func (d *DummyWebClient) Render(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, fmt.Errorf("forced failure for %s", req.URL)
	}

	html := d.Pages[req.URL]
	if html == nil {
		html = []byte(fmt.Sprintf("<html><body><main>ok:%s</main></body></html>", req.URL))
	}

	res := &interfaces.RenderResult{
		HTML:       html,
		StatusCode: 200,
		FetchedAt:  time.Now(),
		Backend:    d.Name(),
	}
	if req.Screenshot && d.Screenshot != nil {
		res.Screenshot = d.Screenshot
	}
	return res, nil
}

func (d *DummyWebClient) Name() string {
	if d.BackendName != "" {
		return d.BackendName
	}
	return "dummy"
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns the number of Render calls observed.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── ChatClient ────────────────────────────────────────────────────────

// DummyChatClient implements interfaces.ChatClient. Responses maps a
// request Key to the raw content returned; requests with no entry get
// Default. Set FailKeys[key] to force an error.
type DummyChatClient struct {
	Responses map[string]string
	Default   string
	FailKeys  map[string]error
	ModelName string

	mu    sync.Mutex
	Calls []*interfaces.ChatRequest
}

func (d *DummyChatClient) Complete(ctx context.Context, req *interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, req)
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := d.FailKeys[req.Key]; ok {
		return nil, err
	}

	raw, ok := d.Responses[req.Key]
	if !ok {
		raw = d.Default
	}
	model := d.ModelName
	if model == "" {
		model = "dummy-model"
	}
	return &interfaces.ChatResponse{Raw: raw, Model: model, TokensUsed: len(raw) / 4}, nil
}

// CallCount returns the number of Complete calls observed.
func (d *DummyChatClient) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}
