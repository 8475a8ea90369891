package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/cache"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/testutil"
)

func testConfig() *config.FetcherConfig {
	return &config.FetcherConfig{
		RequestTimeout: 5 * time.Second,
		RatePerSecond:  1000,
		RateBurst:      1000,
	}
}

func TestFetchPrimarySuccess(t *testing.T) {
	primary := &testutil.DummyWebClient{BackendName: "primary"}
	fallback := &testutil.DummyWebClient{BackendName: "fallback"}
	f := New(testConfig(), primary, fallback, nil, &testutil.DummyLogger{})

	res, err := f.Fetch(context.Background(), "https://example.com", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BackendUsed != "primary" {
		t.Errorf("BackendUsed = %q", res.BackendUsed)
	}
	if fallback.RequestCount() != 0 {
		t.Error("fallback must not be called when primary succeeds")
	}
}

func TestFetchFallsBackOnPrimaryFailure(t *testing.T) {
	url := "https://example.com/about"
	primary := &testutil.DummyWebClient{
		BackendName: "primary",
		FailURLs:    map[string]bool{url: true},
	}
	fallback := &testutil.DummyWebClient{BackendName: "fallback"}
	f := New(testConfig(), primary, fallback, nil, &testutil.DummyLogger{})

	res, err := f.Fetch(context.Background(), url, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.BackendUsed != "fallback" {
		t.Errorf("BackendUsed = %q, want fallback", res.BackendUsed)
	}
	if primary.RequestCount() != 1 || fallback.RequestCount() != 1 {
		t.Errorf("requests: primary=%d fallback=%d", primary.RequestCount(), fallback.RequestCount())
	}
}

func TestFetchBothBackendsFail(t *testing.T) {
	url := "https://example.com/x"
	fail := map[string]bool{url: true}
	primary := &testutil.DummyWebClient{BackendName: "primary", FailURLs: fail}
	fallback := &testutil.DummyWebClient{BackendName: "fallback", FailURLs: fail}
	f := New(testConfig(), primary, fallback, nil, &testutil.DummyLogger{})

	_, err := f.Fetch(context.Background(), url, Options{})
	if err == nil {
		t.Fatal("both backends failed, Fetch must error")
	}
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Errorf("err = %T, want *FetchError", err)
	}
	if ferr.UserMessage() == "" {
		t.Error("FetchError must carry a user-facing message")
	}
}

func TestFetchNoFallbackConfigured(t *testing.T) {
	url := "https://example.com/x"
	primary := &testutil.DummyWebClient{FailURLs: map[string]bool{url: true}}
	f := New(testConfig(), primary, nil, nil, &testutil.DummyLogger{})

	if _, err := f.Fetch(context.Background(), url, Options{}); err == nil {
		t.Error("primary failure without a fallback must error")
	}
}

func TestFetchRefusesBinaryExtensions(t *testing.T) {
	primary := &testutil.DummyWebClient{}
	f := New(testConfig(), primary, nil, nil, &testutil.DummyLogger{})

	for _, url := range []string{
		"https://example.com/report.pdf",
		"https://example.com/img.PNG",
		"https://example.com/deck.pptx?v=2",
	} {
		if _, err := f.Fetch(context.Background(), url, Options{}); err == nil {
			t.Errorf("Fetch(%q) should refuse binary content", url)
		}
	}
	if primary.RequestCount() != 0 {
		t.Error("refused URLs must not reach the backend")
	}
}

func TestFetchStoresScreenshotInCache(t *testing.T) {
	shot := []byte("png-bytes")
	primary := &testutil.DummyWebClient{Screenshot: shot}
	shared := cache.New(1<<20, 10, 0)
	f := New(testConfig(), primary, nil, shared, &testutil.DummyLogger{})

	res, err := f.Fetch(context.Background(), "https://example.com", Options{Screenshot: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.ScreenshotID == "" {
		t.Fatal("screenshot id missing")
	}
	data, ok := shared.Get(res.ScreenshotID)
	if !ok || string(data) != "png-bytes" {
		t.Errorf("cache lookup = %q, %v", data, ok)
	}
}

func TestFetchOversizeScreenshotDropped(t *testing.T) {
	primary := &testutil.DummyWebClient{Screenshot: make([]byte, 100)}
	shared := cache.New(10, 10, 0)
	f := New(testConfig(), primary, nil, shared, &testutil.DummyLogger{})

	res, err := f.Fetch(context.Background(), "https://example.com", Options{Screenshot: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.ScreenshotID != "" {
		t.Error("oversize screenshot must be dropped, not stored")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   Kind
	}{
		{"403 is blocked", 403, errors.New("status"), KindBlocked},
		{"429 is blocked", 429, errors.New("status"), KindBlocked},
		{"404 is not found", 404, errors.New("status"), KindNotFound},
		{"500 is http error", 500, errors.New("status"), KindHTTP},
		{"deadline is timeout", 0, context.DeadlineExceeded, KindTimeout},
		{"plain error is connection", 0, errors.New("conn refused"), KindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("https://example.com", tt.status, tt.err)
			var ferr *FetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("classify returned %T", err)
			}
			if ferr.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", ferr.Kind, tt.want)
			}
		})
	}
}
