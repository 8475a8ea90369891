package webclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

// ChromeDPClient drives a local headless browser. It is the fetcher's
// fallback backend: slower than the scrape API but works without a remote
// service and renders JS-heavy pages.
type ChromeDPClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	idleAfter   time.Duration
	logger      logging.Logger
}

// NewChromeDPClient creates a shared browser allocator. Tabs are created per
// Render call and torn down afterwards.
func NewChromeDPClient(idleAfter time.Duration, logger logging.Logger, opts ...chromedp.ExecAllocatorOption) (*ChromeDPClient, error) {
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	componentLogger := logger.With(logging.Field{Key: "backend", Value: BackendChromeDP})
	componentLogger.Info("created chromedp webclient",
		logging.Field{Key: "idle_after", Value: idleAfter.String()})

	return &ChromeDPClient{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		idleAfter:   idleAfter,
		logger:      componentLogger,
	}, nil
}

func (cdc *ChromeDPClient) Name() string { return BackendChromeDP }

// waitNetworkIdle signals once no network request has been in flight for
// idleAfter. Used as a load heuristic for pages that keep fetching after
// the load event.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	// Arm the timer for pages that issue no requests after navigation.
	startTimer()

	return idleChan
}

// Render navigates a fresh tab to the URL, waits for network idle, and
// captures the DOM (and optionally a full-page screenshot).
func (cdc *ChromeDPClient) Render(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil render request")
	}

	tabCtx, tabCancel := chromedp.NewContext(cdc.allocCtx)
	defer tabCancel()

	// The tab context descends from the allocator, not the caller; tie the
	// two lifetimes together so caller cancellation tears the tab down.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	var statusCode int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && atomic.LoadInt64(&statusCode) == 0 {
				atomic.StoreInt64(&statusCode, resp.Response.Status)
			}
		}
	})

	idleChan := waitNetworkIdle(tabCtx, cdc.idleAfter)

	actions := []chromedp.Action{network.Enable()}
	if req.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(req.UserAgent))
	}
	actions = append(actions, chromedp.Navigate(req.URL))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chromedp navigate %s: %w", req.URL, err)
	}

	select {
	case <-idleChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tabCtx.Done():
		return nil, tabCtx.Err()
	}

	var html string
	var screenshot []byte

	capture := []chromedp.Action{chromedp.OuterHTML("html", &html)}
	if req.Screenshot {
		capture = append(capture, chromedp.FullScreenshot(&screenshot, 70))
	}
	if err := chromedp.Run(tabCtx, capture...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chromedp capture %s: %w", req.URL, err)
	}

	status := int(atomic.LoadInt64(&statusCode))
	if status == 0 {
		status = 200
	}

	return &interfaces.RenderResult{
		HTML:       []byte(html),
		Screenshot: screenshot,
		StatusCode: status,
		FetchedAt:  time.Now(),
		Backend:    BackendChromeDP,
	}, nil
}

func (cdc *ChromeDPClient) Close() error {
	cdc.logger.Info("closing chromedp webclient")
	cdc.allocCancel()
	return nil
}
