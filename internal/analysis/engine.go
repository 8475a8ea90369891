package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/llm"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
)

// Document is one extracted page feeding the analysis corpus.
type Document struct {
	URL  string
	Text string
}

// ValidationRecord captures a model response's validation outcome for
// offline repair-rule tuning.
type ValidationRecord struct {
	Key     string           `json:"key"`
	Status  ValidationStatus `json:"status"`
	Failure FailureKind      `json:"failure,omitempty"`
	// RawOutput is the truncated model response.
	RawOutput string `json:"raw_output,omitempty"`
}

// ValidationSink receives validation records. May be nil on the Engine.
type ValidationSink interface {
	RecordValidation(rec ValidationRecord)
}

// Engine runs the per-key analysis over an extracted corpus. Independent
// keys run concurrently up to cfg.KeyConcurrency; keys with prerequisites
// run in a second wave with the prerequisite findings embedded in their
// prompt.
type Engine struct {
	cfg    *config.LLMConfig
	chat   interfaces.ChatClient
	sink   ValidationSink
	logger logging.Logger
}

func NewEngine(cfg *config.LLMConfig, chat interfaces.ChatClient, sink ValidationSink, logger logging.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		chat:   chat,
		sink:   sink,
		logger: logger.With(logging.Field{Key: "component", Value: "analysis"}),
	}
}

// BuildCorpus concatenates page texts with URL markers, truncated to
// maxBytes. Pages keep their extraction order, so the highest ranked pages
// survive truncation.
func BuildCorpus(docs []Document, maxBytes int) string {
	var b strings.Builder
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		section := fmt.Sprintf("=== PAGE: %s ===\n%s\n\n", d.URL, d.Text)
		if maxBytes > 0 && b.Len()+len(section) > maxBytes {
			remaining := maxBytes - b.Len()
			if remaining > 100 {
				b.WriteString(section[:remaining])
			}
			break
		}
		b.WriteString(section)
	}
	return strings.TrimSpace(b.String())
}

// Synthesize produces the shared brand overview. A failure here is
// non-fatal; per-key prompts simply run without the overview.
func (e *Engine) Synthesize(ctx context.Context, corpus string) (string, error) {
	resp, err := e.chat.Complete(ctx, &interfaces.ChatRequest{
		System:      systemPersona,
		Prompt:      synthesisPrompt(corpus),
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("brand synthesis: %w", err)
	}
	return strings.TrimSpace(resp.Raw), nil
}

// AnalyzeAll runs every key of the mode and returns results in the mode's
// canonical key order. onResult is invoked as each key completes, in
// completion order; it may be nil.
func (e *Engine) AnalyzeAll(ctx context.Context, mode Mode, corpus, overview string, onResult func(Result)) []Result {
	schema := schemaFor(mode)
	keys := mode.Keys()

	var independent, dependent []string
	for _, k := range keys {
		if len(dependsOn(k)) > 0 {
			dependent = append(dependent, k)
		} else {
			independent = append(independent, k)
		}
	}

	byKey := make(map[string]Result, len(keys))
	var mu sync.Mutex
	emit := func(r Result) {
		mu.Lock()
		byKey[r.Key] = r
		mu.Unlock()
		if onResult != nil {
			onResult(r)
		}
	}

	concurrency := e.cfg.KeyConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, key := range independent {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			emit(e.analyzeKey(ctx, key, schema, corpus, overview, ""))
		}(key)
	}
	wg.Wait()

	for _, key := range dependent {
		mu.Lock()
		var deps []Result
		for _, dk := range dependsOn(key) {
			if r, ok := byKey[dk]; ok {
				deps = append(deps, r)
			}
		}
		mu.Unlock()
		emit(e.analyzeKey(ctx, key, schema, corpus, overview, dependencyContext(deps)))
	}

	out := make([]Result, 0, len(keys))
	for _, k := range keys {
		if r, ok := byKey[k]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) analyzeKey(ctx context.Context, key string, schema Schema, corpus, overview, depContext string) Result {
	resp, err := e.chat.Complete(ctx, &interfaces.ChatRequest{
		System:      systemPersona,
		Prompt:      keyPrompt(key, schema, corpus, overview, depContext),
		Key:         key,
		JSONOutput:  true,
		Temperature: 0.2,
	})
	if err != nil {
		kind := classifyFailure(err)
		e.logger.Error("key analysis failed",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "failure", Value: string(kind)},
			logging.Field{Key: "error", Value: err.Error()})
		res := Result{Key: key, Status: StatusDiscarded, Failure: kind}
		e.record(res, "")
		return res
	}

	res := schema.ValidateAndRepair(key, resp.Raw)
	res.Model = resp.Model
	if res.Failed() {
		res.Failure = FailValidation
		e.logger.Error("model response unrecoverable, key discarded",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "raw", Value: truncateRaw(resp.Raw)})
	} else if res.Status == StatusRepaired {
		e.logger.Warn("model response repaired",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "discarded_fields", Value: strings.Join(res.DiscardedFields, ",")})
	}
	e.record(res, resp.Raw)
	return res
}

func (e *Engine) record(res Result, raw string) {
	metrics.KeyResultsTotal.WithLabelValues(res.Key, string(res.Status)).Inc()
	if e.sink == nil {
		return
	}
	rec := ValidationRecord{Key: res.Key, Status: res.Status, Failure: res.Failure}
	if res.Status != StatusValid {
		rec.RawOutput = truncateRaw(raw)
	}
	e.sink.RecordValidation(rec)
}

// Summarize produces the closing executive summary from the completed
// results.
func (e *Engine) Summarize(ctx context.Context, mode Mode, results []Result) (string, error) {
	usable := 0
	for _, r := range results {
		if !r.Failed() {
			usable++
		}
	}
	if usable == 0 {
		return "", errors.New("no key produced a usable analysis")
	}

	resp, err := e.chat.Complete(ctx, &interfaces.ChatRequest{
		System:      systemPersona,
		Prompt:      summaryPrompt(mode, results),
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("executive summary: %w", err)
	}
	return strings.TrimSpace(resp.Raw), nil
}

// Quantify tallies the results into the closing summary numbers. Strong
// means score 4 or 5, weak 0 to 2.
func Quantify(results []Result) QuantSummary {
	q := QuantSummary{}
	sum := 0
	for _, r := range results {
		if r.Failed() {
			q.Failed++
			continue
		}
		q.Analyzed++
		sum += r.Score
		switch {
		case r.Score >= 4:
			q.Strong++
			q.StrongKeys = append(q.StrongKeys, r.Key)
		case r.Score <= 2:
			q.Weak++
			q.WeakKeys = append(q.WeakKeys, r.Key)
		}
	}
	if q.Analyzed > 0 {
		q.AvgScore = float64(sum) / float64(q.Analyzed)
	}
	return q
}

func classifyFailure(err error) FailureKind {
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		switch lerr.Kind {
		case llm.KindTimeout:
			return FailTimeout
		case llm.KindRateLimited:
			return FailRateLimit
		case llm.KindQuotaExceeded:
			return FailQuotaExceeded
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	return FailUnknown
}
