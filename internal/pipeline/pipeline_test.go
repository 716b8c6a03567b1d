package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/newsbrief/internal/infra"
	"github.com/seenimoa/newsbrief/internal/inference"
	"github.com/seenimoa/newsbrief/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Fakes
// ════════════════════════════════════════════════════════════════════

type fakeFetcher struct {
	calls    atomic.Int64
	articles []models.Article
	err      error
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, company string) ([]models.Article, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.articles, nil
}

type fakeEngine struct {
	// failOn marks article texts whose inference call fails.
	failOn map[string]bool
}

func (e *fakeEngine) Infer(_ context.Context, text string) (*inference.Result, error) {
	if e.failOn[text] {
		return nil, fmt.Errorf("model unavailable")
	}
	return &inference.Result{
		Summary:   "summary of " + text,
		Sentiment: models.SentimentPositive,
		Topics:    []string{"shared", "topic-" + text},
	}, nil
}

type fakeSpeaker struct {
	audio []byte
	err   error
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

func testArticles(n int) []models.Article {
	arts := make([]models.Article, n)
	for i := range arts {
		arts[i] = models.Article{
			Title:   fmt.Sprintf("story %d", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			RawText: fmt.Sprintf("text-%d", i),
		}
	}
	return arts
}

func testOrchestrator(t *testing.T, cfg OrchestratorConfig) *Orchestrator {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = &fakeEngine{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = infra.NewClientLimiter(1000, time.Minute)
	}
	return NewOrchestrator(cfg)
}

// ════════════════════════════════════════════════════════════════════
// Validation & admission
// ════════════════════════════════════════════════════════════════════

func TestAnalyzeInvalidInput(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(2)}
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: fetcher})

	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("a", 51)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Analyze(context.Background(), tt.query, "client")
			code, ok := ErrorCode(err)
			if !ok || code != CodeInvalidInput {
				t.Errorf("got err %v, want code %s", err, CodeInvalidInput)
			}
		})
	}

	if fetcher.calls.Load() != 0 {
		t.Errorf("invalid input must not reach the fetcher (%d calls)", fetcher.calls.Load())
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(2)}
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: fetcher,
		Limiter: infra.NewClientLimiter(10, time.Minute),
	})

	// Use distinct queries so admitted requests are real pipeline runs.
	for i := 0; i < 10; i++ {
		if _, err := o.Analyze(context.Background(), fmt.Sprintf("company-%d", i), "client"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	_, err := o.Analyze(context.Background(), "company-11", "client")
	code, ok := ErrorCode(err)
	if !ok || code != CodeRateLimited {
		t.Fatalf("11th request: got %v, want code %s", err, CodeRateLimited)
	}

	// Rejection happened before any pipeline work.
	if fetcher.calls.Load() != 10 {
		t.Errorf("fetcher calls: got %d, want 10", fetcher.calls.Load())
	}

	// A different client is unaffected.
	if _, err := o.Analyze(context.Background(), "company-11", "other"); err != nil {
		t.Errorf("independent client rejected: %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Fetch & inference failure policy
// ════════════════════════════════════════════════════════════════════

func TestAnalyzeNoDataFound(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: &fakeFetcher{}})

	_, err := o.Analyze(context.Background(), "Ghost Corp", "client")
	code, ok := ErrorCode(err)
	if !ok || code != CodeNoDataFound {
		t.Errorf("got %v, want code %s", err, CodeNoDataFound)
	}
}

func TestAnalyzeFetchError(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{err: fmt.Errorf("upstream down")},
	})

	_, err := o.Analyze(context.Background(), "Acme", "client")
	code, ok := ErrorCode(err)
	if !ok || code != CodeNoDataFound {
		t.Errorf("got %v, want code %s", err, CodeNoDataFound)
	}
}

func TestAnalyzePartialInferenceFailure(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(5)},
		Engine:  &fakeEngine{failOn: map[string]bool{"text-1": true, "text-3": true}},
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(report.Articles) != 3 {
		t.Fatalf("got %d articles, want 3 survivors", len(report.Articles))
	}
	// Survivors keep input order.
	if report.Articles[0].Title != "story 0" || report.Articles[1].Title != "story 2" {
		t.Errorf("survivor order: %q, %q", report.Articles[0].Title, report.Articles[1].Title)
	}
	// Aggregates cover only survivors.
	if report.SentimentDistribution.Total() != 3 {
		t.Errorf("distribution total: got %d, want 3", report.SentimentDistribution.Total())
	}
	if len(report.SentimentDistribution) != 3 {
		t.Errorf("distribution must carry all three labels: %v", report.SentimentDistribution)
	}
	if len(report.CoverageAnalysis.UniqueTopics) != 3 {
		t.Errorf("unique topics per article: got %d entries", len(report.CoverageAnalysis.UniqueTopics))
	}
}

func TestAnalyzeAllInferenceFailed(t *testing.T) {
	failAll := map[string]bool{}
	for i := 0; i < 3; i++ {
		failAll[fmt.Sprintf("text-%d", i)] = true
	}
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(3)},
		Engine:  &fakeEngine{failOn: failAll},
	})

	_, err := o.Analyze(context.Background(), "Acme", "client")
	code, ok := ErrorCode(err)
	if !ok || code != CodeInferenceFailed {
		t.Errorf("got %v, want code %s", err, CodeInferenceFailed)
	}
}

func TestAnalyzeBoundsArticleCount(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher:     &fakeFetcher{articles: testArticles(9)},
		MaxArticles: 5,
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(report.Articles) != 5 {
		t.Errorf("got %d articles, want bounded 5", len(report.Articles))
	}
}

// ════════════════════════════════════════════════════════════════════
// Caching & single flight
// ════════════════════════════════════════════════════════════════════

func TestAnalyzeCachesByNormalizedQuery(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(3)}
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: fetcher})

	first, err := o.Analyze(context.Background(), "Acme Corp", "client")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Same company, different case and padding: must hit the cache.
	second, err := o.Analyze(context.Background(), "  acme corp ", "client")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls: got %d, want 1 (cache hit expected)", fetcher.calls.Load())
	}
	if first != second {
		t.Error("cache hit must return the stored response unchanged")
	}
	if !reflect.DeepEqual(first.Articles, second.Articles) {
		t.Error("articles differ between computations of the same query")
	}
}

func TestAnalyzeSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(3), delay: 50 * time.Millisecond}
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: fetcher})

	const n = 12
	var wg sync.WaitGroup
	reports := make([]*models.Report, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = o.Analyze(context.Background(), "Acme", fmt.Sprintf("client-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher calls: got %d, want 1 (single flight)", got)
	}
	for i := 1; i < n; i++ {
		if !reflect.DeepEqual(reports[0], reports[i]) {
			t.Fatalf("request %d observed a different report", i)
		}
	}
}

func TestAnalyzeFailedLeaderReleasesFlight(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("transient")}
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: fetcher})

	if _, err := o.Analyze(context.Background(), "Acme", "client"); err == nil {
		t.Fatal("expected leader failure")
	}

	// The flight must be cleared: a retry reaches the fetcher again
	// and can succeed.
	fetcher.err = nil
	fetcher.articles = testArticles(2)
	if _, err := o.Analyze(context.Background(), "Acme", "client"); err != nil {
		t.Fatalf("retry after failed leader: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls: got %d, want 2", fetcher.calls.Load())
	}
}

func TestAnalyzeClientCancellationDoesNotAbortComputation(t *testing.T) {
	fetcher := &fakeFetcher{articles: testArticles(2), delay: 30 * time.Millisecond}
	o := testOrchestrator(t, OrchestratorConfig{Fetcher: fetcher})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctx, "Acme", "client")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("computation aborted by client cancellation: %v", err)
	}

	// The result populated the cache for subsequent callers.
	if _, err := o.Analyze(context.Background(), "Acme", "other"); err != nil {
		t.Fatalf("follow-up request: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls: got %d, want 1", fetcher.calls.Load())
	}
}

// ════════════════════════════════════════════════════════════════════
// Localization
// ════════════════════════════════════════════════════════════════════

func TestAnalyzeIncludesAudio(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(2)},
		Speaker: &fakeSpeaker{audio: []byte("mp3-bytes")},
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Audio == nil {
		t.Fatal("expected audio payload")
	}
	want := base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))
	if *report.Audio != want {
		t.Errorf("audio: got %q, want %q", *report.Audio, want)
	}
}

func TestAnalyzeLocalizationDegradesGracefully(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(2)},
		Speaker: &fakeSpeaker{err: fmt.Errorf("tts down")},
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("localization failure must not fail the request: %v", err)
	}
	if report.Audio != nil {
		t.Error("audio must be nil when localization fails")
	}
	if len(report.Articles) != 2 {
		t.Errorf("articles: got %d, want 2", len(report.Articles))
	}
}

func TestAnalyzeNoSpeakerConfigured(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(1)},
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Audio != nil {
		t.Error("audio must be nil without a localizer")
	}
}

// ════════════════════════════════════════════════════════════════════
// Assembly
// ════════════════════════════════════════════════════════════════════

func TestAnalyzeReportShape(t *testing.T) {
	o := testOrchestrator(t, OrchestratorConfig{
		Fetcher: &fakeFetcher{articles: testArticles(3)},
	})

	report, err := o.Analyze(context.Background(), "Acme", "client")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.Company != "Acme" {
		t.Errorf("company: got %q", report.Company)
	}
	if report.Verdict != "Overall sentiment towards Acme is positive." {
		t.Errorf("verdict: got %q", report.Verdict)
	}
	// All fake analyses share the "shared" topic.
	if !reflect.DeepEqual(report.CoverageAnalysis.CommonTopics, []string{"shared"}) {
		t.Errorf("common topics: got %v", report.CoverageAnalysis.CommonTopics)
	}
	// 3 articles → 3 pairwise differences.
	if len(report.CoverageAnalysis.Differences) != 3 {
		t.Errorf("differences: got %d, want 3", len(report.CoverageAnalysis.Differences))
	}
	for i, a := range report.Articles {
		if a.Topics == nil {
			t.Errorf("article %d: topics must be non-nil for JSON encoding", i)
		}
	}
}
