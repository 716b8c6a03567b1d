// Package pipeline contains the analysis orchestrator: the component
// that sequences admission, caching, article fetching, concurrent
// model inference, comparative analysis and audio generation into one
// deterministic request/response cycle.
package pipeline

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/newsbrief/internal/analysis"
	"github.com/seenimoa/newsbrief/internal/infra"
	"github.com/seenimoa/newsbrief/internal/inference"
	"github.com/seenimoa/newsbrief/pkg/models"
)

// maxQueryRunes bounds the company query length.
const maxQueryRunes = 50

// ArticleFetcher returns a bounded set of raw articles for a company.
type ArticleFetcher interface {
	Fetch(ctx context.Context, company string) ([]models.Article, error)
}

// InferenceEngine produces summary, sentiment and topics for one
// article's text.
type InferenceEngine interface {
	Infer(ctx context.Context, text string) (*inference.Result, error)
}

// Localizer translates a digest and synthesizes speech audio.
type Localizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Orchestrator composes the full analysis lifecycle. Safe for use by
// concurrent requests; cache and limiter state is process-wide.
type Orchestrator struct {
	fetcher ArticleFetcher
	engine  InferenceEngine
	speaker Localizer // nil disables audio

	cache   *infra.ResultCache
	limiter *infra.ClientLimiter
	flight  singleflight.Group

	maxArticles  int
	concurrency  int
	fetchTimeout time.Duration
	inferTimeout time.Duration
	speakTimeout time.Duration
}

// OrchestratorConfig holds the collaborators and policy knobs for
// creating an Orchestrator.
type OrchestratorConfig struct {
	Fetcher ArticleFetcher
	Engine  InferenceEngine
	Speaker Localizer // optional

	Cache   *infra.ResultCache
	Limiter *infra.ClientLimiter

	MaxArticles  int
	Concurrency  int
	FetchTimeout time.Duration
	InferTimeout time.Duration
	SpeakTimeout time.Duration
}

// NewOrchestrator creates a configured Orchestrator. Zero-valued knobs
// fall back to conservative defaults.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		fetcher:      cfg.Fetcher,
		engine:       cfg.Engine,
		speaker:      cfg.Speaker,
		cache:        cfg.Cache,
		limiter:      cfg.Limiter,
		maxArticles:  cfg.MaxArticles,
		concurrency:  cfg.Concurrency,
		fetchTimeout: cfg.FetchTimeout,
		inferTimeout: cfg.InferTimeout,
		speakTimeout: cfg.SpeakTimeout,
	}
	if o.maxArticles <= 0 {
		o.maxArticles = 5
	}
	if o.concurrency <= 0 {
		o.concurrency = 3
	}
	if o.fetchTimeout <= 0 {
		o.fetchTimeout = 20 * time.Second
	}
	if o.inferTimeout <= 0 {
		o.inferTimeout = 30 * time.Second
	}
	if o.speakTimeout <= 0 {
		o.speakTimeout = 30 * time.Second
	}
	if o.cache == nil {
		o.cache = infra.NewResultCache(10*time.Minute, 256)
	}
	if o.limiter == nil {
		o.limiter = infra.NewClientLimiter(10, time.Minute)
	}
	return o
}

// Analyze runs the full pipeline for one company query on behalf of
// clientID. Identical concurrent queries share a single computation;
// identical queries within the cache TTL return the stored response
// unchanged.
func (o *Orchestrator) Analyze(ctx context.Context, query, clientID string) (*models.Report, error) {
	company := strings.TrimSpace(query)
	if company == "" {
		return nil, failf(CodeInvalidInput, nil, "company name is required")
	}
	if utf8.RuneCountInString(company) > maxQueryRunes {
		return nil, failf(CodeInvalidInput, nil, "company name exceeds %d characters", maxQueryRunes)
	}

	// Rejected requests stay cheap: no cache lookup, no pipeline work.
	if !o.limiter.Admit(clientID) {
		return nil, failf(CodeRateLimited, nil, "rate limit exceeded for client %s", clientID)
	}

	key := strings.ToLower(company)
	if cached, ok := o.cache.Get(key); ok {
		return cached.Value.(*models.Report), nil
	}

	// Single flight per key: concurrent requests for the same company
	// wait for the leader and share its result. A failed leader
	// propagates its error and clears the flight so the next request
	// retries instead of hanging.
	v, err, _ := o.flight.Do(key, func() (any, error) {
		// A follower may have raced past the miss above while the
		// previous leader was storing; the cache is authoritative.
		if cached, ok := o.cache.Get(key); ok {
			return cached.Value.(*models.Report), nil
		}
		return o.compute(context.WithoutCancel(ctx), key, company)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Report), nil
}

// compute runs the uncached pipeline: fetch, fan-out inference,
// comparative analysis, digest audio, assembly, cache store. It runs
// under a cancel-detached context so a disconnecting client does not
// waste work that would serve the next caller.
func (o *Orchestrator) compute(ctx context.Context, key, company string) (*models.Report, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	articles, err := o.fetcher.Fetch(fetchCtx, company)
	cancel()
	if err != nil {
		return nil, failf(CodeNoDataFound, err, "fetching articles for %q", company)
	}
	if len(articles) == 0 {
		return nil, failf(CodeNoDataFound, nil, "no articles found for %q", company)
	}
	if len(articles) > o.maxArticles {
		articles = articles[:o.maxArticles]
	}

	analyses := o.inferAll(ctx, articles)
	if len(analyses) == 0 {
		return nil, failf(CodeInferenceFailed, nil, "inference failed for all %d articles", len(articles))
	}

	coverage, dist := analysis.Compare(analyses)

	report := &models.Report{
		Company:               company,
		Articles:              analyses,
		SentimentDistribution: dist,
		CoverageAnalysis:      coverage,
		Verdict:               analysis.Verdict(company, dist),
		Audio:                 o.digestAudio(ctx, analyses),
	}

	o.cache.Put(key, report)
	return report, nil
}

// inferAll fans inference out over the articles with bounded
// parallelism. A failing article is dropped and logged; it does not
// abort the batch.
func (o *Orchestrator) inferAll(ctx context.Context, articles []models.Article) []models.ArticleAnalysis {
	results := make([]*inference.Result, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, article := range articles {
		i, article := i, article
		g.Go(func() error {
			inferCtx, cancel := context.WithTimeout(gctx, o.inferTimeout)
			defer cancel()

			res, err := o.engine.Infer(inferCtx, article.RawText)
			if err != nil {
				log.Printf("inference failed for %q: %v", article.URL, err)
				return nil // isolated: drop this article only
			}
			results[i] = res
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	// Keep input order so responses are deterministic.
	analyses := make([]models.ArticleAnalysis, 0, len(articles))
	for i, res := range results {
		if res == nil {
			continue
		}
		topics := res.Topics
		if topics == nil {
			topics = []string{}
		}
		analyses = append(analyses, models.ArticleAnalysis{
			Title:     articles[i].Title,
			Summary:   res.Summary,
			URL:       articles[i].URL,
			Topics:    topics,
			Sentiment: res.Sentiment,
		})
	}
	return analyses
}

// digestAudio builds the spoken digest from the article summaries.
// Audio is an enhancement: any failure degrades to a nil payload
// rather than failing the request.
func (o *Orchestrator) digestAudio(ctx context.Context, analyses []models.ArticleAnalysis) *string {
	if o.speaker == nil {
		return nil
	}

	parts := make([]string, 0, len(analyses))
	for _, a := range analyses {
		parts = append(parts, a.Summary)
	}
	digest := strings.Join(parts, " ")

	speakCtx, cancel := context.WithTimeout(ctx, o.speakTimeout)
	defer cancel()

	audio, err := o.speaker.Speak(speakCtx, digest)
	if err != nil {
		log.Printf("localization degraded, returning response without audio: %v", err)
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(audio)
	return &encoded
}
