// newsbrief — company news analysis service.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seenimoa/newsbrief/api"
	"github.com/seenimoa/newsbrief/internal/config"
	"github.com/seenimoa/newsbrief/internal/fetch"
	"github.com/seenimoa/newsbrief/internal/infra"
	"github.com/seenimoa/newsbrief/internal/inference"
	"github.com/seenimoa/newsbrief/internal/locale"
	"github.com/seenimoa/newsbrief/internal/pipeline"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsbrief",
	Short: "newsbrief — company news analysis and sentiment digests",
	Long: `newsbrief scrapes recent news coverage for a company, runs
summarization, sentiment and topic inference over each article, and
produces a comparative coverage report with an optional translated
audio digest.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// buildOrchestrator assembles the pipeline from configuration: the
// article source, the inference engine and the optional localizer.
func buildOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, error) {
	var fetcher pipeline.ArticleFetcher
	switch cfg.Fetch.Source {
	case "topic":
		fetcher = fetch.NewTopicScraper(cfg.Fetch.BaseURL, cfg.Fetch.ArticleCount, cfg.Fetch.Timeout())
	case "rss":
		if len(cfg.Fetch.FeedURLs) == 0 {
			return nil, fmt.Errorf("fetch source %q requires feed_urls", cfg.Fetch.Source)
		}
		fetcher = fetch.NewFeedFetcher(cfg.Fetch.FeedURLs, cfg.Fetch.ArticleCount, cfg.Fetch.Timeout())
	default:
		return nil, fmt.Errorf("unknown fetch source %q (want topic or rss)", cfg.Fetch.Source)
	}

	var engine pipeline.InferenceEngine
	if cfg.Inference.Endpoint != "" {
		engine = inference.NewClient(cfg.Inference.Endpoint, cfg.Inference.Timeout())
	} else {
		engine = inference.NewLexicon()
	}

	var speaker pipeline.Localizer
	if cfg.Locale.Enabled {
		speaker = locale.NewSpeaker(cfg.Locale.TranslateURL, cfg.Locale.TTSURL,
			cfg.Locale.TargetLanguage, cfg.Locale.Timeout())
	}

	return pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Fetcher:      fetcher,
		Engine:       engine,
		Speaker:      speaker,
		Cache:        infra.NewResultCache(cfg.Cache.TTL(), cfg.Cache.MaxEntries),
		Limiter:      infra.NewClientLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window()),
		MaxArticles:  cfg.Fetch.ArticleCount,
		Concurrency:  cfg.Inference.Concurrency,
		FetchTimeout: cfg.Fetch.Timeout(),
		InferTimeout: cfg.Inference.Timeout(),
		SpeakTimeout: cfg.Locale.Timeout(),
	}), nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsbrief %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [company]",
	Short: "Run a one-shot news analysis for a company",
	Long:  "Fetch recent coverage, analyze each article and print the comparative report as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}

		noAudio, _ := cmd.Flags().GetBool("no-audio")
		if noAudio {
			cfg.Locale.Enabled = false
			if orch, err = buildOrchestrator(cfg); err != nil {
				return err
			}
		}

		report, err := orch.Analyze(cmd.Context(), args[0], "cli")
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("no-audio", false, "skip the translated audio digest")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}

		srv := api.NewServer(cfg, orch)
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting newsbrief API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := "lexicon (offline)"
		if cfg.Inference.Endpoint != "" {
			engine = cfg.Inference.Endpoint
		}
		audio := "disabled"
		if cfg.Locale.Enabled {
			audio = fmt.Sprintf("enabled (target: %s)", cfg.Locale.TargetLanguage)
		}

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  newsbrief — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Source:        %s\n", cfg.Fetch.Source)
		fmt.Printf("    Articles:      %d per analysis\n", cfg.Fetch.ArticleCount)
		fmt.Printf("    Inference:     %s\n", engine)
		fmt.Printf("    Audio digest:  %s\n", audio)
		fmt.Printf("    Rate limit:    %d req / %s per client\n", cfg.RateLimit.Requests, cfg.RateLimit.Window())
		fmt.Printf("    Cache:         %s TTL, %d entries\n", cfg.Cache.TTL(), cfg.Cache.MaxEntries)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
