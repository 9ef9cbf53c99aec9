package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/insightloom-cli/internal/config"
	"github.com/KaramelBytes/insightloom-cli/internal/report"
	"github.com/KaramelBytes/insightloom-cli/internal/server"
)

var (
	srvFlags      analysisFlags
	srvAddr       string
	srvReport     string
	srvProvider   string
	srvModel      string
	srvOllamaHost string
	srvMaxUpload  int64
	srvShutdown   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis pipeline over HTTP",
	Long: `Starts an HTTP server exposing:
  GET  /healthz
  POST /api/v1/analyze   (multipart field "file" or a raw CSV body; ?tier=, ?report=, ?name=)`,
	Example: `  insightloom serve --addr :8080
  insightloom serve --report fallback --tier technical`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := srvFlags.pipelineConfig(cmd.Flags(), cfg)
		if err != nil {
			return err
		}
		logger := zerolog.Ctx(cmd.Context())
		renderer, err := serveRenderer(logger)
		if err != nil {
			return err
		}

		addr := srvAddr
		if addr == "" && cfg != nil {
			addr = cfg.ListenAddr
		}
		if addr == "" {
			addr = ":8080"
		}
		var origins []string
		if cfg != nil {
			origins = cfg.CORSOrigins
		}
		api := server.NewWebAPI(*logger, server.Config{
			Addr:            addr,
			ShutdownTimeout: time.Duration(srvShutdown) * time.Second,
			AllowedOrigins:  origins,
			MaxUploadBytes:  srvMaxUpload,
			Pipeline:        pc,
			Renderer:        renderer,
		})
		fmt.Printf("✓ Listening on %s (reports: %s)\n", addr, rendererName(renderer))
		return api.Start(cmd.Context())
	},
}

// serveRenderer picks the AI renderer when the provider is usable and the
// fallback otherwise.
func serveRenderer(logger *zerolog.Logger) (report.ReportRenderer, error) {
	switch srvReport {
	case reportFallback:
		return report.FallbackRenderer{}, nil
	case reportAI:
	default:
		return nil, fmt.Errorf("unsupported --report: %s (use ai|fallback)", srvReport)
	}
	providerName := resolveProvider(cfg, srvProvider)
	if !hasCredentials(cfg, providerName) {
		logger.Warn().Str("provider", providerName).Msg("no API key configured; serving built-in reports")
		return report.FallbackRenderer{}, nil
	}
	rt, providerName, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: srvProvider, OllamaHost: srvOllamaHost})
	if err != nil {
		return nil, err
	}
	r := report.NewAIRenderer(rt, providerName, selectModel(cfg, srvModel, providerName))
	if cfg != nil && cfg.MaxTokens > 0 {
		r.MaxTokens = cfg.MaxTokens
	}
	if cfg != nil && cfg.Temperature > 0 {
		r.Temperature = cfg.Temperature
	}
	return r, nil
}

// hasCredentials reports whether provider can be called; Ollama needs no key.
func hasCredentials(c *cfgpkg.Global, provider string) bool {
	switch provider {
	case ai.ProviderOllama:
		return true
	case ai.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY") != "" || (c != nil && c.AnthropicAPIKey != "")
	}
	return os.Getenv("OPENROUTER_API_KEY") != "" || (c != nil && c.APIKey != "")
}

func rendererName(r report.ReportRenderer) string {
	if ar, ok := r.(*report.AIRenderer); ok {
		return ar.Provider + "/" + ar.Model
	}
	return "built-in"
}

func init() {
	rootCmd.AddCommand(serveCmd)
	fs := serveCmd.Flags()
	srvFlags.register(fs)
	fs.StringVar(&srvAddr, "addr", "", "listen address (default from config listen_addr, :8080)")
	fs.StringVar(&srvReport, "report", reportAI, "report renderer: ai|fallback")
	fs.StringVar(&srvProvider, "provider", "", "AI provider: openrouter|anthropic|ollama")
	fs.StringVar(&srvModel, "model", "", "override model")
	fs.StringVar(&srvOllamaHost, "ollama-host", "", "override Ollama host")
	fs.Int64Var(&srvMaxUpload, "max-upload-bytes", 32<<20, "largest accepted upload in bytes")
	fs.IntVar(&srvShutdown, "shutdown-timeout", 10, "graceful shutdown timeout in seconds")
}
