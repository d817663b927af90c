// Package main provides the entry point for the scout data agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/TFMV/scout/cmd/scout/config"
	"github.com/TFMV/scout/cmd/scout/server"
	"github.com/TFMV/scout/pkg/agent"
	"github.com/TFMV/scout/pkg/infrastructure/metrics"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
	"github.com/TFMV/scout/pkg/knowledge"
	"github.com/TFMV/scout/pkg/models"
	"github.com/TFMV/scout/pkg/tools"
	"github.com/TFMV/scout/pkg/validator"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout data analysis agent",
	Long: `Scout answers natural-language questions about your data.

It plans the analysis, runs validated read-only SQL against DuckDB,
and revises its plan from what the queries return.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scout HTTP server",
	Long: `Start the Scout agent behind an HTTP API.

Example:
  scout serve --config ./config.yaml
  scout serve --address 0.0.0.0:8080 --database ./analytics.duckdb`,
	RunE: runServer,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Run the agent once against the configured database.

Example:
  scout ask --database ./analytics.duckdb "how many orders shipped last week?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)

	for _, cmd := range []*cobra.Command{serveCmd, askCmd} {
		cmd.Flags().StringP("config", "c", "", "config file path")
		cmd.Flags().String("address", "0.0.0.0:8080", "server listen address")
		cmd.Flags().String("database", ":memory:", "DuckDB database path")
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
		cmd.Flags().Int("max-iterations", 10, "replanning iteration budget per run")
		cmd.Flags().Int("max-step-attempts", 3, "tool attempts per plan step")
		cmd.Flags().Duration("query-timeout", 30*time.Second, "per-statement timeout")
		cmd.Flags().Int("max-rows", 10000, "row cap per query")
		cmd.Flags().String("llm-provider", "openai", "chat model provider (openai, ollama)")
		cmd.Flags().String("llm-model", "gpt-4o", "chat model name")
		cmd.Flags().String("llm-base-url", "", "chat model base URL override")
		cmd.Flags().String("llm-api-key", "", "chat model API key (or SCOUT_LLM_API_KEY)")
		cmd.Flags().String("history-url", "", "query history service URL")
		cmd.Flags().Bool("metrics", true, "enable Prometheus metrics")
		cmd.Flags().String("metrics-address", ":9090", "metrics server address")
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Scout data analysis agent\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime bundles everything a command needs to answer questions.
type runtime struct {
	cfg          *config.Config
	logger       zerolog.Logger
	pool         pool.ConnectionPool
	orchestrator *agent.Orchestrator
}

func (rt *runtime) Close() {
	if err := rt.pool.Close(); err != nil {
		rt.logger.Error().Err(err).Msg("Failed to close connection pool")
	}
}

func buildRuntime(cfg *config.Config, logger zerolog.Logger, collector metrics.Collector) (*runtime, error) {
	p, err := pool.New(pool.Config{
		DSN:               cfg.Database,
		BaseConnections:   cfg.ConnectionPool.BaseConnections,
		OverflowLimit:     cfg.ConnectionPool.OverflowLimit,
		AcquireTimeout:    cfg.ConnectionPool.AcquireTimeout,
		StatementTimeout:  cfg.Agent.QueryTimeout,
		ConnMaxLifetime:   cfg.ConnectionPool.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.ConnectionPool.ConnMaxIdleTime,
		HealthCheckPeriod: cfg.ConnectionPool.HealthCheckPeriod,
	}, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	v := validator.New(
		validator.WithMaxLength(cfg.Validator.MaxStatementLength),
		validator.WithRowCeiling(cfg.Validator.RowCeiling),
	)

	var history knowledge.HistoryClient
	registry := tools.NewRegistry(logger, collector)
	registry.Register(tools.NewExecuteSQLTool(v, p, collector, logger, cfg.Agent.MaxRows))
	registry.Register(tools.NewExplainTool(v, p, logger))
	registry.Register(tools.NewSchemaTool(knowledge.NewSchemaRepository(p, logger)))
	if cfg.History.Enabled {
		client := knowledge.NewHTTPHistoryClient(cfg.History.URL, cfg.History.Timeout, logger)
		history = client
		registry.Register(tools.NewHistoryTool(client, logger))

		probeCtx, cancel := context.WithTimeout(context.Background(), cfg.History.Timeout)
		if err := client.HealthCheck(probeCtx); err != nil {
			logger.Warn().Err(err).Msg("Query history service not reachable at startup")
		}
		cancel()
	}

	model, err := newModel(cfg.LLM)
	if err != nil {
		p.Close()
		return nil, err
	}

	planner := agent.NewLLMPlanner(model, logger)
	executor := agent.NewExecutor(registry, planner, logger)
	orchestrator := agent.NewOrchestrator(planner, planner, executor, history, logger, collector)

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		pool:         p,
		orchestrator: orchestrator,
	}, nil
}

func newModel(cfg config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return model, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("Starting Scout server")

	var collector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector("scout", prometheus.DefaultRegisterer)
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	} else {
		collector = metrics.NewNoOpCollector()
	}

	rt, err := buildRuntime(cfg, logger, collector)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(cfg, rt.orchestrator, rt.pool, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Stop()
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg.LogLevel)
	rt, err := buildRuntime(cfg, logger, metrics.NewNoOpCollector())
	if err != nil {
		return err
	}
	defer rt.Close()

	question := models.NewQuestion(args[0], models.RunConfig{
		Database:        cfg.Database,
		MaxIterations:   cfg.Agent.MaxIterations,
		MaxStepAttempts: cfg.Agent.MaxStepAttempts,
		QueryTimeout:    cfg.Agent.QueryTimeout,
		MaxRows:         cfg.Agent.MaxRows,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resp := rt.orchestrator.Run(ctx, question)

	fmt.Printf("\n%s\n", resp.Answer)
	if resp.Result != nil && len(resp.Result.Rows) > 0 {
		fmt.Println()
		renderResult(resp.Result)
	}
	if resp.SQL != "" {
		fmt.Printf("\nSQL: %s\n", resp.SQL)
	}
	fmt.Printf("Status: %s (%d iteration(s))\n", resp.Status, resp.Iterations)

	if resp.Status == models.StatusFailed {
		os.Exit(1)
	}
	return nil
}

// renderResult prints a result set as a table, truncating wide results
// for terminal display.
func renderResult(rs *models.ResultSet) {
	const displayCap = 50

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := table.Row{}
	for _, c := range rs.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)

	for i, row := range rs.Rows {
		if i >= displayCap {
			break
		}
		r := table.Row{}
		for _, v := range row {
			r = append(r, v)
		}
		t.AppendRow(r)
	}
	t.Render()

	if len(rs.Rows) > displayCap {
		fmt.Printf("(%d of %d rows shown)\n", displayCap, len(rs.Rows))
	}
	if rs.Truncated {
		fmt.Println("(result truncated at the row cap)")
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Address = viper.GetString("address")
	cfg.Database = viper.GetString("database")
	cfg.LogLevel = viper.GetString("log-level")
	cfg.Agent.MaxIterations = viper.GetInt("max-iterations")
	cfg.Agent.MaxStepAttempts = viper.GetInt("max-step-attempts")
	cfg.Agent.QueryTimeout = viper.GetDuration("query-timeout")
	cfg.Agent.MaxRows = viper.GetInt("max-rows")
	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	if historyURL := viper.GetString("history-url"); historyURL != "" {
		cfg.History.Enabled = true
		cfg.History.URL = historyURL
	}
	cfg.Metrics.Enabled = viper.GetBool("metrics")
	cfg.Metrics.Address = viper.GetString("metrics-address")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "scout")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
