// Command gemsync pulls balances, trades and deposits/withdrawals from a
// Gemini account and prints them as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gemsync/pkg/asset"
	"gemsync/pkg/core"
	"gemsync/pkg/exchange"
	"gemsync/pkg/exchange/gemini"
)

var (
	configPath string
	assetsPath string
	sandbox    bool
	logLevel   string
	startFlag  string
	endFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "gemsync",
	Short: "Gemini account data acquisition",
	Long: `gemsync queries a Gemini account for balances, trade history and
deposits/withdrawals and prints normalized records as JSON.

Credentials are read from the config file or from GEMINI_API_KEY and
GEMINI_API_SECRET.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&assetsPath, "assets", "", "Path to a YAML asset and USD price table")
	rootCmd.PersistentFlags().BoolVar(&sandbox, "sandbox", false, "Use the Gemini sandbox")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	for _, cmd := range []*cobra.Command{tradesCmd, movementsCmd} {
		cmd.Flags().StringVar(&startFlag, "start", "", "Window start, RFC3339 or unix seconds (default: 30 days ago)")
		cmd.Flags().StringVar(&endFlag, "end", "", "Window end, RFC3339 or unix seconds (default: now)")
	}

	rootCmd.AddCommand(validateCmd, symbolsCmd, balancesCmd, tradesCmd, movementsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the per-invocation wiring shared by all commands.
type app struct {
	container *exchange.Container
	client    *gemini.Exchange
	logger    zerolog.Logger
}

func newApp() (*app, error) {
	config, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if sandbox {
		config.WithSandbox(true)
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := []gemini.Option{gemini.WithLogger(logger)}
	if assetsPath != "" {
		registry, prices, err := asset.LoadTable(assetsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gemini.WithResolver(registry), gemini.WithPriceOracle(prices))
	}

	container := exchange.NewContainer()
	client, err := gemini.Register(container, config, opts...)
	if err != nil {
		return nil, err
	}

	return &app{container: container, client: client, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.container.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close exchanges")
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}
