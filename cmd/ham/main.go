// Command ham is the CLI for the ham agent framework.
//
// Usage:
//
//	ham chat --config config.yaml
//	ham run "summarize this repo" --config config.yaml
//	ham validate config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	ham "github.com/hsaeed3/ham"
	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/logger"
	"github.com/hsaeed3/ham/pkg/observability"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat     ChatCmd     `cmd:"" help:"Start an interactive chat session."`
	Run      RunCmd      `cmd:"" help:"Run a single prompt and print the response."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
	Trace     bool   `help:"Export spans to stdout."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := ham.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "(devel)" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	fmt.Println(info.String())
	return nil
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("ham"),
		kong.Description("Multi-step tool-calling agents over hosted language models."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initLogger configures slog from CLI flags, with env vars as fallback.
func initLogger(cli *CLI) (func(), error) {
	logLevel := cli.LogLevel
	if v := os.Getenv("LOG_LEVEL"); logLevel == "info" && v != "" {
		logLevel = v
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	logFile := cli.LogFile
	if logFile == "" {
		logFile = os.Getenv("LOG_FILE")
	}

	output := os.Stderr
	cleanup := func() {}
	if logFile != "" {
		file, closeFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFn
	}

	logger.Init(level, output, cli.LogFormat)
	return cleanup, nil
}

// loadConfig reads the config file when given, or builds a zero-config
// document from environment variables.
func loadConfig(ctx context.Context, cli *CLI) (*config.Config, func(), error) {
	// .env next to the working directory participates in ${VAR} expansion.
	_ = config.LoadEnvFiles()

	closeFn := func() {}

	var cfg *config.Config
	if cli.Config != "" {
		loaded, loader, err := config.LoadFile(ctx, cli.Config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
		closeFn = func() { _ = loader.Close() }
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	if cli.Trace || cfg.Tracing.Enabled {
		if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
			Enabled:      true,
			SamplingRate: cfg.Tracing.SamplingRate,
			ServiceName:  cfg.Tracing.ServiceName,
		}); err != nil {
			slog.Warn("Failed to initialize tracer", "error", err)
		}
	}

	return cfg, closeFn, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()
	return ctx, cancel
}
