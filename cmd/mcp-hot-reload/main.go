// Command mcp-hot-reload supervises a JSON-RPC stdio MCP server, restarting
// it on source changes while keeping the client connection transparently
// alive across restarts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/config"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/supervisor"
)

// watchFlags collects repeated --watch occurrences, one WatchPattern entry
// each; String joins them with commas for flag help output.
type watchFlags []string

func (w *watchFlags) String() string { return strings.Join(*w, ",") }

func (w *watchFlags) Set(value string) error {
	*w = append(*w, value)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mcp-hot-reload supervises an MCP stdio server and hot-reloads it on change.

Usage:
  mcp-hot-reload [flags] -- <serverCommand> [serverArgs...]

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mcp-hot-reload", flag.ContinueOnError)
	fs.Usage = printUsage

	var watch watchFlags
	fs.Var(&watch, "watch", "path or glob to watch for changes (repeatable)")
	buildCommand := fs.String("build", "", "command to run before restarting the child")
	debounceMs := fs.Int("debounce", -1, "debounce window in milliseconds (unset keeps the config/default value)")
	cwd := fs.String("cwd", "", "working directory for the child process")
	configPath := fs.String("config", "", "path to a JSONC or YAML config file")
	logLevel := fs.String("log-level", "", "log level recorded in the config (debug, info, warn, error); the logger always logs at info level")
	logFormat := fs.String("log-format", "", "log format: text or json (default: text on a TTY, json otherwise)")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (empty disables)")
	priorityQueue := fs.Bool("priority-queue", false, "order buffered client messages by method rank instead of FIFO")
	healthCron := fs.String("health-cron", "", "5-field cron expression scheduling a periodic health log line (empty disables)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "mcp-hot-reload: missing <serverCommand>")
		printUsage()
		return 2
	}

	cfg := config.Defaults()

	if *configPath != "" {
		fc, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcp-hot-reload: %v\n", err)
			return 1
		}
		cfg = config.ApplyFile(cfg, fc)
	}

	cfg.ServerCommand = rest[0]
	cfg.ServerArgs = rest[1:]

	if len(watch) > 0 {
		cfg.WatchPattern = []string(watch)
	}
	if *buildCommand != "" {
		cfg.BuildCommand = *buildCommand
	}
	if *debounceMs != -1 {
		cfg.DebounceMs = *debounceMs
	}
	if *cwd != "" {
		cfg.Cwd = *cwd
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *priorityQueue {
		cfg.PriorityQueue = true
	}
	if *healthCron != "" {
		cfg.HealthCron = *healthCron
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-hot-reload: %v\n", err)
		return 1
	}

	jsonOutput := supervisor.ResolveLogFormat(cfg.LogFormat) == "json"
	if err := logger.InitSlog("", jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-hot-reload: failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.CloseSlog() }()

	exitCode := 0
	sup, err := supervisor.New(cfg, func(code int) { exitCode = code })
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp-hot-reload: %v\n", err)
		return 1
	}

	sup.Run(context.Background())
	return exitCode
}
