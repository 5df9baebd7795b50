// Package main provides the command-line interface for georouter.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ch00k/georouter/internal/api"
	"github.com/Ch00k/georouter/internal/cli"
	"github.com/Ch00k/georouter/internal/console"
	"github.com/Ch00k/georouter/internal/formatter"
	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/metrics"
	"github.com/Ch00k/georouter/internal/router"
	"github.com/Ch00k/georouter/internal/servers"
	"github.com/Ch00k/georouter/internal/service"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

// Dependencies encapsulates external dependencies for testing
type Dependencies struct {
	LoadEnv          func() error
	Getenv           func(string) string
	ParseServersFile func(string, logging.LogLevel) ([]router.Server, error)
	Serve            func(context.Context, *service.Service, string, int) error
	Stdin            io.Reader
	Stdout           io.Writer
}

// DefaultDependencies returns production dependencies
func DefaultDependencies() Dependencies {
	return Dependencies{
		LoadEnv:          loadDotEnv,
		Getenv:           os.Getenv,
		ParseServersFile: servers.ParseFileWithLogLevel,
		Serve: func(ctx context.Context, s *service.Service, addr string, maxConns int) error {
			return s.ListenAndServe(ctx, addr, maxConns)
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
}

// loadDotEnv loads .env from the working directory into the process environment.
// A missing file is not an error; variables already set are not overridden.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func main() {
	// Create a context that can be cancelled with SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := run(ctx, os.Args[1:], DefaultDependencies()); err != nil {
		// Don't print error if user cancelled with Ctrl-C
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Operation cancelled")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.LoadEnv != nil {
		if err := deps.LoadEnv(); err != nil {
			return err
		}
	}

	// Parse command-line flags
	config, err := cli.ParseFlags(args, deps.Getenv)
	if err != nil {
		return err
	}
	if config.LogLevel <= logging.LogLevelDebug {
		log.Printf("Config: %+v", config)
	}

	// Handle help flag
	if config.ShowHelp {
		cli.PrintUsage(deps.Stdout, Version)
		return nil
	}

	// Handle version flag
	if config.ShowVersion {
		_, _ = fmt.Fprintf(deps.Stdout, "georouter %s\n", Version)
		return nil
	}

	operationStart := time.Now()
	defer func() {
		if config.LogLevel <= logging.LogLevelDebug {
			log.Printf("georouter (%s mode) ran for %v", config.Mode(), time.Since(operationStart))
		}
	}()

	if config.Mode() == cli.ModeRemote {
		return runRemote(ctx, config, deps)
	}

	seed, err := seedServers(config.LogLevel, !config.NoDefaultServers, config.ServersFile, deps.ParseServersFile)
	if err != nil {
		return err
	}

	if config.Mode() == cli.ModeService {
		return runService(ctx, config, seed, deps)
	}

	r := router.New(router.WithLogLevel(config.LogLevel))
	registerServers(config.LogLevel, r, seed)

	return runConsole(ctx, config, console.Local(r), r.Servers(), deps)
}

// runService serves the router over HTTP until ctx is cancelled
func runService(ctx context.Context, config *cli.Config, seed []router.Server, deps Dependencies) error {
	logger := logging.Default(config.LogLevel)
	collector := metrics.NewCollector()
	hub := service.NewHub(logger)

	r := router.New(
		router.WithLogLevel(config.LogLevel),
		router.WithObserver(collector),
		router.WithObserver(hub),
	)
	registerServers(config.LogLevel, r, seed)

	svc := service.New(r,
		service.WithLogger(logger),
		service.WithCollector(collector),
		service.WithHub(hub),
	)

	return deps.Serve(ctx, svc, config.Listen, config.MaxConns)
}

// runRemote drives a remote georouter service from the console
func runRemote(ctx context.Context, config *cli.Config, deps Dependencies) error {
	client := api.NewClient(
		api.WithURL(config.Remote),
		api.WithTimeout(time.Duration(config.Timeout)*time.Millisecond),
		api.WithVersion(Version),
		api.WithLogLevel(config.LogLevel),
	)

	registered, err := fetchServers(ctx, config.LogLevel, client.Servers)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The console reports per-command failures, so an unreachable service is not fatal here
		if config.LogLevel <= logging.LogLevelWarning {
			log.Printf("Warning: could not list servers on %s: %v", config.Remote, err)
		}
	}

	return runConsole(ctx, config, client, registered, deps)
}

func runConsole(ctx context.Context, config *cli.Config, backend console.Backend, registered []router.Server, deps Dependencies) error {
	if len(registered) > 0 {
		_, _ = fmt.Fprintf(deps.Stdout, "Registered servers:\n%s", formatter.FormatServerTable(registered))
	}

	c := console.New(backend, deps.Stdin, deps.Stdout,
		console.WithColor(!config.NoColor),
		console.WithLogLevel(config.LogLevel),
	)
	return c.Run(ctx)
}
