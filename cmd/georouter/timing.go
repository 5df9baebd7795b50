package main

import (
	"context"
	"log"
	"time"

	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/router"
	"github.com/Ch00k/georouter/internal/servers"
)

// seedServers collects the startup registry with optional debug timing.
// Defaults come first, followed by the entries of path in file order.
func seedServers(
	logLevel logging.LogLevel,
	useDefaults bool,
	path string,
	parseFn func(string, logging.LogLevel) ([]router.Server, error),
) ([]router.Server, error) {
	start := time.Now()
	defer func() {
		if logLevel <= logging.LogLevelDebug {
			elapsed := time.Since(start)
			log.Printf("Seed servers completed in %v", elapsed)
		}
	}()

	var seed []router.Server
	if useDefaults {
		seed = append(seed, servers.Defaults()...)
	}

	if path != "" {
		fromFile, err := parseFn(path, logLevel)
		if err != nil {
			return nil, err
		}
		seed = append(seed, fromFile...)
	}

	return seed, nil
}

// registerServers adds the seed to the router with optional debug timing
func registerServers(logLevel logging.LogLevel, r servers.Registrar, seed []router.Server) {
	start := time.Now()
	defer func() {
		if logLevel <= logging.LogLevelDebug {
			elapsed := time.Since(start)
			log.Printf("Registered %d servers in %v", len(seed), elapsed)
		}
	}()

	servers.Register(r, seed)
}

// fetchServers lists the registry of a remote service with optional debug timing
func fetchServers(
	ctx context.Context,
	logLevel logging.LogLevel,
	fetchFn func(context.Context) ([]router.Server, error),
) ([]router.Server, error) {
	start := time.Now()
	defer func() {
		if logLevel <= logging.LogLevelDebug {
			elapsed := time.Since(start)
			log.Printf("Fetch remote servers completed in %v", elapsed)
		}
	}()

	return fetchFn(ctx)
}
