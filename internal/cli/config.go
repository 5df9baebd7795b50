// Package cli provides command-line interface configuration and flag parsing functionality.
package cli

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ch00k/georouter/internal/logging"
)

// Environment variables consulted for defaults. Flags take precedence.
const (
	EnvListen   = "GEOROUTER_LISTEN"
	EnvLogLevel = "GEOROUTER_LOG_LEVEL"
	EnvMaxConns = "GEOROUTER_MAX_CONNS"
	EnvRemote   = "GEOROUTER_REMOTE"
)

const (
	defaultMaxConns = 100
	maxMaxConns     = 10000
	defaultTimeout  = 5000
	minTimeout      = 100
	maxTimeout      = 60000
)

// Mode selects what the program does after parsing
type Mode int

const (
	// ModeConsole runs the interactive console against an in-process router
	ModeConsole Mode = iota
	// ModeRemote runs the interactive console against a remote service
	ModeRemote
	// ModeService runs the HTTP service
	ModeService
)

func (m Mode) String() string {
	switch m {
	case ModeConsole:
		return "console"
	case ModeRemote:
		return "remote"
	case ModeService:
		return "service"
	default:
		return "unknown"
	}
}

// Config holds all command-line configuration options for the application.
type Config struct {
	ShowHelp         bool
	ShowVersion      bool
	LogLevel         logging.LogLevel
	ServersFile      string
	NoDefaultServers bool
	NoColor          bool
	Listen           string
	MaxConns         int
	Remote           string
	Timeout          int
}

// Mode reports the run mode implied by the configuration
func (c *Config) Mode() Mode {
	switch {
	case c.Listen != "":
		return ModeService
	case c.Remote != "":
		return ModeRemote
	default:
		return ModeConsole
	}
}

// ParseFlags parses command-line arguments manually to support GNU-style long flags.
// getenv supplies environment defaults and may be nil.
func ParseFlags(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		MaxConns: defaultMaxConns,
		Timeout:  defaultTimeout,
		LogLevel: logging.LogLevelError,
	}

	if getenv != nil {
		if err := applyEnv(cfg, getenv); err != nil {
			return nil, err
		}
	}

	// Mode flags given on the command line win over a mode taken from the environment
	var listenFlag, remoteFlag, serversFileFlag bool

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "-h" || arg == "--help":
			cfg.ShowHelp = true
			return cfg, nil

		case arg == "-v" || arg == "--version":
			cfg.ShowVersion = true
			return cfg, nil

		case arg == "-l" || arg == "--log-level":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			level, err := logging.ParseLogLevel(args[i])
			if err != nil {
				return nil, err
			}
			cfg.LogLevel = level

		case arg == "-s" || arg == "--servers-file":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			cfg.ServersFile = args[i]
			serversFileFlag = true

		case arg == "--no-default-servers":
			cfg.NoDefaultServers = true

		case arg == "--no-color":
			cfg.NoColor = true

		case arg == "--listen":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			cfg.Listen = args[i]
			listenFlag = true

		case arg == "--max-conns":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			n, err := parseMaxConns(args[i])
			if err != nil {
				return nil, err
			}
			cfg.MaxConns = n

		case arg == "-r" || arg == "--remote":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			cfg.Remote = args[i]
			remoteFlag = true

		case arg == "-t" || arg == "--timeout":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			i++
			timeout, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, fmt.Errorf("invalid timeout value: %s", args[i])
			}
			if timeout < minTimeout || timeout > maxTimeout {
				return nil, fmt.Errorf("timeout must be between %d and %d", minTimeout, maxTimeout)
			}
			cfg.Timeout = timeout

		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown flag: %s", arg)

		default:
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if listenFlag && !remoteFlag {
		cfg.Remote = ""
	}
	if remoteFlag && !listenFlag {
		cfg.Listen = ""
	}
	if serversFileFlag && !remoteFlag {
		// Seed files only apply to an in-process router
		cfg.Remote = ""
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvLogLevel); v != "" {
		level, err := logging.ParseLogLevel(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}

	if v := getenv(EnvMaxConns); v != "" {
		n, err := parseMaxConns(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxConns, err)
		}
		cfg.MaxConns = n
	}

	cfg.Listen = getenv(EnvListen)
	cfg.Remote = getenv(EnvRemote)

	return nil
}

func parseMaxConns(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max-conns value: %s", s)
	}
	if n < 0 || n > maxMaxConns {
		return 0, fmt.Errorf("max-conns must be between 0 and %d", maxMaxConns)
	}
	return n, nil
}

func (c *Config) validate() error {
	if c.Listen != "" && c.Remote != "" {
		return fmt.Errorf("--listen and --remote cannot be used together")
	}

	if c.Remote != "" {
		if c.ServersFile != "" {
			return fmt.Errorf("--servers-file cannot be used with --remote")
		}
		u, err := url.Parse(c.Remote)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid remote URL: %s", c.Remote)
		}
	}

	return nil
}

// PrintUsage outputs the usage information and command-line options to the writer.
func PrintUsage(w io.Writer, version string) {
	_, _ = fmt.Fprintf(w, `georouter %s

Route geo-tagged requests to the server with the lowest simulated latency.

USAGE:
    georouter [OPTIONS]

MODES:
    Console Mode (default):       Interactive menu against an in-process router.

    Remote Mode:                  Interactive menu against a running georouter service.
                                  Activated with --remote.

    Service Mode:                 Serves the router over HTTP.
                                  Activated with --listen.

REGISTRY OPTIONS:
    -s, --servers-file PATH       Register servers from a JSON file at startup
    --no-default-servers          Do not register the built-in New York, London and Tokyo servers

SERVICE OPTIONS:
    --listen ADDR                 Serve HTTP on ADDR, e.g. :8080 (env: %s)
    --max-conns N                 Maximum concurrent connections, 0 for unlimited (default: %d, env: %s)

REMOTE OPTIONS:
    -r, --remote URL              Base URL of a georouter service (env: %s)
    -t, --timeout MS              HTTP timeout in milliseconds (default: %d, range: %d-%d)

OTHER OPTIONS:
    --no-color                    Disable colored output
    -l, --log-level LEVEL         Set log level (debug, info, warning, error; default: error, env: %s)
    -h, --help                    Show this help message
    -v, --version                 Show version information

Environment defaults are also read from a .env file in the working directory.
`, version, EnvListen, defaultMaxConns, EnvMaxConns, EnvRemote, defaultTimeout, minTimeout, maxTimeout, EnvLogLevel)
}
