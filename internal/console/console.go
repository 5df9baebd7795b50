// Package console implements the interactive operator console for the router.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/Ch00k/georouter/internal/formatter"
	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/router"
)

// Command is a validated menu selection
type Command int

// Menu commands, numbered as shown to the operator
const (
	CommandNone Command = iota
	CommandAddServer
	CommandRoute
	CommandSummary
	CommandExit
)

func (c Command) String() string {
	switch c {
	case CommandAddServer:
		return "add-server"
	case CommandRoute:
		return "route"
	case CommandSummary:
		return "summary"
	case CommandExit:
		return "exit"
	default:
		return ""
	}
}

// ErrInvalidChoice is returned by ParseCommand for anything that is not a menu entry
var ErrInvalidChoice = errors.New("invalid choice")

// ParseCommand parses a menu choice
func ParseCommand(s string) (Command, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return CommandAddServer, nil
	case "2":
		return CommandRoute, nil
	case "3":
		return CommandSummary, nil
	case "4":
		return CommandExit, nil
	default:
		return CommandNone, ErrInvalidChoice
	}
}

// Backend is the set of router operations the console drives
type Backend interface {
	AddServer(ctx context.Context, name string, lat, lon float64) (router.Server, error)
	RouteRequest(ctx context.Context, requestID int, origin string, lat, lon float64) (*router.Decision, error)
	Summary(ctx context.Context) (*router.Summary, error)
}

type localBackend struct {
	r *router.Router
}

// Local adapts an in-process router to Backend
func Local(r *router.Router) Backend {
	return localBackend{r: r}
}

func (b localBackend) AddServer(_ context.Context, name string, lat, lon float64) (router.Server, error) {
	return b.r.AddServer(name, lat, lon), nil
}

func (b localBackend) RouteRequest(_ context.Context, requestID int, origin string, lat, lon float64) (*router.Decision, error) {
	return b.r.RouteRequest(requestID, origin, lat, lon)
}

func (b localBackend) Summary(_ context.Context) (*router.Summary, error) {
	return b.r.Summary()
}

// errAbandoned marks an operation dropped because of bad operator input
var errAbandoned = errors.New("operation abandoned")

// Console reads commands from an input stream and renders results to an output stream
type Console struct {
	backend  Backend
	in       *bufio.Scanner
	out      io.Writer
	useColor bool
	logLevel logging.LogLevel
	nextID   int

	readOnce sync.Once
	lines    chan string
	// readErr is set before lines is closed
	readErr error
}

// Option configures a Console
type Option func(*Console)

// WithColor enables or disables ANSI colors
func WithColor(useColor bool) Option {
	return func(c *Console) {
		c.useColor = useColor
	}
}

// WithLogLevel sets the log level for the console
func WithLogLevel(logLevel logging.LogLevel) Option {
	return func(c *Console) {
		c.logLevel = logLevel
	}
}

// New creates a console. Request ids start at 1.
func New(backend Backend, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		backend:  backend,
		in:       bufio.NewScanner(in),
		out:      out,
		useColor: true,
		logLevel: logging.LogLevelError,
		nextID:   1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run shows the menu and dispatches commands until exit, end of input or cancellation
func (c *Console) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.print(formatter.FormatMenu(c.useColor))
		line, err := c.prompt(ctx, "Enter choice: ")
		if errors.Is(err, io.EOF) {
			if c.logLevel <= logging.LogLevelDebug {
				log.Println("Console input closed")
			}
			return c.readErr
		}
		if err != nil {
			return err
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			c.print(formatter.FormatError("Invalid choice. Try again.", c.useColor))
			continue
		}

		exit, err := c.Dispatch(ctx, cmd)
		if err != nil {
			return err
		}
		if exit {
			return nil
		}
	}
}

// Dispatch runs a single command. It returns exit=true for CommandExit. Recoverable conditions
// such as an empty registry are rendered to the output and do not produce an error.
func (c *Console) Dispatch(ctx context.Context, cmd Command) (exit bool, err error) {
	if c.logLevel <= logging.LogLevelDebug {
		log.Printf("Dispatching command: %s", cmd)
	}

	switch cmd {
	case CommandAddServer:
		err = c.addServer(ctx)
	case CommandRoute:
		err = c.route(ctx)
	case CommandSummary:
		err = c.summary(ctx)
	case CommandExit:
		c.print(formatter.FormatGoodbye(c.useColor))
		return true, nil
	default:
		c.print(formatter.FormatError("Invalid choice. Try again.", c.useColor))
		return false, nil
	}

	switch {
	case err == nil, errors.Is(err, errAbandoned):
		return false, nil
	case errors.Is(err, io.EOF):
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		// Backend failures (e.g. an unreachable remote router) are shown, not fatal
		if c.logLevel <= logging.LogLevelError {
			log.Printf("Command %s failed: %v", cmd, err)
		}
		c.print(formatter.FormatError(fmt.Sprintf("Error: %v", err), c.useColor))
		return false, nil
	}
}

func (c *Console) addServer(ctx context.Context) error {
	name, lat, lon, err := c.readLocation(ctx, "Enter server name: ")
	if err != nil {
		return err
	}

	server, err := c.backend.AddServer(ctx, name, lat, lon)
	if err != nil {
		return err
	}

	c.print(formatter.FormatServerAdded(server, c.useColor))
	return nil
}

func (c *Console) route(ctx context.Context) error {
	origin, lat, lon, err := c.readLocation(ctx, "Enter request origin name: ")
	if err != nil {
		return err
	}

	id := c.nextID
	c.nextID++

	decision, err := c.backend.RouteRequest(ctx, id, origin, lat, lon)
	if errors.Is(err, router.ErrEmptyRegistry) {
		c.print(formatter.FormatNoServers(c.useColor))
		return nil
	}
	if err != nil {
		return err
	}

	c.print(formatter.FormatDecision(decision, c.useColor))
	return nil
}

func (c *Console) summary(ctx context.Context) error {
	summary, err := c.backend.Summary(ctx)
	if errors.Is(err, router.ErrEmptyHistory) {
		c.print(formatter.FormatSummary(nil, c.useColor))
		return nil
	}
	if err != nil {
		return err
	}

	c.print(formatter.FormatSummary(summary, c.useColor))
	return nil
}

// readLocation prompts for a name followed by latitude and longitude
func (c *Console) readLocation(ctx context.Context, namePrompt string) (string, float64, float64, error) {
	name, err := c.prompt(ctx, namePrompt)
	if err != nil {
		return "", 0, 0, err
	}

	lat, err := c.readFloat(ctx, "Enter latitude: ")
	if err != nil {
		return "", 0, 0, err
	}

	lon, err := c.readFloat(ctx, "Enter longitude: ")
	if err != nil {
		return "", 0, 0, err
	}

	return name, lat, lon, nil
}

// readFloat reads a finite decimal number. NaN and infinities are rejected like any other bad input.
func (c *Console) readFloat(ctx context.Context, prompt string) (float64, error) {
	line, err := c.prompt(ctx, prompt)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(line, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		c.print(formatter.FormatError(fmt.Sprintf("Invalid number: %s", line), c.useColor))
		return 0, errAbandoned
	}

	return v, nil
}

// prompt writes the prompt and returns the next non-blank input line, trimmed.
// It returns io.EOF when input is exhausted and ctx.Err() when ctx is cancelled while waiting.
func (c *Console) prompt(ctx context.Context, prompt string) (string, error) {
	c.readOnce.Do(c.startReader)
	c.print(prompt)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return "", io.EOF
			}
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
		}
	}
}

// startReader moves blocking reads off the caller so a cancelled context can interrupt a prompt.
// The goroutine ends when input is exhausted.
func (c *Console) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for c.in.Scan() {
			c.lines <- c.in.Text()
		}
		c.readErr = c.in.Err()
	}()
}

func (c *Console) print(s string) {
	_, _ = fmt.Fprint(c.out, s)
}
