// Package signals coordinates process signal handling for the endpoints.
//
// A Coordinator maps signal codes to handlers. Nothing touches the process signal table
// until Start, and Stop restores the default disposition. Codes registered without an
// explicit handler are routed to the built-in Catcher, which terminates the process with
// an exit code equal to the signal number for interrupt and alarm.
package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

var (
	Interrupt os.Signal = os.Interrupt
	Alarm     os.Signal = syscall.SIGALRM
)

// Handler reacts to one delivered signal. A returned error is logged.
type Handler func(sig os.Signal) error

// ConfigurationError reports more handlers than signal codes.
type ConfigurationError struct {
	Codes    int
	Handlers int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("signals: %d handlers supplied for %d signal codes", e.Handlers, e.Codes)
}

// UnsupportedSignalError is returned by the Catcher for codes it has no branch for.
type UnsupportedSignalError struct {
	Signal os.Signal
}

func (e *UnsupportedSignalError) Error() string {
	return fmt.Sprintf("signals: no default handling for %v", e.Signal)
}

// Coordinator owns the signal subscriptions of the process.
type Coordinator struct {
	logger *zap.Logger
	exit   func(code int)

	mu       sync.Mutex
	codes    []os.Signal
	handlers map[os.Signal]Handler
	ch       chan os.Signal
	done     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithExit replaces os.Exit, which the Catcher calls on shutdown.
func WithExit(exit func(code int)) Option {
	return func(c *Coordinator) { c.exit = exit }
}

// New pairs codes with handlers by position. Codes past the end of handlers get the
// Catcher. Supplying more handlers than codes fails with *ConfigurationError.
// An empty code list means interrupt only.
func New(codes []os.Signal, handlers []Handler, opts ...Option) (*Coordinator, error) {
	if len(codes) == 0 {
		codes = []os.Signal{Interrupt}
	}
	if len(handlers) > len(codes) {
		return nil, &ConfigurationError{Codes: len(codes), Handlers: len(handlers)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		logger:   zap.NewNop(),
		exit:     os.Exit,
		handlers: make(map[os.Signal]Handler, len(codes)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, code := range codes {
		h := c.Catcher
		if i < len(handlers) && handlers[i] != nil {
			h = handlers[i]
		}
		c.register(code, h)
	}
	return c, nil
}

func (c *Coordinator) register(code os.Signal, h Handler) {
	if _, ok := c.handlers[code]; !ok {
		c.codes = append(c.codes, code)
	}
	c.handlers[code] = h
}

// Start subscribes to every registered code and dispatches deliveries on one goroutine.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return
	}

	c.ch = make(chan os.Signal, len(c.codes)+1)
	c.done = make(chan struct{})
	signal.Notify(c.ch, c.codes...)
	go c.loop(c.ch, c.done)

	c.logger.Debug("signal coordinator started", zap.String("codes", c.describe()))
}

// Stop unsubscribes and waits for the dispatcher to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	ch, done := c.ch, c.done
	c.ch, c.done = nil, nil
	c.mu.Unlock()

	if ch == nil {
		return
	}
	signal.Stop(ch)
	close(ch)
	<-done
}

// OnSignal registers or replaces the handler for code. A running coordinator
// subscribes to new codes immediately.
func (c *Coordinator) OnSignal(code os.Signal, h Handler) {
	if h == nil {
		h = c.Catcher
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(code, h)
	if c.ch != nil {
		signal.Notify(c.ch, code)
	}
}

func (c *Coordinator) loop(ch <-chan os.Signal, done chan<- struct{}) {
	defer close(done)
	for sig := range ch {
		c.dispatch(sig)
	}
}

func (c *Coordinator) dispatch(sig os.Signal) {
	c.mu.Lock()
	h, ok := c.handlers[sig]
	c.mu.Unlock()
	if !ok {
		h = c.Catcher
	}

	if err := h(sig); err != nil {
		c.logger.Error("signal handler failed", zap.Stringer("signal", sig), zap.Error(err))
	}
}

// Catcher is the built-in handler.
func (c *Coordinator) Catcher(sig os.Signal) error {
	c.logger.Info("signal caught", zap.Stringer("signal", sig), zap.Int("code", ExitCode(sig)))
	switch sig {
	case Interrupt:
		c.Shutdown("shutting down the application", ExitCode(sig))
	case Alarm:
		c.Shutdown("alarm timed out", ExitCode(sig))
	default:
		return &UnsupportedSignalError{Signal: sig}
	}
	return nil
}

// Shutdown cancels Context, logs msg and exits the process with code.
func (c *Coordinator) Shutdown(msg string, code int) {
	c.cancel()
	c.logger.Info(msg, zap.Int("exit_code", code))
	_ = c.logger.Sync()
	c.exit(code)
}

// Context is cancelled when the coordinator shuts the process down.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Codes returns the registered codes in registration order.
func (c *Coordinator) Codes() []os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]os.Signal(nil), c.codes...)
}

// Registration pairs a signal code with its handler.
type Registration struct {
	Code    os.Signal
	Handler Handler
}

// Handlers reports every registration in code order. Each code has a handler.
func (c *Coordinator) Handlers() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := make([]Registration, 0, len(c.codes))
	for _, code := range c.codes {
		regs = append(regs, Registration{Code: code, Handler: c.handlers[code]})
	}
	return regs
}

// Handler returns the handler registered for code.
func (c *Coordinator) Handler(code os.Signal) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[code]
	return h, ok
}

func (c *Coordinator) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.describe()
}

func (c *Coordinator) describe() string {
	parts := make([]string, 0, len(c.codes))
	for _, code := range c.codes {
		parts = append(parts, fmt.Sprintf("%v(%d)", code, ExitCode(code)))
	}
	return strings.Join(parts, ", ")
}

// ExitCode is the process exit code used for sig: its signal number.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}
