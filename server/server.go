// Package server implements the reply side of the exchange.
//
// A Server binds one port and loops:
//
//	Receive request → middleware chain → handler → reply {"<port>:status": 0|1}
//
// Every request gets exactly one status reply. A handler failure becomes status 1 and the
// loop carries on; the failure detail goes to the log, metrics and an optional failure
// sink, never to the client. A request carrying the "end" key stops the loop after its
// reply.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-reqrep/codec"
	"mini-reqrep/endpoint"
	"mini-reqrep/message"
	"mini-reqrep/metrics"
	"mini-reqrep/middleware"
	"mini-reqrep/registry"
	"mini-reqrep/transport"
)

// State is the lifecycle stage of a Server.
type State int32

const (
	StateIdle       State = iota // Constructed, not bound
	StateBound                   // Socket bound
	StateLooping                 // Serving requests
	StateTerminated              // Loop exited; a Server is not reusable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StateLooping:
		return "looping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var ErrAlreadyRun = errors.New("server: Run called more than once")

// Server answers requests on a single port.
type Server struct {
	kind        transport.Kind
	codecType   codec.CodecType
	logger      *zap.Logger
	metrics     *metrics.Metrics
	middlewares []middleware.Middleware
	failures    chan<- *HandlerError

	registry      registry.Registry // nil when not using discovery
	service       string
	advertiseAddr string
	ttl           int64

	started atomic.Bool
	state   atomic.Int32
	mu      sync.Mutex
	ep      *endpoint.Endpoint
}

type Option func(*Server)

// WithTransport selects the socket kind. Defaults to transport.KindZMQ.
func WithTransport(kind transport.Kind) Option {
	return func(s *Server) { s.kind = kind }
}

// WithCodec selects the payload codec. Defaults to JSON.
func WithCodec(ct codec.CodecType) Option {
	return func(s *Server) { s.codecType = ct }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithFailureSink delivers every handler failure to ch. Sends never block: when ch is
// full the failure is only logged and counted.
func WithFailureSink(ch chan<- *HandlerError) Option {
	return func(s *Server) { s.failures = ch }
}

// WithRegistry announces the bound server as an instance of service while it runs.
// An empty advertiseAddr defaults to 127.0.0.1:<port>.
func WithRegistry(reg registry.Registry, service, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.service = service
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		kind:   transport.KindZMQ,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

func (svr *Server) State() State {
	return State(svr.state.Load())
}

// Run binds port and serves requests with handler (DefaultHandler when nil).
//
// With forever set, the loop runs until a request carries the "end" key, ctx is
// cancelled, or Close is called. Without it, Run serves exactly one request.
// Cancellation and Close are a clean stop and return nil.
func (svr *Server) Run(ctx context.Context, port int, handler middleware.HandlerFunc, forever bool) error {
	if !svr.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer svr.state.Store(int32(StateTerminated))

	log := svr.logger.With(zap.Int("port", port))

	if handler == nil {
		handler = DefaultHandler(svr.logger, DefaultProcessingDelay)
	}
	// Recover sits innermost so it runs on the same goroutine as the handler.
	chain := middleware.Chain(append(svr.middlewares, middleware.RecoverMiddleware())...)(handler)

	cdc, err := codec.GetCodec(svr.codecType)
	if err != nil {
		return err
	}
	sock, err := transport.Listen(ctx, svr.kind, port, transport.WithCodecType(byte(cdc.Type())))
	if err != nil {
		return err
	}
	ep := endpoint.New(sock,
		endpoint.WithCodec(cdc),
		endpoint.WithLogger(svr.logger),
		endpoint.WithMetrics(svr.metrics),
	)
	svr.mu.Lock()
	svr.ep = ep
	svr.mu.Unlock()
	defer ep.Close()
	svr.state.Store(int32(StateBound))

	log.Info("server listening", zap.String("addr", sock.Addr()), zap.String("transport", string(svr.kind)),
		zap.Stringer("codec", cdc.Type()), zap.Bool("forever", forever))

	if svr.registry != nil {
		if err := svr.register(ctx, port); err != nil {
			return fmt.Errorf("register %s: %w", svr.service, err)
		}
		defer svr.deregister(port)
	}

	svr.state.Store(int32(StateLooping))
	for {
		req, err := ep.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, endpoint.ErrClosed) {
				log.Info("server stopped")
				return nil
			}
			var decodeErr *codec.ProtocolDecodeError
			if !errors.As(err, &decodeErr) {
				return fmt.Errorf("receive: %w", err)
			}
			// The socket still owes the peer a reply.
			svr.fail(port, KindDecode, err)
			svr.metrics.ObserveRequest(port, message.StatusFailed, 0)
			if err := svr.reply(ctx, ep, port, message.StatusFailed); err != nil {
				log.Info("server stopped")
				return nil
			}
			if !forever {
				return nil
			}
			continue
		}

		status := svr.handle(ctx, chain, req, port)
		if err := svr.reply(ctx, ep, port, status); err != nil {
			log.Info("server stopped")
			return nil
		}

		if message.IsTerminal(req) {
			log.Info("sentinel received, stopping", zap.String("key", message.SentinelKey))
			return nil
		}
		if !forever {
			return nil
		}
	}
}

func (svr *Server) handle(ctx context.Context, h middleware.HandlerFunc, req message.Message, port int) int {
	start := time.Now()
	status := message.StatusOK
	if err := h(ctx, req, port); err != nil {
		status = message.StatusFailed
		svr.fail(port, classify(err), err)
	}
	svr.metrics.ObserveRequest(port, status, time.Since(start))
	return status
}

// reply sends the status acknowledgment. A peer that hung up before its reply (a client
// whose acknowledgment timed out) loses only that reply; the loop keeps serving.
func (svr *Server) reply(ctx context.Context, ep *endpoint.Endpoint, port int, status int) error {
	_, err := ep.Send(ctx, message.NewStatus(port, status), false)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, endpoint.ErrClosed):
		return endpoint.ErrClosed
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		svr.logger.Warn("reply dropped", zap.Int("port", port), zap.Int("status", status), zap.Error(err))
		return nil
	}
}

func (svr *Server) fail(port int, kind FailureKind, err error) {
	herr := &HandlerError{Port: port, Kind: kind, Err: err}
	svr.logger.Error("processing message failed", zap.Int("port", port), zap.String("kind", string(kind)), zap.Error(err))
	svr.metrics.ObserveFailure(string(kind))

	if svr.failures == nil {
		return
	}
	select {
	case svr.failures <- herr:
	default:
	}
}

func (svr *Server) register(ctx context.Context, port int) error {
	addr := svr.advertiseAddr
	if addr == "" {
		addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	}
	svr.advertiseAddr = addr
	return svr.registry.Register(ctx, svr.service, registry.ServiceInstance{Addr: addr}, svr.ttl)
}

func (svr *Server) deregister(port int) {
	// ctx may already be cancelled here.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svr.registry.Deregister(ctx, svr.service, svr.advertiseAddr); err != nil {
		svr.logger.Warn("deregister failed", zap.Int("port", port), zap.Error(err))
	}
}

// Close stops a running loop. Run returns nil once the pending receive is released.
func (svr *Server) Close() error {
	svr.mu.Lock()
	ep := svr.ep
	svr.mu.Unlock()
	if ep == nil {
		return nil
	}
	return ep.Close()
}
