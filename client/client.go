// Package client implements the request side of the exchange.
//
// A Client holds one socket per connected peer. Each Send asks the Balancer which peer
// gets the message, so fan-out over several ports is an explicit, observable choice
// rather than whatever the socket layer happens to do.
//
// A client connected through a registry keeps watching it: instances that appear are
// dialed and instances that leave are closed, without interrupting an exchange in flight.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-reqrep/codec"
	"mini-reqrep/endpoint"
	"mini-reqrep/loadbalance"
	"mini-reqrep/message"
	"mini-reqrep/metrics"
	"mini-reqrep/registry"
	"mini-reqrep/transport"
)

var (
	ErrNotConnected     = errors.New("client: not connected")
	ErrAlreadyConnected = errors.New("client: already connected")
	ErrNoPorts          = errors.New("client: no ports to connect to")
	ErrClosed           = errors.New("client: closed")
)

type peer struct {
	host string
	port int
	ep   *endpoint.Endpoint
}

func (p *peer) addr() string {
	return net.JoinHostPort(p.host, strconv.Itoa(p.port))
}

// Client sends messages to one or more reply-side peers. Sends are serialized: a
// request/reply socket carries one exchange at a time.
type Client struct {
	kind      transport.Kind
	codecType codec.CodecType
	timeout   time.Duration
	balancer loadbalance.Balancer
	logger   *zap.Logger
	metrics  *metrics.Metrics

	sendMu    sync.Mutex
	mu        sync.Mutex
	peers     []*peer
	instances []registry.ServiceInstance
	closed    bool

	stopWatch context.CancelFunc // nil unless connected through a registry
	watchDone chan struct{}
}

type Option func(*Client)

// WithTransport selects the socket kind. Defaults to transport.KindZMQ.
func WithTransport(kind transport.Kind) Option {
	return func(c *Client) { c.kind = kind }
}

// WithCodec selects the payload codec. Defaults to JSON.
func WithCodec(ct codec.CodecType) Option {
	return func(c *Client) { c.codecType = ct }
}

// WithTimeout bounds each acknowledgment wait. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBalancer sets the peer selection strategy. Defaults to round robin.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(c *Client) { c.balancer = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(opts ...Option) *Client {
	c := &Client{
		kind:     transport.KindZMQ,
		balancer: &loadbalance.RoundRobinBalancer{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens one socket per port on host, in order. If any connect fails, the peers
// opened so far are closed and the *transport.ConnectionError is returned.
func (c *Client) Connect(ctx context.Context, host string, ports []int) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(c.peers) > 0 {
		return ErrAlreadyConnected
	}

	peers := make([]*peer, 0, len(ports))
	instances := make([]registry.ServiceInstance, 0, len(ports))
	for _, port := range ports {
		p := &peer{host: host, port: port}
		if err := c.dial(ctx, p); err != nil {
			for _, opened := range peers {
				opened.ep.Close()
			}
			return err
		}
		peers = append(peers, p)
		instances = append(instances, registry.ServiceInstance{
			Addr:   net.JoinHostPort(host, strconv.Itoa(port)),
			Weight: 1,
		})
	}

	c.peers = peers
	c.instances = instances
	c.logger.Info("client connected", zap.String("host", host), zap.Ints("ports", ports),
		zap.String("balancer", c.balancer.Name()))
	return nil
}

// ConnectRegistry discovers the instances of service and connects to each of them.
// The client then follows reg.Watch until ctx is done or Close is called.
func (c *Client) ConnectRegistry(ctx context.Context, reg registry.Registry, service string) error {
	instances, err := reg.Discover(ctx, service)
	if err != nil {
		return fmt.Errorf("discover %s: %w", service, err)
	}
	if len(instances) == 0 {
		return fmt.Errorf("discover %s: %w", service, loadbalance.ErrNoInstances)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(c.peers) > 0 {
		return ErrAlreadyConnected
	}

	peers := make([]*peer, 0, len(instances))
	for _, inst := range instances {
		p, err := c.dialInstance(ctx, inst)
		if err != nil {
			for _, opened := range peers {
				opened.ep.Close()
			}
			return err
		}
		peers = append(peers, p)
	}

	c.peers = peers
	c.instances = instances

	watchCtx, cancel := context.WithCancel(ctx)
	c.stopWatch = cancel
	c.watchDone = make(chan struct{})
	go c.watch(watchCtx, reg.Watch(watchCtx, service), service)

	c.logger.Info("client connected", zap.String("service", service), zap.Int("peers", len(peers)),
		zap.String("balancer", c.balancer.Name()))
	return nil
}

func (c *Client) dialInstance(ctx context.Context, inst registry.ServiceInstance) (*peer, error) {
	host, portStr, err := net.SplitHostPort(inst.Addr)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.Addr, err)
	}
	p := &peer{host: host, port: port}
	if err := c.dial(ctx, p); err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.Addr, err)
	}
	return p, nil
}

func (c *Client) watch(ctx context.Context, updates <-chan []registry.ServiceInstance, service string) {
	defer close(c.watchDone)
	for instances := range updates {
		c.refresh(ctx, service, instances)
	}
}

// refresh makes the peer set match instances. Known peers are kept, including their
// sockets; new instances are dialed and departed ones closed. An empty list leaves the
// peers untouched, since nothing could be sent anyway and the registry may be mid-churn.
func (c *Client) refresh(ctx context.Context, service string, instances []registry.ServiceInstance) {
	if len(instances) == 0 {
		c.logger.Warn("registry reports no instances, keeping peers", zap.String("service", service))
		return
	}

	// Wait for the exchange in flight before sockets change hands.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	current := make(map[string]*peer, len(c.peers))
	for _, p := range c.peers {
		current[p.addr()] = p
	}

	peers := make([]*peer, 0, len(instances))
	kept := make([]registry.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if p, ok := current[inst.Addr]; ok {
			delete(current, inst.Addr)
			peers = append(peers, p)
			kept = append(kept, inst)
			continue
		}
		p, err := c.dialInstance(ctx, inst)
		if err != nil {
			c.logger.Warn("skipping instance", zap.String("service", service), zap.Error(err))
			continue
		}
		peers = append(peers, p)
		kept = append(kept, inst)
	}
	if len(peers) == 0 {
		c.logger.Warn("no instance reachable, keeping peers", zap.String("service", service))
		return
	}

	for addr, gone := range current {
		c.logger.Info("peer left", zap.String("service", service), zap.String("addr", addr))
		gone.ep.Close()
	}
	c.peers = peers
	c.instances = kept
	c.logger.Info("peers refreshed", zap.String("service", service), zap.Int("peers", len(peers)))
}

func (c *Client) dial(ctx context.Context, p *peer) error {
	cdc, err := codec.GetCodec(c.codecType)
	if err != nil {
		return err
	}
	sock, err := transport.Dial(ctx, c.kind, p.host, p.port, transport.WithCodecType(byte(cdc.Type())))
	if err != nil {
		return err
	}
	p.ep = endpoint.New(sock,
		endpoint.WithCodec(cdc),
		endpoint.WithTimeout(c.timeout),
		endpoint.WithLogger(c.logger),
		endpoint.WithMetrics(c.metrics),
	)
	return nil
}

// Send transmits m to the peer chosen by the balancer. With waitForAck it returns the
// peer's acknowledgment; an acknowledgment that misses the deadline fails with
// *endpoint.TimeoutError.
//
// A peer whose socket was given up after a timeout is redialed before it is used again.
// The lost request is not resent.
func (c *Client) Send(ctx context.Context, m message.Message, waitForAck bool) (message.Message, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ep, err := c.pick(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := ep.Send(ctx, m, waitForAck)
	if errors.Is(err, endpoint.ErrClosed) && c.isClosed() {
		return nil, ErrClosed
	}
	return reply, err
}

func (c *Client) pick(ctx context.Context) (*endpoint.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if len(c.peers) == 0 {
		return nil, ErrNotConnected
	}

	idx, err := c.balancer.Pick(c.instances)
	if err != nil {
		return nil, err
	}
	p := c.peers[idx]
	if p.ep.Closed() {
		c.logger.Info("redialing peer", zap.String("host", p.host), zap.Int("port", p.port))
		if err := c.dial(ctx, p); err != nil {
			return nil, err
		}
	}
	return p.ep, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Peers returns the addresses of the connected peers in selection order.
func (c *Client) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	addrs := make([]string, len(c.peers))
	for i, p := range c.peers {
		addrs[i] = p.addr()
	}
	return addrs
}

// Close releases every peer socket. A Send blocked on an acknowledgment returns
// ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	peers := c.peers
	stopWatch, watchDone := c.stopWatch, c.watchDone
	c.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.ep.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Closing the sockets released any Send, so a refresh waiting on it can run and
	// back out.
	if stopWatch != nil {
		stopWatch()
		<-watchDone
	}
	return errors.Join(errs...)
}
