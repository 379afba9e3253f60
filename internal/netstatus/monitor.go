// Package netstatus tracks host-level network reachability, the Go stand-in
// for the browser's online/offline events.
package netstatus

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Monitor reports whether the network is currently reachable and notifies
// subscribers on every change. Restoration never auto-resumes anything;
// consumers decide what a change means.
type Monitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ProbeMonitor determines reachability by periodically dialing a probe
// address. A failed dial flips the monitor offline until a probe succeeds
// again.
type ProbeMonitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(network, addr string, timeout time.Duration) (net.Conn, error)
	log      *slog.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int

	cancel context.CancelFunc
	done   chan struct{}
}

type ProbeConfig struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewProbeMonitor(cfg ProbeConfig) *ProbeMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProbeMonitor{
		addr:     cfg.Address,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		dial:     net.DialTimeout,
		log:      cfg.Logger.With("component", "netstatus"),
		online:   true,
		subs:     make(map[int]func(bool)),
	}
}

func (m *ProbeMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx)
}

func (m *ProbeMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *ProbeMonitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *ProbeMonitor) probe() {
	conn, err := m.dial("tcp", m.addr, m.timeout)
	if err == nil {
		conn.Close()
	}
	m.SetOnline(err == nil)
}

// SetOnline records a reachability change and fans it out to subscribers.
// It is exported so hosts with a native connectivity signal can push state
// directly instead of relying on probes.
func (m *ProbeMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.log.Info("network reachability changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}

func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
