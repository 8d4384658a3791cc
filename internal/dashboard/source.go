package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shahjoyal/view-bunker/internal/logging"
	"github.com/shahjoyal/view-bunker/internal/monitor"
	"github.com/shahjoyal/view-bunker/internal/server"
)

// Source delivers live updates to the dashboard.
type Source interface {
	Updates() <-chan monitor.Update
	// Status describes the connection, e.g. "local" or "connected to ...".
	Status() string
	Close()
}

// LocalSource reads updates from an in-process monitor.
type LocalSource struct {
	ch     <-chan monitor.Update
	cancel func()
	stop   chan struct{}
	once   sync.Once
}

// NewLocalSource subscribes to mon. The current state is delivered first.
func NewLocalSource(mon *monitor.Monitor) *LocalSource {
	sub, cancel := mon.Subscribe()
	out := make(chan monitor.Update, 1)
	out <- mon.Current()
	stop := make(chan struct{})
	go func() {
		defer close(out)
		for u := range sub {
			select {
			case out <- u:
			case <-stop:
				return
			}
		}
	}()
	return &LocalSource{ch: out, cancel: cancel, stop: stop}
}

func (s *LocalSource) Updates() <-chan monitor.Update { return s.ch }
func (s *LocalSource) Status() string                 { return "local" }

func (s *LocalSource) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.cancel()
	})
}

// RemoteSource follows a server's /ws stream, reconnecting with backoff.
type RemoteSource struct {
	url    string
	ch     chan monitor.Update
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status string
}

// WebsocketURL turns a server base URL (http://host:port) into its /ws URL.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// NewRemoteSource starts following the server at base.
func NewRemoteSource(base string) (*RemoteSource, error) {
	wsURL, err := WebsocketURL(base)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &RemoteSource{
		url:    wsURL,
		ch:     make(chan monitor.Update, 16),
		cancel: cancel,
		done:   make(chan struct{}),
		status: "connecting to " + wsURL,
	}
	go s.run(ctx)
	return s, nil
}

func (s *RemoteSource) Updates() <-chan monitor.Update { return s.ch }

func (s *RemoteSource) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *RemoteSource) setStatus(format string, args ...interface{}) {
	s.mu.Lock()
	s.status = fmt.Sprintf(format, args...)
	s.mu.Unlock()
}

// Close stops the client and waits for it to exit.
func (s *RemoteSource) Close() {
	s.cancel()
	<-s.done
}

func (s *RemoteSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	log := logging.Get(logging.CategoryDashboard)

	backoff := time.Second
	for {
		connected, err := s.follow(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = time.Second
		}
		log.Warn("websocket stream ended: %v; retrying in %s", err, backoff)
		s.setStatus("disconnected (%v), retrying in %s", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// follow reads one connection until it fails or ctx is cancelled. It
// reports whether the dial succeeded.
func (s *RemoteSource) follow(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	s.setStatus("connected to %s", s.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var msg server.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case s.ch <- msg.Data:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
