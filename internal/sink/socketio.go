package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
)

// SocketIOConfig configures the streaming writer.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	Event              string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// SocketIO emits one event per concept and job to a socket.io server. The
// connection is opened on the first write.
type SocketIO struct {
	cfg SocketIOConfig

	mu sync.Mutex
	io *socket.Socket
}

// NewSocketIO validates cfg and applies defaults.
func NewSocketIO(cfg SocketIOConfig) (*SocketIO, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid socket.io url %q", cfg.URL)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.Event == "" {
		cfg.Event = "observations"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &SocketIO{cfg: cfg}, nil
}

// Payload is the body of every emitted event.
type Payload struct {
	Job        string   `json:"job"`
	DataSource string   `json:"data_source"`
	Concept    string   `json:"concept"`
	Rows       []Record `json:"rows"`
}

func (s *SocketIO) Write(ctx context.Context, j *job.Job, data graph.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connect(ctx); err != nil {
		return err
	}
	for _, concept := range sortedConcepts(data) {
		recs, err := records(data[concept])
		if err != nil {
			return fmt.Errorf("concept %q: %w", concept, err)
		}
		s.io.Emit(s.cfg.Event, Payload{
			Job:        j.ID(),
			DataSource: string(j.DataSource()),
			Concept:    concept,
			Rows:       recs,
		})
	}
	return nil
}

func (s *SocketIO) connect(ctx context.Context) error {
	if s.io != nil {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", s.cfg.URL, "namespace", s.cfg.Namespace)

	u, _ := url.Parse(s.cfg.URL)
	opts := socket.DefaultOptions()
	opts.SetPath(u.Path)
	if s.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", u.Scheme, u.Host), opts)
	io := manager.Socket(s.cfg.Namespace, opts)

	done := make(chan error, 1)
	signal := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Connected to socket.io sink", "sid", io.Id())
		signal(nil)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		signal(err)
	})
	io.Connect()

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("socket.io connect: %w", err)
		}
	case <-timer.C:
		io.Disconnect()
		return fmt.Errorf("socket.io connect: timed out after %s", s.cfg.ConnectTimeout)
	case <-ctx.Done():
		io.Disconnect()
		return ctx.Err()
	}
	s.io = io
	return nil
}

// Close disconnects the client.
func (s *SocketIO) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.io != nil {
		s.io.Disconnect()
		s.io = nil
	}
	return nil
}
