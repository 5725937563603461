package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sagernet/sing/common/observable"
	"go.uber.org/zap"

	"github.com/tetherproxy/tetherd/internal/status"
)

// Server owns the listening socket and the accept loop, publishing its
// lifecycle through an observable Status. One handler goroutine runs per
// accepted connection; a failing handler never stops the loop.
type Server struct {
	cfg    Config
	logger *zap.Logger
	status *status.Holder[Status]

	access sync.Mutex // serializes Start/Stop
	ln     net.Listener
	cancel context.CancelFunc
}

func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		status: status.NewHolder(Status{State: StateStopped}),
	}
}

// Status returns the current lifecycle snapshot.
func (s *Server) Status() Status {
	return s.status.Get()
}

// SubscribeStatus streams lifecycle transitions published after the call.
func (s *Server) SubscribeStatus() (observable.Subscription[Status], <-chan struct{}, error) {
	return s.status.Subscribe()
}

func (s *Server) UnSubscribeStatus(sub observable.Subscription[Status]) {
	s.status.UnSubscribe(sub)
}

// Start binds the listening socket and launches the accept loop in the
// background. Starting an already-running server is a warned no-op. A bind
// failure is recorded in the status and returned; it is the one startup
// failure callers must see.
func (s *Server) Start(ctx context.Context) error {
	s.access.Lock()
	defer s.access.Unlock()

	if s.status.Get().State == StateRunning {
		s.logger.Warn("proxy server already running")
		return nil
	}

	s.status.Set(Status{State: StateStarting})

	ln, err := ListenTCP(ctx, "tcp", s.cfg.ListenAddr, s.cfg.KeepAlive)
	if err != nil {
		err = fmt.Errorf("proxy server: %w", err)
		s.status.Set(Status{State: StateError, Message: err.Error()})
		return err
	}
	s.ln = ln

	port := 0
	if ta, ok := ln.Addr().(*net.TCPAddr); ok {
		port = ta.Port
	}

	// The accept loop and its handlers outlive the Start call; Stop ends
	// them by cancelling this context and closing the listener.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.status.Set(Status{State: StateRunning, Port: port})
	s.logger.Info("proxy server listening", zap.String("addr", ln.Addr().String()))

	go s.acceptLoop(loopCtx, ln)

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// Deliberate stop, not a failure.
				return
			}
			err = fmt.Errorf("accept: %w", err)
			s.logger.Error("accept loop failed", zap.Error(err))
			s.status.Set(Status{State: StateError, Message: err.Error()})
			return
		}

		go s.handleConn(ctx, conn)
	}
}

// Stop cancels the accept loop, closes the listener, and tears down active
// tunnels via context cancellation. The transition always completes, to
// Stopped or (on a close failure) to Error; the returned error is
// bookkeeping for composed lifecycles, never a reason to abort a shutdown.
func (s *Server) Stop() error {
	s.access.Lock()
	defer s.access.Unlock()

	s.status.Set(Status{State: StateStopping})

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	var err error
	if s.ln != nil {
		err = s.ln.Close()
		s.ln = nil
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		err = fmt.Errorf("close listener: %w", err)
		s.logger.Error("proxy server stop failed", zap.Error(err))
		s.status.Set(Status{State: StateError, Message: err.Error()})
		return err
	}

	s.status.Set(Status{State: StateStopped})
	s.logger.Info("proxy server stopped")
	return nil
}
