// Package tether composes the network provisioner with the proxy server
// under a single observable lifecycle with start-failure rollback.
package tether

import (
	"context"
	"fmt"
	"sync"

	"github.com/sagernet/sing/common/observable"
	"go.uber.org/zap"

	"github.com/tetherproxy/tetherd/internal/provision"
	"github.com/tetherproxy/tetherd/internal/proxy"
	"github.com/tetherproxy/tetherd/internal/status"
)

// State is the lifecycle state of the tethering unit as a whole.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the tethering lifecycle. SSID and Passphrase are
// set while Running; Message is set while Error. Only the Orchestrator
// writes it.
type Status struct {
	State      State
	SSID       string
	Passphrase string
	Message    string
}

// Orchestrator drives the provisioner and the proxy server as one unit.
// Start and Stop are serialized per instance; a call arriving mid-transition
// waits its turn rather than racing the shared state.
type Orchestrator struct {
	provisioner provision.Provisioner
	proxy       *proxy.Server
	logger      *zap.Logger
	status      *status.Holder[Status]

	access sync.Mutex
}

func NewOrchestrator(provisioner provision.Provisioner, proxyServer *proxy.Server, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provisioner: provisioner,
		proxy:       proxyServer,
		logger:      logger,
		status:      status.NewHolder(Status{State: StateStopped}),
	}
}

// Status returns the current lifecycle snapshot.
func (o *Orchestrator) Status() Status {
	return o.status.Get()
}

// SubscribeStatus streams lifecycle transitions published after the call.
func (o *Orchestrator) SubscribeStatus() (observable.Subscription[Status], <-chan struct{}, error) {
	return o.status.Subscribe()
}

func (o *Orchestrator) UnSubscribeStatus(sub observable.Subscription[Status]) {
	o.status.UnSubscribe(sub)
}

// Start brings up the provisioner and then the proxy server. If either step
// fails, the failure is recorded as the Error state, whatever did start is
// torn back down best-effort, and the failure is returned. Starting an
// already-running orchestrator is a warned no-op.
func (o *Orchestrator) Start(ctx context.Context, ssid, passphrase string) error {
	o.access.Lock()
	defer o.access.Unlock()

	if o.status.Get().State == StateRunning {
		o.logger.Warn("tethering already running")
		return nil
	}

	o.status.Set(Status{State: StateStarting})
	o.logger.Info("starting tethering", zap.String("ssid", ssid))

	creds, err := o.provisioner.Start(ctx, ssid, passphrase)
	if err != nil {
		err = fmt.Errorf("provisioning start: %w", err)
		o.failStart(ctx, err)
		return err
	}

	if err := o.proxy.Start(ctx); err != nil {
		err = fmt.Errorf("proxy start: %w", err)
		o.failStart(ctx, err)
		return err
	}

	o.status.Set(Status{State: StateRunning, SSID: creds.SSID, Passphrase: creds.Passphrase})
	o.logger.Info("tethering running",
		zap.String("ssid", creds.SSID),
		zap.String("ip", creds.IPAddress),
		zap.Int("port", o.proxy.Status().Port))
	return nil
}

// failStart records err as the Error state and unwinds whatever started.
// Cleanup failures are logged without overwriting the recorded state; a
// partial start must not leave the provisioner or a listening socket behind.
func (o *Orchestrator) failStart(ctx context.Context, err error) {
	o.status.Set(Status{State: StateError, Message: err.Error()})
	o.logger.Error("tethering start failed", zap.Error(err))

	if stopErr := o.proxy.Stop(); stopErr != nil {
		o.logger.Error("start cleanup: proxy stop failed", zap.Error(stopErr))
	}
	if stopErr := o.provisioner.Stop(ctx); stopErr != nil {
		o.logger.Error("start cleanup: provisioning stop failed", zap.Error(stopErr))
	}
}

// Stop tears down the proxy server and then the provisioner. Failures are
// recorded in the published state and logged, never returned; stop is
// best-effort by contract.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.access.Lock()
	defer o.access.Unlock()

	o.status.Set(Status{State: StateStopping})
	o.logger.Info("stopping tethering")

	var firstErr error
	if err := o.proxy.Stop(); err != nil {
		err = fmt.Errorf("proxy stop: %w", err)
		o.logger.Error("tethering stop", zap.Error(err))
		firstErr = err
	}
	if err := o.provisioner.Stop(ctx); err != nil {
		err = fmt.Errorf("provisioning stop: %w", err)
		o.logger.Error("tethering stop", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		o.status.Set(Status{State: StateError, Message: firstErr.Error()})
		return
	}

	o.status.Set(Status{State: StateStopped})
	o.logger.Info("tethering stopped")
}
