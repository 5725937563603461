package tether

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sagernet/sing/common/observable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tetherproxy/tetherd/internal/dialer"
	"github.com/tetherproxy/tetherd/internal/provision"
	"github.com/tetherproxy/tetherd/internal/proxy"
)

type fakeProvisioner struct {
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (f *fakeProvisioner) Start(_ context.Context, ssid, passphrase string) (provision.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return provision.Credentials{}, f.startErr
	}
	f.started = true
	return provision.Credentials{SSID: ssid, Passphrase: passphrase, IPAddress: "192.0.2.1"}, nil
}

func (f *fakeProvisioner) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	return f.stopErr
}

func (f *fakeProvisioner) stopCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func newTestOrchestrator(t *testing.T, prov provision.Provisioner, listenAddr string) *Orchestrator {
	t.Helper()

	cfg := proxy.Config{
		ListenAddr: listenAddr,
		Dialer:     dialer.NewDirectDialer(dialer.Config{}),
	}
	srv := proxy.NewServer(cfg, zaptest.NewLogger(t).Named("proxy"))

	return NewOrchestrator(prov, srv, zaptest.NewLogger(t).Named("tether"))
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	orch := newTestOrchestrator(t, prov, "127.0.0.1:0")
	assert.Equal(t, StateStopped, orch.Status().State)

	sub, done, err := orch.SubscribeStatus()
	require.NoError(t, err)
	defer orch.UnSubscribeStatus(sub)

	require.NoError(t, orch.Start(context.Background(), "myhotspot", "sekrit99"))

	running := orch.Status()
	assert.Equal(t, StateRunning, running.State)
	assert.Equal(t, "myhotspot", running.SSID)
	assert.Equal(t, "sekrit99", running.Passphrase)

	orch.Stop(context.Background())
	assert.Equal(t, StateStopped, orch.Status().State)

	want := []State{StateStarting, StateRunning, StateStopping, StateStopped}
	assert.Equal(t, want, collectStates(t, sub, done, len(want)))
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	t.Parallel()

	orch := newTestOrchestrator(t, &fakeProvisioner{}, "127.0.0.1:0")

	require.NoError(t, orch.Start(context.Background(), "ssid", "passphrase"))
	defer orch.Stop(context.Background())
	before := orch.Status()

	require.NoError(t, orch.Start(context.Background(), "other", "other"))
	assert.Equal(t, before, orch.Status())
}

func TestProvisioningFailure(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{startErr: errors.New("group creation rejected")}
	orch := newTestOrchestrator(t, prov, "127.0.0.1:0")

	err := orch.Start(context.Background(), "ssid", "passphrase")
	require.Error(t, err)

	st := orch.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Message, "group creation rejected")
}

func TestProxyBindFailureRollsBackProvisioning(t *testing.T) {
	t.Parallel()

	// Occupy the port so the proxy bind fails after provisioning succeeds.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	prov := &fakeProvisioner{}
	orch := newTestOrchestrator(t, prov, ln.Addr().String())

	err = orch.Start(context.Background(), "ssid", "passphrase")
	require.Error(t, err)

	st := orch.Status()
	assert.Equal(t, StateError, st.State)
	assert.NotEmpty(t, st.Message)

	// Provisioning must not be left running silently.
	assert.True(t, prov.stopCalled())
}

func TestStopFailureRecordsError(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{stopErr: errors.New("group removal failed")}
	orch := newTestOrchestrator(t, prov, "127.0.0.1:0")

	require.NoError(t, orch.Start(context.Background(), "ssid", "passphrase"))

	orch.Stop(context.Background())

	st := orch.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Message, "group removal failed")
}

func collectStates(t *testing.T, sub observable.Subscription[Status], done <-chan struct{}, n int) []State {
	t.Helper()

	states := make([]State, 0, n)
	timeout := time.After(5 * time.Second)
	for len(states) < n {
		select {
		case st := <-sub:
			states = append(states, st.State)
		case <-done:
			return states
		case <-timeout:
			t.Fatalf("timed out waiting for transitions, got %v", states)
		}
	}
	return states
}
