package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	creds, err := Static{}.Start(context.Background(), "myhotspot", "sekrit99")
	require.NoError(t, err)

	assert.Equal(t, "myhotspot", creds.SSID)
	assert.Equal(t, "sekrit99", creds.Passphrase)
	assert.NotEmpty(t, creds.IPAddress)

	require.NoError(t, Static{}.Stop(context.Background()))
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	// Zero timeout leaves the provisioner unwrapped.
	p := Static{}
	assert.Equal(t, Provisioner(p), WithTimeout(p, 0))

	wrapped := WithTimeout(blockingProvisioner{}, 50*time.Millisecond)

	_, err := wrapped.Start(context.Background(), "ssid", "passphrase")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = wrapped.Stop(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingProvisioner waits for ctx, standing in for a backend that hangs.
type blockingProvisioner struct{}

func (blockingProvisioner) Start(ctx context.Context, _, _ string) (Credentials, error) {
	<-ctx.Done()
	return Credentials{}, ctx.Err()
}

func (blockingProvisioner) Stop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
