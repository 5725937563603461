package provision

import (
	"context"
	"time"
)

// WithTimeout bounds every Start and Stop call on p. It is a no-op wrapper
// when timeout is zero or negative.
func WithTimeout(p Provisioner, timeout time.Duration) Provisioner {
	if timeout <= 0 {
		return p
	}
	return &timeoutProvisioner{next: p, timeout: timeout}
}

type timeoutProvisioner struct {
	next    Provisioner
	timeout time.Duration
}

func (p *timeoutProvisioner) Start(ctx context.Context, ssid, passphrase string) (Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.next.Start(ctx, ssid, passphrase)
}

func (p *timeoutProvisioner) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.next.Stop(ctx)
}
