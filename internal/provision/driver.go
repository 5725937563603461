package provision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds how long a driver callback may take before the
// operation is abandoned. Platform backends that never answer would
// otherwise hang the whole tethering start.
const DefaultTimeout = 30 * time.Second

// ErrTimeout reports a driver callback that never arrived.
var ErrTimeout = errors.New("provisioning timed out")

// GroupDriver is the callback-style interface exposed by platform hotspot
// backends (Wi-Fi Direct group owners and the like). Each callback is
// invoked exactly once per call, from any goroutine.
type GroupDriver interface {
	CreateGroup(ssid, passphrase string, done func(Credentials, error))
	RemoveGroup(done func(error))
}

type DriverConfig struct {
	// Timeout bounds each driver operation; DefaultTimeout if zero.
	Timeout time.Duration
}

// DriverProvisioner adapts a callback-style GroupDriver into the blocking
// Provisioner interface.
type DriverProvisioner struct {
	driver  GroupDriver
	timeout time.Duration
}

func NewDriverProvisioner(driver GroupDriver, cfg DriverConfig) *DriverProvisioner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DriverProvisioner{driver: driver, timeout: timeout}
}

type createResult struct {
	creds Credentials
	err   error
}

func (p *DriverProvisioner) Start(ctx context.Context, ssid, passphrase string) (Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan createResult, 1)
	p.driver.CreateGroup(ssid, passphrase, func(creds Credentials, err error) {
		ch <- createResult{creds: creds, err: err}
	})

	select {
	case r := <-ch:
		if r.err != nil {
			return Credentials{}, fmt.Errorf("create group %q: %w", ssid, r.err)
		}
		return r.creds, nil
	case <-ctx.Done():
		return Credentials{}, fmt.Errorf("create group %q: %w", ssid, doneErr(ctx))
	}
}

func (p *DriverProvisioner) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan error, 1)
	p.driver.RemoveGroup(func(err error) {
		ch <- err
	})

	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("remove group: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("remove group: %w", doneErr(ctx))
	}
}

func doneErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
