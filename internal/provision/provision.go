// Package provision defines the network-provisioning collaborator that
// brings up the local hotspot group the proxy serves on, plus adapters for
// the callback-style platform backends that implement it.
package provision

import "context"

// Credentials describes a provisioned group.
type Credentials struct {
	SSID       string
	Passphrase string
	IPAddress  string
}

// Provisioner creates and removes the local network group. Both operations
// block until the underlying platform reports completion or ctx ends.
type Provisioner interface {
	Start(ctx context.Context, ssid, passphrase string) (Credentials, error)
	Stop(ctx context.Context) error
}
