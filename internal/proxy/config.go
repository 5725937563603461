package proxy

import (
	"net"

	"github.com/tetherproxy/tetherd/internal/dialer"
)

type Config struct {
	// ListenAddr is the TCP bind address, e.g. ":8080".
	ListenAddr string

	// KeepAlive is applied to accepted TCP connections.
	KeepAlive net.KeepAliveConfig

	// Dialer opens outbound connections for CONNECT targets.
	Dialer dialer.Dialer
}
