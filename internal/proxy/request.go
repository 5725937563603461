package proxy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformedRequest reports a request line or CONNECT target that does not
// have the expected shape. It is recovered locally with a 400 response.
var ErrMalformedRequest = errors.New("malformed request")

// RequestLine is the first line of a proxy request, split into its parts.
type RequestLine struct {
	Method string
	Target string
	Proto  string
}

// ParseRequestLine splits line on single spaces into method, target, and
// protocol version. At least three tokens are required; anything beyond the
// third is ignored.
func ParseRequestLine(line string) (RequestLine, error) {
	parts := strings.Split(line, " ")
	if len(parts) < 3 {
		return RequestLine{}, fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}

	return RequestLine{Method: parts[0], Target: parts[1], Proto: parts[2]}, nil
}

// ConnectTarget is the host:port a CONNECT request asks to tunnel to.
type ConnectTarget struct {
	Host string
	Port uint16
}

// ParseConnectTarget splits a CONNECT target into host and port. The target
// must contain exactly one ":"; an empty or non-numeric port segment falls
// back to 443.
func ParseConnectTarget(target string) (ConnectTarget, error) {
	if strings.Count(target, ":") != 1 {
		return ConnectTarget{}, fmt.Errorf("%w: connect target %q", ErrMalformedRequest, target)
	}

	host, portPart, _ := strings.Cut(target, ":")

	port := uint16(443)
	if n, err := strconv.ParseUint(portPart, 10, 16); err == nil {
		port = uint16(n)
	}

	return ConnectTarget{Host: host, Port: port}, nil
}

// Address returns the host:port form used for dialing.
func (t ConnectTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}
