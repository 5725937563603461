package proxy

// Package proxy implements the tethering HTTP CONNECT proxy: request-line
// parsing, per-connection handling, bidirectional tunnel forwarding, and the
// listening server with its observable lifecycle state machine.
//
// The client-facing protocol is deliberately minimal. One request line is
// read per connection; CONNECT establishes a transparent tunnel to the
// requested host:port, and every other method receives 501 Not Implemented.
