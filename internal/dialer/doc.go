package dialer

// Package dialer provides the outbound dialing implementation used by the
// proxy's CONNECT handler.
//
// Dialers implement a small interface (DialContext) so tests can substitute
// failing or instrumented dialers for the direct TCP dialer used in
// production. Outbound connects are a single attempt; there is no retry.
