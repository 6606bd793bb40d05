// Package sessions defines how session metadata is persisted outside the
// process serving a connection. The dispatch engine records every session it
// opens through a SessionHost: it is created pending, moved to ready once
// negotiation succeeds, and deleted when the connection closes. Operators can
// then inspect live sessions, and their negotiated capabilities, across
// processes sharing a host.
//
// Implementations
//
//	memoryhost : in-memory reference used for tests and single-process servers
//	redishost  : Redis backed implementation with sliding TTL
//
// The host is bookkeeping only. Outstanding invocations and cancellation live
// in the process that owns the connection.
package sessions
