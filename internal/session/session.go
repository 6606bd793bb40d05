// Package session tracks the negotiated state of one client connection and the
// tool invocations it has outstanding.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/google/uuid"
)

var (
	ErrNotReady          = errors.New("session not negotiated")
	ErrAlreadyNegotiated = errors.New("session already negotiated")
	ErrIncompatible      = errors.New("incompatible capabilities")
	ErrClosed            = errors.New("session closed")
	ErrDuplicateID       = errors.New("correlation id already outstanding")
)

// State is the lifecycle phase of a Session.
type State int32

const (
	StatePending State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Offer is what the server supports during negotiation. ProtocolVersions is
// ordered by preference.
type Offer struct {
	ProtocolVersions []string
	Capabilities     []string
	ServerInfo       mcp.ImplementationInfo
	Instructions     string
}

// Negotiated is the outcome of a successful negotiate exchange.
type Negotiated struct {
	ProtocolVersion string
	Capabilities    []string
	ClientInfo      mcp.ImplementationInfo
}

// Has reports whether capability c was agreed.
func (n Negotiated) Has(c string) bool {
	return slices.Contains(n.Capabilities, c)
}

// Session is a single client connection. The invocation map is guarded by mu
// and is the only record of which correlation ids are outstanding.
type Session struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	state       State
	negotiated  Negotiated
	invocations map[string]*Invocation
}

// Open returns a new pending session with a random id.
func Open() *Session {
	return &Session{
		id:          uuid.NewString(),
		createdAt:   time.Now().UTC(),
		invocations: make(map[string]*Invocation),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Negotiated returns the agreed parameters and whether negotiation happened.
func (s *Session) Negotiated() (Negotiated, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return Negotiated{}, false
	}
	return s.negotiated, true
}

// Negotiate performs the one-time capability exchange. An empty requested
// protocol version selects the server's preferred one. Capabilities are the
// intersection of both sides; a client that lists none gets everything
// offered. Every capability in req.Required must be offered.
func (s *Session) Negotiate(offer Offer, req *mcp.NegotiateRequest) (Negotiated, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return Negotiated{}, ErrAlreadyNegotiated
	case StateClosed:
		return Negotiated{}, ErrClosed
	}
	if len(offer.ProtocolVersions) == 0 {
		return Negotiated{}, fmt.Errorf("%w: server offers no protocol version", ErrIncompatible)
	}

	version := offer.ProtocolVersions[0]
	if req.ProtocolVersion != "" {
		if !slices.Contains(offer.ProtocolVersions, req.ProtocolVersion) {
			return Negotiated{}, fmt.Errorf("%w: unsupported protocol version %q", ErrIncompatible, req.ProtocolVersion)
		}
		version = req.ProtocolVersion
	}

	for _, c := range req.Required {
		if !slices.Contains(offer.Capabilities, c) {
			return Negotiated{}, fmt.Errorf("%w: required capability %q not supported", ErrIncompatible, c)
		}
	}

	var caps []string
	if req.Capabilities == nil {
		caps = slices.Clone(offer.Capabilities)
	} else {
		caps = []string{}
		for _, c := range offer.Capabilities {
			if slices.Contains(req.Capabilities, c) {
				caps = append(caps, c)
			}
		}
	}

	s.negotiated = Negotiated{
		ProtocolVersion: version,
		Capabilities:    caps,
		ClientInfo:      req.ClientInfo,
	}
	s.state = StateReady
	return s.negotiated, nil
}

// Track records inv as outstanding under its correlation id.
func (s *Session) Track(inv *Invocation) error {
	key := inv.CorrelationID.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StatePending:
		return ErrNotReady
	}
	if _, exists := s.invocations[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, inv.CorrelationID.String())
	}
	s.invocations[key] = inv
	return nil
}

// Untrack removes inv. It reports false when inv is no longer the tracked
// entry for its id, which means the session closed underneath it.
func (s *Session) Untrack(inv *Invocation) bool {
	key := inv.CorrelationID.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.invocations[key]; !ok || cur != inv {
		return false
	}
	delete(s.invocations, key)
	return true
}

// Lookup returns the outstanding invocation for id.
func (s *Session) Lookup(id *jsonrpc.RequestID) (*Invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[id.Key()]
	return inv, ok
}

// Cancel signals the invocation tracked under id. Unknown ids are ignored.
func (s *Session) Cancel(id *jsonrpc.RequestID, cause error) bool {
	inv, ok := s.Lookup(id)
	if !ok {
		return false
	}
	inv.Cancel(cause)
	return true
}

// Len returns the number of outstanding invocations.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invocations)
}

// Close moves the session to its terminal state. Every outstanding invocation
// is cancelled with cause, marked cancelled and untracked; they are returned
// to the caller. Close is idempotent.
func (s *Session) Close(cause error) []*Invocation {
	if cause == nil {
		cause = ErrSessionClosed
	}

	s.mu.Lock()
	s.state = StateClosed
	outstanding := make([]*Invocation, 0, len(s.invocations))
	for key, inv := range s.invocations {
		outstanding = append(outstanding, inv)
		delete(s.invocations, key)
	}
	s.mu.Unlock()

	for _, inv := range outstanding {
		inv.Cancel(cause)
		inv.Finish(Cancelled)
	}
	return outstanding
}
