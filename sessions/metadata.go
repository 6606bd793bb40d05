package sessions

import "time"

// SessionState mirrors the lifecycle of a connection.
type SessionState string

const (
	StatePending SessionState = "pending"
	StateReady   SessionState = "ready"
)

// ClientInfo records the client identity supplied during negotiation.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// SessionMetadata is the persisted representation of a session.
//
// ProtocolVersion, Client and Capabilities are written once, when the session
// becomes ready. TTL is a sliding window: hosts expire a session when
// LastAccess + TTL < now. A zero TTL never expires.
type SessionMetadata struct {
	MetaVersion     int           `json:"meta_version"`
	SessionID       string        `json:"session_id"`
	State           SessionState  `json:"state"`
	Transport       string        `json:"transport,omitempty"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
	Client          ClientInfo    `json:"client,omitzero"`
	Capabilities    []string      `json:"capabilities,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	LastAccess      time.Time     `json:"last_access"`
	TTL             time.Duration `json:"ttl"`
}

// Expired reports whether the sliding TTL has lapsed at now.
func (m *SessionMetadata) Expired(now time.Time) bool {
	return m.TTL > 0 && m.LastAccess.Add(m.TTL).Before(now)
}
