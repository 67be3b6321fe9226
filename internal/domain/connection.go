package domain

import "time"

// ConnectionState is the lifecycle state of the bridge's socket connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStatus is a snapshot of the connection for display.
// Reason is set for StateFailed and carries the last close cause otherwise.
type ConnectionStatus struct {
	State   ConnectionState `json:"state"`
	URI     string          `json:"uri,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	Since   time.Time       `json:"since"`
}

// Live reports whether the state holds (or is acquiring) a connection.
func (s ConnectionState) Live() bool {
	return s == StateConnecting || s == StateConnected
}
