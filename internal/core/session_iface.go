package core

// SessionID identifies one live transport connection.
type SessionID string

// MemberSession binds a connection id and its transport endpoint.
// This is what the registry stores and fans out to.
type MemberSession interface {
	ID() SessionID
	// Client is the browser token of the HTTP session that opened the connection.
	Client() string
	Signal() SignalConnection
}
