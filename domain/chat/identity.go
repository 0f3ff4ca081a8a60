package chat

// Identity is the authenticated user bound to a connection at handshake.
// It is immutable once issued and never re-validated afterward.
type Identity struct {
	UserID   string
	Username string
}
