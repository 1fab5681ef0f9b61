package asyncmaria

// These accessors read the scalars refreshConnScalars last stashed on
// Client when an operation completed.
// They never touch conn directly (conn may be nil between operations
// while a callback is running) and never block.

// ErrorMessage is the server or connector message from the most recently
// completed operation, or "" if it succeeded.
func (c *Client) ErrorMessage() string { return c.lastError }

// ErrorNumber is the server error code from the most recently completed
// operation, or 0 if it succeeded.
func (c *Client) ErrorNumber() int { return c.lastErrorNo }

// SQLState is the five-character SQLSTATE code from the most recently
// completed operation.
func (c *Client) SQLState() string { return c.lastSQLState }

// InsertID is the auto-increment value generated by the most recent
// INSERT, or 0 if the last statement did not generate one.
func (c *Client) InsertID() uint64 { return c.lastInsertID }

// WarningCount is the warning count reported by the most recently
// completed operation.
func (c *Client) WarningCount() uint32 { return c.lastWarnings }

// Info is the server's informational string for the most recently
// completed operation (e.g. "Rows matched: 1  Changed: 1  Warnings: 0").
func (c *Client) Info() string { return c.lastInfo }

// ServerVersion is the connected server's version string.
func (c *Client) ServerVersion() string { return c.serverVersion }

// ServerInfo is the connected server's info string.
func (c *Client) ServerInfo() string { return c.serverInfo }

// ThreadID is the server-assigned connection thread id.
func (c *Client) ThreadID() uint64 { return c.threadID }

// HostInfo describes the transport the connection is using.
func (c *Client) HostInfo() string { return c.hostInfo }

// CharacterSetName is the connection's negotiated character set.
func (c *Client) CharacterSetName() string { return c.characterSet }

// Socket returns the underlying connector file descriptor, or -1 if not
// connected. Exposed for callers that need to hand the fd to something
// outside the client (diagnostics, an external poller).
func (c *Client) Socket() int {
	if c.conn == nil {
		return -1
	}
	return c.conn.FD()
}
