package chatclient

// breakConn drops the socket as a network failure would.
func (c *Client) breakConn() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
