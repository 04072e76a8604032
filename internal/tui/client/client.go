package client

import (
	"fmt"

	"github.com/matheus3301/chatlist/internal/api"
	"google.golang.org/grpc"
)

// Client owns the connection to a session daemon.
type Client struct {
	*api.Client
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := api.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{Client: api.NewClient(conn), conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
