package channel

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/codefionn/parambridge/internal/consts"
)

// Client is a framed client connection to a channel server. It is not safe
// for concurrent use.
type Client struct {
	identity string
	conn     net.Conn
	reader   *bufio.Reader
}

// Dial connects to a channel endpoint with the given client identity
func Dial(endpoint, identity string) (*Client, error) {
	network, addr, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout(network, addr, consts.Timeout5Seconds)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	return &Client{
		identity: identity,
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, consts.BufferSize64KB),
	}, nil
}

// Identity returns the client identity sent with every frame
func (c *Client) Identity() string {
	return c.identity
}

// Send writes one framed payload
func (c *Client) Send(payload []byte) error {
	data, err := EncodeFrame(c.identity, payload)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

// Recv blocks for the next frame, up to timeout. A zero timeout blocks
// indefinitely.
func (c *Client) Recv(timeout time.Duration) (*Frame, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return DecodeFrame(line)
}

// SendRaw writes arbitrary bytes followed by a newline, bypassing frame
// encoding. Tests use this to exercise malformed input handling.
func (c *Client) SendRaw(data []byte) error {
	_, err := c.conn.Write(append(data, '\n'))
	return err
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
