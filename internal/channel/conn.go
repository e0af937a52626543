package channel

import (
	"bufio"
	"net"
	"sync"

	"github.com/codefionn/parambridge/internal/consts"
	"github.com/codefionn/parambridge/internal/logger"
	"github.com/gorilla/websocket"
)

// frameConn abstracts a framed transport connection. Implementations exist
// for line-delimited JSON over net.Conn and for websocket connections.
type frameConn interface {
	// ReadFrame blocks for the next complete frame
	ReadFrame() (*Frame, error)
	// WriteFrame sends one frame
	WriteFrame(identity string, payload []byte) error
	// Close tears down the underlying connection
	Close() error
	// RemoteAddr describes the peer for logging
	RemoteAddr() string
}

// lineConn frames messages as newline-delimited JSON over a stream socket
type lineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func newLineConn(conn net.Conn) *lineConn {
	return &lineConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, consts.BufferSize64KB),
	}
}

func (c *lineConn) ReadFrame() (*Frame, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		if len(line) > consts.MaxFrameSize {
			logger.Warn("Oversized frame from %s dropped (%d bytes)", c.RemoteAddr(), len(line))
			continue
		}
		frame, err := DecodeFrame(line)
		if err != nil {
			// No identity, nowhere to send a nack; drop and keep reading
			logger.Warn("Dropping undecodable frame from %s: %v", c.RemoteAddr(), err)
			continue
		}
		return frame, nil
	}
}

func (c *lineConn) WriteFrame(identity string, payload []byte) error {
	data, err := EncodeFrame(identity, payload)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}

func (c *lineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsConn frames messages as websocket text messages
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			logger.Warn("Dropping undecodable frame from %s: %v", c.RemoteAddr(), err)
			continue
		}
		return frame, nil
	}
}

func (c *wsConn) WriteFrame(identity string, payload []byte) error {
	data, err := EncodeFrame(identity, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
