package consts

import "time"

// Buffer sizes for transport I/O
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// MaxFrameSize is the largest accepted wire frame
	MaxFrameSize = 4 * 1024 * 1024
)

// Channel defaults
const (
	// DefaultSendQueueSize is the per-connection outbound frame queue length
	DefaultSendQueueSize = 256
	// DefaultMaxConnections is the default per-channel connection limit
	DefaultMaxConnections = 64
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
	// PingInterval is the websocket keepalive interval
	PingInterval = 54 * time.Second
)
