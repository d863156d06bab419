package core

import (
	"time"

	"github.com/codahale/hdrhistogram"
)

// ClientOptions are transport settings shared by every connection of a unit.
type ClientOptions struct {
	ProtocolVersion uint          `json:"protocolVersion" yaml:"protocol_version"`
	KeepAlive       time.Duration `json:"keepAlive" yaml:"keep_alive"`
	ConnectTimeout  time.Duration `json:"connectTimeout" yaml:"connect_timeout"`
	CAFile          string        `json:"caFile,omitempty" yaml:"ca_file"`
	CertFile        string        `json:"certFile,omitempty" yaml:"cert_file"`
	KeyFile         string        `json:"keyFile,omitempty" yaml:"key_file"`
	Insecure        bool          `json:"insecure,omitempty" yaml:"insecure"`
}

// WorkerParams is sent once from the coordinator to a worker unit.
type WorkerParams struct {
	Action      Action        `json:"action"`
	Server      string        `json:"server"`
	Topic       string        `json:"topic"`
	Message     string        `json:"message"`
	QoS         byte          `json:"qos"`
	HookPath    string        `json:"hookPath,omitempty"`
	Connections int           `json:"connectionCount"`
	Duration    time.Duration `json:"duration"`
	WorkerID    string        `json:"workerId"`
	Client      ClientOptions `json:"client"`
	Rate        float64       `json:"rate,omitempty"` // publishes per second per connection, 0 = unlimited
}

// ConnectionResult is produced exactly once per connection session.
type ConnectionResult struct {
	MessagesSent     int64
	MessagesReceived int64
	Errors           int64
	Reconnects       int64
	WasConnected     bool
	WasSubscribed    bool
	Elapsed          time.Duration

	// Latency holds publish completion latencies; nil for subscribers.
	Latency *hdrhistogram.Histogram
}

// WorkerResult is the fold of all ConnectionResults of one worker unit.
type WorkerResult struct {
	WorkerID         string                 `json:"workerId"`
	Action           Action                 `json:"action"`
	Connections      int                    `json:"connectionCount"`
	MessagesSent     int64                  `json:"messagesSent"`
	MessagesReceived int64                  `json:"messagesReceived"`
	Errors           int64                  `json:"errorCount"`
	Reconnects       int64                  `json:"reconnectCount"`
	Connected        int                    `json:"connectedCount"`
	Subscribed       int                    `json:"subscribedCount"`
	MinDuration      time.Duration          `json:"minDuration"`
	AvgDuration      time.Duration          `json:"avgDuration"`
	MaxDuration      time.Duration          `json:"maxDuration"`
	PublishLatency   *hdrhistogram.Snapshot `json:"publishLatency,omitempty"`
}
