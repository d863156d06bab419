// Package testbroker provides a configurable in-process MQTT broker for
// exercising the benchmark end to end.
package testbroker

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// Options configures a Broker.
type Options struct {
	// Address to listen on. Empty picks a free loopback port.
	Address string
	// DenySubscribe rejects subscriptions whose filter has one of these
	// prefixes. Rejected filters get a failure code in the SUBACK.
	DenySubscribe []string
	// Logger receives broker logs. Nil discards them.
	Logger *slog.Logger
}

// Broker is a running MQTT broker.
type Broker struct {
	server *mqtt.Server
	addr   string
	stats  *statsHook
}

// Start listens on opts.Address and serves in the background.
func Start(opts Options) (*Broker, error) {
	addr := opts.Address
	if addr == "" {
		var err error
		if addr, err = freeAddr(); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := mqtt.New(&mqtt.Options{Logger: logger})
	stats := &statsHook{deny: opts.DenySubscribe}
	if err := server.AddHook(stats, nil); err != nil {
		return nil, fmt.Errorf("adding stats hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("broker stopped", "error", err)
		}
	}()

	return &Broker{server: server, addr: addr, stats: stats}, nil
}

// URL returns the broker's tcp:// address.
func (b *Broker) URL() string {
	return "tcp://" + b.addr
}

// Close stops the broker and disconnects all clients.
func (b *Broker) Close() error {
	return b.server.Close()
}

// Published returns the number of messages received from publishers.
func (b *Broker) Published() int64 { return b.stats.published.Load() }

// Connects returns the number of accepted client connections.
func (b *Broker) Connects() int64 { return b.stats.connects.Load() }

// Subscriptions returns the number of accepted subscription filters.
func (b *Broker) Subscriptions() int64 { return b.stats.subscribed.Load() }

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// statsHook allows every client, counts traffic and applies DenySubscribe.
type statsHook struct {
	mqtt.HookBase
	deny       []string
	published  atomic.Int64
	connects   atomic.Int64
	subscribed atomic.Int64
}

func (h *statsHook) ID() string { return "mqttbench-stats" }

func (h *statsHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
		mqtt.OnSessionEstablished,
		mqtt.OnPublished,
		mqtt.OnSubscribed,
	}, []byte{b})
}

func (h *statsHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	return true
}

func (h *statsHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	if write {
		return true
	}
	for _, prefix := range h.deny {
		if strings.HasPrefix(topic, prefix) {
			return false
		}
	}
	return true
}

func (h *statsHook) OnSessionEstablished(cl *mqtt.Client, pk packets.Packet) {
	h.connects.Add(1)
}

func (h *statsHook) OnPublished(cl *mqtt.Client, pk packets.Packet) {
	h.published.Add(1)
}

func (h *statsHook) OnSubscribed(cl *mqtt.Client, pk packets.Packet, reasonCodes []byte) {
	for _, code := range reasonCodes {
		if code < 0x80 {
			h.subscribed.Add(1)
		}
	}
}
