// Package mqtt adapts paho.mqtt.golang to the core.Dialer and core.Client
// contracts.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"mqttbench/internal/core"
)

const (
	retryInterval   = time.Second
	disconnectQuiet = 250 // ms
	subscribeFailed = 0x80
)

// Dialer creates paho clients. The zero value is ready to use.
type Dialer struct{}

// Dial starts connecting in the background and returns immediately. The
// client keeps retrying the initial connect and reconnects after losing the
// connection; both surface through h.
func (Dialer) Dial(opts core.DialOptions, h core.Handlers) (core.Client, error) {
	if opts.Server == "" {
		return nil, errors.New("no server")
	}

	o := paho.NewClientOptions().
		AddBroker(opts.Server).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetOrderMatters(false)

	if opts.ProtocolVersion != 0 {
		o.SetProtocolVersion(opts.ProtocolVersion)
	}
	if opts.KeepAlive > 0 {
		o.SetKeepAlive(opts.KeepAlive)
	}
	if opts.ConnectTimeout > 0 {
		o.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.TLS != nil {
		o.SetTLSConfig(opts.TLS)
	}

	o.SetOnConnectHandler(func(paho.Client) {
		if h.OnConnect != nil {
			h.OnConnect()
		}
	})
	o.SetConnectionLostHandler(func(_ paho.Client, err error) {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
	o.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		if h.OnReconnect != nil {
			h.OnReconnect()
		}
	})
	o.SetDefaultPublishHandler(func(_ paho.Client, m paho.Message) {
		if h.OnMessage != nil {
			h.OnMessage(m.Topic(), m.Payload())
		}
	})

	c := paho.NewClient(o)
	tok := c.Connect()
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil && h.OnError != nil {
			h.OnError(fmt.Errorf("connect: %w", err))
		}
	}()

	return &client{c: c}, nil
}

type client struct {
	c paho.Client
}

func (c *client) IsConnected() bool {
	return c.c.IsConnectionOpen()
}

func (c *client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !c.c.IsConnectionOpen() {
		return core.ErrNotConnected
	}
	tok := c.c.Publish(topic, qos, false, payload)
	if err := wait(ctx, tok); err != nil {
		if errors.Is(err, paho.ErrNotConnected) {
			return core.ErrNotConnected
		}
		return fmt.Errorf("publish to %q: %w", topic, err)
	}
	return nil
}

func (c *client) Subscribe(ctx context.Context, topic string, qos byte) error {
	tok := c.c.Subscribe(topic, qos, nil)
	if err := wait(ctx, tok); err != nil {
		if errors.Is(err, paho.ErrNotConnected) {
			return core.ErrNotConnected
		}
		return fmt.Errorf("subscribe to %q: %w", topic, err)
	}
	if st, ok := tok.(*paho.SubscribeToken); ok {
		if code, ok := st.Result()[topic]; ok && code >= subscribeFailed {
			return fmt.Errorf("subscribe to %q: rejected by broker (code 0x%02x)", topic, code)
		}
	}
	return nil
}

func (c *client) Disconnect() {
	c.c.Disconnect(disconnectQuiet)
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
