package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const afterSubscribeDelay = 10 * time.Millisecond

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// FakeDialer hands out in-memory clients for testing sessions and workers.
type FakeDialer struct {
	// Configure runs on every new client before any handler fires.
	Configure func(c *FakeClient)
	// Err makes every Dial fail.
	Err error

	mu      sync.Mutex
	clients []*FakeClient
}

func (d *FakeDialer) Dial(opts DialOptions, h Handlers) (Client, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c := &FakeClient{Opts: opts, ConnectEvents: 1, handlers: h}
	if d.Configure != nil {
		d.Configure(c)
	}
	d.mu.Lock()
	d.clients = append(d.clients, c)
	d.mu.Unlock()

	if !c.NoConnect {
		go func() {
			for i := 0; i < c.ConnectEvents; i++ {
				c.FireConnect()
			}
		}()
	}
	return c, nil
}

// Clients returns the clients created so far.
func (d *FakeDialer) Clients() []*FakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeClient, len(d.clients))
	copy(out, d.clients)
	return out
}

// FakeClient is an in-memory Client. Exported knobs must be set from
// FakeDialer.Configure.
type FakeClient struct {
	Opts DialOptions

	NoConnect     bool
	ConnectEvents int
	// PublishErr, if set, decides the outcome of the nth publish (1-based).
	PublishErr   func(n int64) error
	// PublishDelay makes each publish take this long unless ctx ends first.
	PublishDelay time.Duration
	SubscribeErr error
	// AfterSubscribe runs in its own goroutine shortly after Subscribe
	// returned, e.g. to deliver messages.
	AfterSubscribe func(c *FakeClient)
	// BeforeDisconnect runs at the start of Disconnect.
	BeforeDisconnect func()

	handlers     Handlers
	connected    atomic.Bool
	disconnected atomic.Bool
	publishes    atomic.Int64
	cancelled    atomic.Int64
	mu           sync.Mutex
	subscribed   []string
	lastPublish  publishCall
}

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

func (c *FakeClient) IsConnected() bool {
	return c.connected.Load() && !c.disconnected.Load()
}

func (c *FakeClient) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	n := c.publishes.Add(1)
	c.mu.Lock()
	c.lastPublish = publishCall{topic: topic, qos: qos, payload: payload}
	c.mu.Unlock()
	if c.PublishDelay > 0 {
		t := time.NewTimer(c.PublishDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			c.cancelled.Add(1)
			return ctx.Err()
		}
	}
	if c.PublishErr != nil {
		return c.PublishErr(n)
	}
	return nil
}

func (c *FakeClient) Subscribe(ctx context.Context, topic string, qos byte) error {
	if c.SubscribeErr == nil {
		c.mu.Lock()
		c.subscribed = append(c.subscribed, topic)
		c.mu.Unlock()
	}
	if c.AfterSubscribe != nil {
		go func() {
			time.Sleep(afterSubscribeDelay)
			c.AfterSubscribe(c)
		}()
	}
	return c.SubscribeErr
}

func (c *FakeClient) Disconnect() {
	if c.BeforeDisconnect != nil {
		c.BeforeDisconnect()
	}
	c.disconnected.Store(true)
}

// FireConnect simulates a (re)connect acknowledgement.
func (c *FakeClient) FireConnect() {
	c.connected.Store(true)
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
}

// FireError simulates a transport error.
func (c *FakeClient) FireError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

// FireReconnect simulates the transport starting a reconnect.
func (c *FakeClient) FireReconnect() {
	if c.handlers.OnReconnect != nil {
		c.handlers.OnReconnect()
	}
}

// Deliver simulates an inbound message.
func (c *FakeClient) Deliver(topic string, payload []byte) {
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(topic, payload)
	}
}

// Publishes returns the number of Publish calls that reached the transport.
func (c *FakeClient) Publishes() int64 {
	return c.publishes.Load()
}

// Cancelled returns the number of delayed publishes that ended because
// their context was done.
func (c *FakeClient) Cancelled() int64 {
	return c.cancelled.Load()
}

// LastPublish returns the arguments of the most recent Publish call.
func (c *FakeClient) LastPublish() (topic string, qos byte, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPublish.topic, c.lastPublish.qos, c.lastPublish.payload
}

// Subscriptions returns the topics successfully subscribed.
func (c *FakeClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

// Disconnected reports whether Disconnect was called.
func (c *FakeClient) Disconnected() bool {
	return c.disconnected.Load()
}

// RecordingReporter keeps every reported event.
type RecordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingReporter) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *RecordingReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *RecordingReporter) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
