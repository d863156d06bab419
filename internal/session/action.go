package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mqttbench/internal/collector"
	"mqttbench/internal/core"
	"mqttbench/internal/hook"
)

// publishLoop publishes back to back until runCtx is done. runCtx is only
// checked between iterations: the in-flight publish runs under ctx, so the
// duration timer never cuts it short while an interrupt still does.
func (s *Session) publishLoop(ctx, runCtx context.Context, client core.Client) {
	for runCtx.Err() == nil {
		if err := s.limiter.Wait(runCtx); err != nil {
			return
		}

		msg, err := s.resolveMessage()
		if err != nil {
			s.fail(err, "resolving message")
			continue
		}

		sentAt := s.cfg.Clock.Now()
		err = client.Publish(ctx, msg.Topic, msg.QoS, msg.Payload)
		switch {
		case err == nil:
			s.sent.Add(1)
			collector.RecordLatency(s.latency, s.cfg.Clock.Since(sentAt))
			s.emit(core.EventSent)
		case errors.Is(err, core.ErrNotConnected):
			sleep(runCtx, NotConnectedBackoff)
		case ctx.Err() != nil:
			// interrupted
		default:
			s.fail(err, "publish failed")
		}
	}
}

// subscribe issues the single subscription of a subscribe session.
func (s *Session) subscribe(ctx context.Context, client core.Client) {
	sub, err := s.resolveSubscription()
	if err != nil {
		s.fail(err, "resolving subscription")
		return
	}
	if err := client.Subscribe(ctx, sub.Topic, sub.QoS); err != nil {
		s.fail(err, "subscribe failed")
		return
	}
	s.subscribed.Store(true)
	s.log.WithField("topic", sub.Topic).Debug("subscribed")
	s.emit(core.EventSubscribed)
}

func (s *Session) resolveMessage() (hook.Message, error) {
	msg := hook.Message{
		Topic:   s.cfg.Params.Topic,
		Payload: []byte(s.cfg.Params.Message),
		QoS:     s.cfg.Params.QoS,
	}
	if r := s.cfg.Hooks.Message; r != nil {
		var err error
		if msg, err = r.ResolveMessage(s.params); err != nil {
			return hook.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}
	switch {
	case msg.Topic == "":
		return hook.Message{}, fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	case len(msg.Payload) == 0:
		return hook.Message{}, fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	case msg.QoS > 2:
		return hook.Message{}, fmt.Errorf("%w: qos %d", ErrInvalidMessage, msg.QoS)
	}
	return msg, nil
}

func (s *Session) resolveSubscription() (hook.Subscription, error) {
	sub := hook.Subscription{Topic: s.cfg.Params.Topic, QoS: s.cfg.Params.QoS}
	if r := s.cfg.Hooks.Subscription; r != nil {
		var err error
		if sub, err = r.ResolveSubscription(s.params); err != nil {
			return hook.Subscription{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}
	switch {
	case sub.Topic == "":
		return hook.Subscription{}, fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	case sub.QoS > 2:
		return hook.Subscription{}, fmt.Errorf("%w: qos %d", ErrInvalidMessage, sub.QoS)
	}
	return sub, nil
}

func (s *Session) fail(err error, msg string) {
	s.errors.Add(1)
	s.log.WithError(err).Debug(msg)
	s.emit(core.EventError)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
