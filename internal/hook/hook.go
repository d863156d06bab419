// Package hook supplies optional per-connection overrides for the server
// address, the published message and the subscription target.
//
// Each capability is probed independently. A Set with only a
// MessageResolver is valid: the session falls back to the static server
// and subscription.
package hook

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"mqttbench/internal/core"
)

// Params describes the connection asking for a value.
type Params struct {
	Action     core.Action
	Server     string
	Topic      string
	Message    string
	QoS        byte
	WorkerID   string
	Connection int
}

// Map flattens p for hooks that only understand string maps.
func (p Params) Map() map[string]string {
	return map[string]string{
		"action":     string(p.Action),
		"server":     p.Server,
		"topic":      p.Topic,
		"message":    p.Message,
		"qos":        strconv.Itoa(int(p.QoS)),
		"worker":     p.WorkerID,
		"connection": strconv.Itoa(p.Connection),
	}
}

// Variables exposes p to templates.
func (p Params) Variables() *core.MapVariables {
	vars := core.NewVariables()
	for k, v := range p.Map() {
		vars.Set(k, v)
	}
	return vars
}

// Message is one message to publish.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// Subscription is a subscribe target.
type Subscription struct {
	Topic string
	QoS   byte
}

type ServerResolver interface {
	ResolveServer(Params) (string, error)
}

type MessageResolver interface {
	ResolveMessage(Params) (Message, error)
}

type SubscriptionResolver interface {
	ResolveSubscription(Params) (Subscription, error)
}

// ServerFunc adapts a function to ServerResolver.
type ServerFunc func(Params) (string, error)

func (f ServerFunc) ResolveServer(p Params) (string, error) { return f(p) }

// MessageFunc adapts a function to MessageResolver.
type MessageFunc func(Params) (Message, error)

func (f MessageFunc) ResolveMessage(p Params) (Message, error) { return f(p) }

// SubscriptionFunc adapts a function to SubscriptionResolver.
type SubscriptionFunc func(Params) (Subscription, error)

func (f SubscriptionFunc) ResolveSubscription(p Params) (Subscription, error) { return f(p) }

// Set holds the capabilities a hook provides. Nil fields are absent.
// Resolvers are called concurrently by every session of a worker unit.
type Set struct {
	Server       ServerResolver
	Message      MessageResolver
	Subscription SubscriptionResolver
}

// Empty reports whether no capability is present.
func (s Set) Empty() bool {
	return s.Server == nil && s.Message == nil && s.Subscription == nil
}

// String lists the present capabilities.
func (s Set) String() string {
	var caps []string
	if s.Server != nil {
		caps = append(caps, "server")
	}
	if s.Message != nil {
		caps = append(caps, "message")
	}
	if s.Subscription != nil {
		caps = append(caps, "subscription")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, ",")
}

// Probe collects whichever resolver interfaces v implements.
func Probe(v any) Set {
	var s Set
	if r, ok := v.(ServerResolver); ok {
		s.Server = r
	}
	if r, ok := v.(MessageResolver); ok {
		s.Message = r
	}
	if r, ok := v.(SubscriptionResolver); ok {
		s.Subscription = r
	}
	return s
}

// Load opens the hook at path. An empty path yields an empty Set.
// Go plugins (.so) and YAML scripts (.yaml, .yml) are supported.
func Load(path string) (Set, error) {
	if path == "" {
		return Set{}, nil
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".so":
		return loadPlugin(path)
	case ".yaml", ".yml":
		return LoadScript(path)
	default:
		return Set{}, fmt.Errorf("hook %s: unsupported format %q (use .so, .yaml or .yml)", path, ext)
	}
}

func toQoS(v int) (byte, error) {
	if v < 0 || v > 2 {
		return 0, fmt.Errorf("qos %d out of range 0-2", v)
	}
	return byte(v), nil
}
