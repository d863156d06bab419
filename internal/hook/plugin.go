package hook

import (
	"fmt"
	"plugin"
)

// Exported symbols looked up in a hook plugin. All are optional.
const (
	symServer       = "GetServer"
	symMessage      = "GetMessage"
	symSubscription = "GetSubscriptionTopic"
)

// Plugin function signatures. They use builtin types only so a plugin does
// not have to import this module.
type (
	pluginServerFunc       = func(params map[string]string) string
	pluginMessageFunc      = func(params map[string]string) (topic string, payload []byte, qos int)
	pluginSubscriptionFunc = func(params map[string]string) (topic string, qos int)
)

func loadPlugin(path string) (Set, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("opening hook plugin: %w", err)
	}
	return probeSymbols(path, p.Lookup)
}

// probeSymbols builds a Set from whichever symbols lookup finds.
func probeSymbols(path string, lookup func(string) (plugin.Symbol, error)) (Set, error) {
	var s Set

	if sym, err := lookup(symServer); err == nil {
		fn, ok := sym.(pluginServerFunc)
		if !ok {
			return Set{}, badSymbol(path, symServer, sym, "func(map[string]string) string")
		}
		s.Server = ServerFunc(func(p Params) (string, error) {
			return fn(p.Map()), nil
		})
	}

	if sym, err := lookup(symMessage); err == nil {
		fn, ok := sym.(pluginMessageFunc)
		if !ok {
			return Set{}, badSymbol(path, symMessage, sym, "func(map[string]string) (string, []byte, int)")
		}
		s.Message = MessageFunc(func(p Params) (Message, error) {
			topic, payload, qos := fn(p.Map())
			q, err := toQoS(qos)
			if err != nil {
				return Message{}, err
			}
			return Message{Topic: topic, Payload: payload, QoS: q}, nil
		})
	}

	if sym, err := lookup(symSubscription); err == nil {
		fn, ok := sym.(pluginSubscriptionFunc)
		if !ok {
			return Set{}, badSymbol(path, symSubscription, sym, "func(map[string]string) (string, int)")
		}
		s.Subscription = SubscriptionFunc(func(p Params) (Subscription, error) {
			topic, qos := fn(p.Map())
			q, err := toQoS(qos)
			if err != nil {
				return Subscription{}, err
			}
			return Subscription{Topic: topic, QoS: q}, nil
		})
	}

	return s, nil
}

func badSymbol(path, name string, sym plugin.Symbol, want string) error {
	return fmt.Errorf("hook plugin %s: %s has type %T, want %s", path, name, sym, want)
}
