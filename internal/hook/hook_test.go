package hook

import (
	"testing"

	"mqttbench/internal/core"
)

type messageOnly struct{}

func (messageOnly) ResolveMessage(p Params) (Message, error) {
	return Message{Topic: p.Topic + "/hook", Payload: []byte("x"), QoS: 1}, nil
}

type everything struct{ messageOnly }

func (everything) ResolveServer(Params) (string, error) { return "tcp://h:1883", nil }

func (everything) ResolveSubscription(p Params) (Subscription, error) {
	return Subscription{Topic: p.Topic}, nil
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, "none"},
		{"unrelated value", 42, "none"},
		{"message only", messageOnly{}, "message"},
		{"all capabilities", everything{}, "server,message,subscription"},
		{"func adapter", ServerFunc(func(Params) (string, error) { return "", nil }), "server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Probe(tt.v).String(); got != tt.want {
				t.Errorf("Probe(%T) = %s, want %s", tt.v, got, tt.want)
			}
		})
	}
}

func TestSet_Empty(t *testing.T) {
	if !(Set{}).Empty() {
		t.Error("zero Set should be empty")
	}
	if Probe(messageOnly{}).Empty() {
		t.Error("Set with a message resolver should not be empty")
	}
}

func TestParams_Map(t *testing.T) {
	p := Params{
		Action:     core.ActionPublish,
		Server:     "tcp://b:1883",
		Topic:      "bench",
		Message:    "hi",
		QoS:        2,
		WorkerID:   "p3",
		Connection: 7,
	}
	want := map[string]string{
		"action":     "publish",
		"server":     "tcp://b:1883",
		"topic":      "bench",
		"message":    "hi",
		"qos":        "2",
		"worker":     "p3",
		"connection": "7",
	}

	got := p.Map()
	if len(got) != len(want) {
		t.Fatalf("Map() has %d keys, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Map()[%s] = %q, want %q", k, got[k], v)
		}
	}

	if v, ok := p.Variables().Get("worker"); !ok || v != "p3" {
		t.Errorf("Variables()[worker] = %v, want p3", v)
	}
}

func TestLoad_Empty(t *testing.T) {
	set, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Empty() {
		t.Errorf("expected empty set, got %s", set)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	if _, err := Load("hooks/demo.js"); err == nil {
		t.Error("expected error for .js hook")
	}
}

func TestLoad_MissingPlugin(t *testing.T) {
	if _, err := Load("does-not-exist.so"); err == nil {
		t.Error("expected error for missing plugin")
	}
}

func TestToQoS(t *testing.T) {
	for _, v := range []int{0, 1, 2} {
		if q, err := toQoS(v); err != nil || int(q) != v {
			t.Errorf("toQoS(%d) = %d, %v", v, q, err)
		}
	}
	for _, v := range []int{-1, 3, 255} {
		if _, err := toQoS(v); err == nil {
			t.Errorf("toQoS(%d) should fail", v)
		}
	}
}
