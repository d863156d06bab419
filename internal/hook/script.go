package hook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mqttbench/internal/core"
	"mqttbench/internal/data"
	"mqttbench/internal/template"
)

// Script is a declarative hook. Every section is optional and enables the
// matching capability.
//
//	data:
//	  devices: {file: devices.csv, mode: random}
//	server: tcp://broker-${random(1,3)}:1883
//	message:
//	  topic: ${topic}/${device}
//	  payload: '{"device":"${data.devices.id}","t":${now()}}'
//	  qos: ${random(0,1)}
//	  extract:
//	    device: $.device
//	subscription:
//	  topic: ${topic}/#
//	  qos: "1"
type Script struct {
	Data         map[string]data.Spec `yaml:"data"`
	Server       string               `yaml:"server"`
	Message      *ScriptMessage       `yaml:"message"`
	Subscription *ScriptSubscription  `yaml:"subscription"`
}

type ScriptMessage struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     string `yaml:"qos"`
	// Extract maps variable names to JSONPath expressions evaluated against
	// the rendered payload. The results are available to the topic.
	Extract map[string]string `yaml:"extract"`
}

type ScriptSubscription struct {
	Topic string `yaml:"topic"`
	QoS   string `yaml:"qos"`
}

// LoadScript reads a YAML hook script. Data files resolve relative to the
// script's directory.
func LoadScript(path string) (Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("reading hook script: %w", err)
	}

	var s Script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Set{}, fmt.Errorf("parsing hook script %s: %w", path, err)
	}
	set, err := s.Compile(filepath.Dir(path))
	if err != nil {
		return Set{}, fmt.Errorf("hook script %s: %w", path, err)
	}
	return set, nil
}

// Compile validates s, loads its data sources and returns its capabilities.
func (s *Script) Compile(baseDir string) (Set, error) {
	if err := s.validate(); err != nil {
		return Set{}, err
	}
	sources, err := data.LoadAll(s.Data, baseDir)
	if err != nil {
		return Set{}, err
	}

	r := &scriptResolver{script: s, sources: sources}
	var set Set
	if s.Server != "" {
		set.Server = ServerFunc(r.server)
	}
	if s.Message != nil {
		set.Message = MessageFunc(r.message)
	}
	if s.Subscription != nil {
		set.Subscription = SubscriptionFunc(r.subscription)
	}
	return set, nil
}

func (s *Script) validate() error {
	var errs []error
	if s.Server == "" && s.Message == nil && s.Subscription == nil {
		errs = append(errs, errors.New("defines no server, message or subscription"))
	}
	if s.Message != nil {
		if s.Message.Topic == "" {
			errs = append(errs, errors.New("message.topic is required"))
		}
		if s.Message.Payload == "" {
			errs = append(errs, errors.New("message.payload is required"))
		}
	}
	if s.Subscription != nil && s.Subscription.Topic == "" {
		errs = append(errs, errors.New("subscription.topic is required"))
	}
	return errors.Join(errs...)
}

type scriptResolver struct {
	script  *Script
	sources data.Sources
}

// vars builds the variables for one resolution. Each call draws fresh
// data rows.
func (r *scriptResolver) vars(p Params) core.Variables {
	vars := p.Variables()
	r.sources.Bind(vars)
	return vars
}

func (r *scriptResolver) server(p Params) (string, error) {
	return template.Substitute(r.script.Server, r.vars(p))
}

func (r *scriptResolver) message(p Params) (Message, error) {
	m := r.script.Message
	vars := r.vars(p)

	payload, err := template.Substitute(m.Payload, vars)
	if err != nil {
		return Message{}, fmt.Errorf("payload: %w", err)
	}
	if len(m.Extract) > 0 {
		values, err := template.Extract([]byte(payload), m.Extract)
		if err != nil {
			return Message{}, fmt.Errorf("extract: %w", err)
		}
		for k, v := range values {
			vars.Set(k, v)
		}
	}

	topic, err := template.Substitute(m.Topic, vars)
	if err != nil {
		return Message{}, fmt.Errorf("topic: %w", err)
	}
	qos, err := renderQoS(m.QoS, p.QoS, vars)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Payload: []byte(payload), QoS: qos}, nil
}

func (r *scriptResolver) subscription(p Params) (Subscription, error) {
	sub := r.script.Subscription
	vars := r.vars(p)

	topic, err := template.Substitute(sub.Topic, vars)
	if err != nil {
		return Subscription{}, fmt.Errorf("topic: %w", err)
	}
	qos, err := renderQoS(sub.QoS, p.QoS, vars)
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{Topic: topic, QoS: qos}, nil
}

// renderQoS renders tmpl, falling back to def when tmpl is empty.
func renderQoS(tmpl string, def byte, vars core.Variables) (byte, error) {
	if tmpl == "" {
		return def, nil
	}
	s, err := template.Substitute(tmpl, vars)
	if err != nil {
		return 0, fmt.Errorf("qos: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("qos: %q is not a number", s)
	}
	return toQoS(n)
}
