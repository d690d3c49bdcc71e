// Package config defines the daemon configuration. It is loaded once at
// startup from the environment (optionally seeded by a .env file) and is
// immutable thereafter. Collaborators receive only the subsets they need;
// anything left unconfigured (broker, Influx, Pushover, probe address)
// disables that collaborator rather than failing startup.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crossley/gatewatch/internal/logic"
)

// Config is the top-level configuration for the gatewatch daemon.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// LogFile enables a rotating JSON log file alongside stdout when set.
	LogFile string `envconfig:"LOG_FILE"`

	Input    InputConfig
	Window   WindowConfig
	Pushover PushoverConfig
	MQTT     MQTTConfig
	Influx   InfluxConfig
	HTTP     HTTPConfig
	Net      NetConfig
}

// InputConfig holds the GPIO wiring of the status lamp and indicator.
type InputConfig struct {
	StatusPin int `envconfig:"STATUS_PIN" default:"25" validate:"min=0,max=53"`
	LEDPin    int `envconfig:"LED_PIN" default:"2" validate:"min=0,max=53"`
	// Invert flips the raw input level for optocoupler boards whose
	// output transistor pulls the line low while the lamp is lit.
	Invert       bool          `envconfig:"STATUS_INVERT" default:"false"`
	SamplePeriod time.Duration `envconfig:"SAMPLE_PERIOD" default:"100ms" validate:"min=10ms"`
}

// WindowConfig holds the aggregation window and the classification and
// notification tables. The JSON overrides exist so bands and policies can
// be tuned per hardware batch without a rebuild.
type WindowConfig struct {
	Samples int `envconfig:"WINDOW_SAMPLES" default:"50" validate:"min=10"`
	// SignaturesJSON replaces the entire default signature table when set.
	// Format: [{"state":"NO_MAINS","illuminated":{"min":20,"max":30},"edges":{"min":8,"max":12}}, ...]
	SignaturesJSON string `envconfig:"SIGNATURES_JSON" validate:"omitempty,json"`
	// PoliciesJSON replaces the policy entries for the states it names.
	// Format: {"OPEN":{"notify":true,"repeat_every":"5m","message":"Gate OPEN","repeat_message":"Gate still OPEN"}, ...}
	PoliciesJSON string `envconfig:"POLICIES_JSON" validate:"omitempty,json"`
}

// PushoverConfig holds the push notification credentials and delivery
// limits. Leaving Token or User empty disables the Pushover sender.
type PushoverConfig struct {
	Token SecretString `envconfig:"PUSHOVER_TOKEN"`
	User  SecretString `envconfig:"PUSHOVER_USER"`
	URL   string       `envconfig:"PUSHOVER_URL" default:"https://api.pushover.net/1/messages.json" validate:"url"`
	Title string       `envconfig:"PUSHOVER_TITLE" default:"Gate monitor"`
	Sound string       `envconfig:"PUSHOVER_SOUND" default:"pushover"`
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `envconfig:"PUSHOVER_TIMEOUT" default:"10s" validate:"min=1s"`
	// BreakerFailures is the consecutive-failure count that opens the
	// circuit breaker; BreakerCooldown is how long it stays open.
	BreakerFailures uint32        `envconfig:"PUSHOVER_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerCooldown time.Duration `envconfig:"PUSHOVER_BREAKER_COOLDOWN" default:"60s"`
}

// Enabled reports whether Pushover delivery is configured.
func (c PushoverConfig) Enabled() bool {
	return c.Token.Unmask() != "" && c.User.Unmask() != ""
}

// MQTTConfig holds the event bus settings. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker   string       `envconfig:"MQTT_BROKER" validate:"omitempty,uri"`
	ClientID string       `envconfig:"MQTT_CLIENT_ID" default:"gatewatch"`
	Username string       `envconfig:"MQTT_USERNAME"`
	Password SecretString `envconfig:"MQTT_PASSWORD"`
	// Heartbeat is the system heartbeat publish interval. Zero disables.
	Heartbeat time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"15m"`
	// BufferSize caps the events held for replay while disconnected.
	BufferSize int `envconfig:"MQTT_BUFFER_SIZE" default:"256" validate:"min=0"`
}

// Enabled reports whether MQTT publishing is configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// InfluxConfig holds the time series recorder settings. An empty URL
// disables history recording.
type InfluxConfig struct {
	URL    string        `envconfig:"INFLUX_URL" validate:"omitempty,url"`
	Token  SecretString  `envconfig:"INFLUX_TOKEN"`
	Org    string        `envconfig:"INFLUX_ORG" default:"home"`
	Bucket string        `envconfig:"INFLUX_BUCKET" default:"gate"`
	Batch  uint          `envconfig:"INFLUX_BATCH_SIZE" default:"20"`
	Flush  time.Duration `envconfig:"INFLUX_FLUSH_INTERVAL" default:"5s"`
}

// Enabled reports whether history recording is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// HTTPConfig holds the status server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":80"`
}

// NetConfig holds the startup connectivity probe. An empty Probe skips the
// wait and starts monitoring immediately.
type NetConfig struct {
	// Probe is a host:port dialed until reachable before monitoring
	// starts, e.g. "api.pushover.net:443".
	Probe string `envconfig:"NET_PROBE" validate:"omitempty,hostname_port"`
	// DialTimeout bounds one probe attempt; MaxWait bounds the whole wait.
	DialTimeout time.Duration `envconfig:"NET_DIAL_TIMEOUT" default:"5s"`
	MaxWait     time.Duration `envconfig:"NET_MAX_WAIT" default:"2m"`
}

// policyOverride is the JSON shape of one POLICIES_JSON entry. Durations
// are Go duration strings ("5m", "1h30m").
type policyOverride struct {
	Notify        bool   `json:"notify"`
	RepeatEvery   string `json:"repeat_every"`
	Confirm       bool   `json:"confirm"`
	Message       string `json:"message"`
	RepeatMessage string `json:"repeat_message"`
}

// Signatures returns the classifier signature table: the built-in defaults,
// or the full replacement table from SIGNATURES_JSON.
func (c WindowConfig) Signatures() ([]logic.Signature, error) {
	if c.SignaturesJSON == "" {
		return logic.DefaultSignatures(), nil
	}

	var signatures []logic.Signature
	if err := json.Unmarshal([]byte(c.SignaturesJSON), &signatures); err != nil {
		return nil, fmt.Errorf("parse SIGNATURES_JSON: %w", err)
	}
	if len(signatures) == 0 {
		return nil, fmt.Errorf("SIGNATURES_JSON: empty signature table")
	}
	for i, sig := range signatures {
		if sig.State == "" || sig.State == logic.StateUnknown {
			return nil, fmt.Errorf("SIGNATURES_JSON: entry %d has invalid state %q", i, sig.State)
		}
		if sig.Illuminated.Min > sig.Illuminated.Max || sig.Edges.Min > sig.Edges.Max {
			return nil, fmt.Errorf("SIGNATURES_JSON: entry %d for %s has an inverted band", i, sig.State)
		}
	}
	return signatures, nil
}

// Policies returns the notification policy table: the built-in defaults
// with POLICIES_JSON entries replacing, per state, the whole default entry.
func (c WindowConfig) Policies() (logic.PolicyTable, error) {
	policies := logic.DefaultPolicies()
	if c.PoliciesJSON == "" {
		return policies, nil
	}

	var overrides map[logic.GateState]policyOverride
	if err := json.Unmarshal([]byte(c.PoliciesJSON), &overrides); err != nil {
		return nil, fmt.Errorf("parse POLICIES_JSON: %w", err)
	}
	for state, o := range overrides {
		if state == logic.StateUnknown {
			return nil, fmt.Errorf("POLICIES_JSON: UNKNOWN can not carry a policy")
		}
		var repeat time.Duration
		if o.RepeatEvery != "" {
			var err error
			repeat, err = time.ParseDuration(o.RepeatEvery)
			if err != nil {
				return nil, fmt.Errorf("POLICIES_JSON: %s repeat_every: %w", state, err)
			}
			if repeat < 0 {
				return nil, fmt.Errorf("POLICIES_JSON: %s repeat_every is negative", state)
			}
		}
		policies[state] = logic.Policy{
			Notify:        o.Notify,
			RepeatEvery:   repeat,
			Confirm:       o.Confirm,
			Message:       o.Message,
			RepeatMessage: o.RepeatMessage,
		}
	}
	return policies, nil
}

// WindowDuration returns the wall-clock span of one observation window.
func (c Config) WindowDuration() time.Duration {
	return time.Duration(c.Window.Samples) * c.Input.SamplePeriod
}
