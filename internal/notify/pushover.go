package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// userAgent identifies the daemon to the Pushover API.
const userAgent = "gatewatch"

// PushoverOptions configures the Pushover sender.
type PushoverOptions struct {
	// URL is the messages endpoint.
	URL string
	// Token and User are the application token and user key.
	Token string
	User  string
	// Sound names the Pushover notification sound.
	Sound string
	// Timeout bounds one delivery attempt.
	Timeout time.Duration
	// BreakerFailures is the consecutive-failure count that opens the
	// breaker; BreakerCooldown is how long it stays open before a probe.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Pushover sends notifications through the Pushover message API. A circuit
// breaker guards the endpoint so a dead or misconfigured API cannot keep
// the dispatcher busy with doomed attempts.
type Pushover struct {
	opts   PushoverOptions
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewPushover creates a Pushover sender. Returns nil when the credentials
// are absent, disabling delivery.
func NewPushover(opts PushoverOptions) *Pushover {
	if opts.Token == "" || opts.User == "" {
		return nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = time.Minute
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pushover",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
	})

	return &Pushover{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		cb:     cb,
	}
}

// Send implements Notifier.
func (p *Pushover) Send(ctx context.Context, title, text string) error {
	if p == nil {
		return nil
	}
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.post(ctx, title, text)
	})
	return err
}

func (p *Pushover) post(ctx context.Context, title, text string) error {
	form := url.Values{}
	form.Set("token", p.opts.Token)
	form.Set("user", p.opts.User)
	form.Set("message", text)
	if title != "" {
		form.Set("title", title)
	}
	if p.opts.Sound != "" {
		form.Set("sound", p.opts.Sound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("pushover status %d", resp.StatusCode)
	}
	return nil
}
