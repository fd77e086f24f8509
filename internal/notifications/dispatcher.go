package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// DispatcherOptions tunes delivery. Zero values fall back to defaults.
type DispatcherOptions struct {
	SendTimeout     time.Duration
	ExcerptLength   int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Clock           clockwork.Clock
}

// DeliveryError lists the channels that failed for one mention. Channels not
// listed were either delivered or skipped.
type DeliveryError struct {
	MentionID string
	Failures  map[string]error
}

func (e *DeliveryError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("notification errors for mention %s: %s", e.MentionID, strings.Join(parts, "; "))
}

// Unwrap exposes the per-channel errors to errors.Is and errors.As
func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// Dispatcher fans a mention out to every enabled channel
type Dispatcher struct {
	brands   brands.Provider
	channels []Channel
	opts     DispatcherOptions

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// Ensure Dispatcher implements Notifier
var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over channels
func NewDispatcher(provider brands.Provider, channels []Channel, opts DispatcherOptions) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = DefaultExcerptLength
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 60 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Dispatcher{
		brands:   provider,
		channels: channels,
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Notify delivers mention on every enabled channel concurrently. A failing
// channel never prevents delivery on the others; all failures are returned
// together as a *DeliveryError.
func (d *Dispatcher) Notify(ctx context.Context, brandID string, mention *models.Mention) error {
	brand, err := d.brands.GetBrand(ctx, brandID)
	if err != nil {
		return fmt.Errorf("failed to load brand %s: %w", brandID, err)
	}

	msg := FormatMention(brand, mention, d.opts.Clock.Now(), d.opts.ExcerptLength)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[string]error)
	)

	for _, ch := range d.channels {
		if !ch.Enabled(brand, msg) {
			notificationsTotal.WithLabelValues(ch.Name(), "skipped").Inc()
			continue
		}

		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			if err := d.send(ctx, ch, brand, msg); err != nil {
				logrus.WithFields(logrus.Fields{
					"channel":    ch.Name(),
					"brand_id":   brand.ID,
					"mention_id": mention.ID,
				}).Errorf("Failed to deliver notification: %v", err)

				mu.Lock()
				failures[ch.Name()] = err
				mu.Unlock()
				return
			}

			logrus.WithFields(logrus.Fields{
				"channel":    ch.Name(),
				"brand_id":   brand.ID,
				"mention_id": mention.ID,
			}).Info("Notification delivered")
		}(ch)
	}
	wg.Wait()

	if len(failures) > 0 {
		return &DeliveryError{MentionID: mention.ID, Failures: failures}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, brand *models.Brand, msg *Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	cb := d.breaker(ch.Name(), brand.ID)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, ch.Send(sendCtx, brand, msg)
	})

	switch {
	case err == nil:
		notificationsTotal.WithLabelValues(ch.Name(), "sent").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		notificationsTotal.WithLabelValues(ch.Name(), "circuit_open").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		notificationsTotal.WithLabelValues(ch.Name(), "timeout").Inc()
		err = fmt.Errorf("%s send timed out after %s: %w", ch.Name(), d.opts.SendTimeout, err)
	default:
		notificationsTotal.WithLabelValues(ch.Name(), "failed").Inc()
	}
	return err
}

// breaker returns the circuit breaker for one channel of one brand, so a
// broken webhook only stops that brand's deliveries.
func (d *Dispatcher) breaker(channel, brandID string) *gobreaker.CircuitBreaker {
	key := channel + "/" + brandID

	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[key]; ok {
		return cb
	}

	threshold := d.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     d.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.Warnf("Notification circuit breaker '%s' state changed from %v to %v", name, from, to)
		},
	})
	d.breakers[key] = cb
	return cb
}
