package notifications

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChannel is a mock implementation of Channel
type MockChannel struct {
	mock.Mock
	name string
}

func (m *MockChannel) Name() string { return m.name }

func (m *MockChannel) Enabled(brand *models.Brand, msg *Message) bool {
	args := m.Called(brand, msg)
	return args.Bool(0)
}

func (m *MockChannel) Send(ctx context.Context, brand *models.Brand, msg *Message) error {
	args := m.Called(ctx, brand, msg)
	return args.Error(0)
}

// slowChannel blocks until its context is done
type slowChannel struct{}

func (slowChannel) Name() string { return "slow" }
func (slowChannel) Enabled(*models.Brand, *Message) bool { return true }
func (slowChannel) Send(ctx context.Context, _ *models.Brand, _ *Message) error {
	<-ctx.Done()
	return ctx.Err()
}

// countingChannel always fails and counts attempts
type countingChannel struct {
	calls atomic.Int32
}

func (c *countingChannel) Name() string { return "counting" }
func (c *countingChannel) Enabled(*models.Brand, *Message) bool { return true }
func (c *countingChannel) Send(context.Context, *models.Brand, *Message) error {
	c.calls.Add(1)
	return errors.New("webhook down")
}

func testBrand() models.Brand {
	return models.Brand{
		ID:       "acme",
		Name:     "Acme",
		Keywords: []models.Keyword{{ID: "k1", Text: "acme"}},
	}
}

func testMention() *models.Mention {
	return &models.Mention{
		ID:              "m-1",
		BrandID:         "acme",
		KeywordMatched:  "acme",
		ContentID:       "c1",
		Kind:            models.ContentKindComment,
		Content:         "acme rocks",
		Author:          "alice",
		SourceContainer: "golang",
		SourceURL:       "https://www.reddit.com/r/golang/comments/x/y/c1/",
		Sentiment:       &models.SentimentResult{Score: 2, Label: models.SentimentPositive},
		IsProcessed:     true,
	}
}

func TestDispatcher_FailingChannelDoesNotBlockOthers(t *testing.T) {
	failing := &MockChannel{name: "failing"}
	failing.On("Enabled", mock.Anything, mock.Anything).Return(true)
	failing.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))

	working := &MockChannel{name: "working"}
	working.On("Enabled", mock.Anything, mock.Anything).Return(true)
	working.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(brands.NewStaticProvider(testBrand()), []Channel{failing, working}, DispatcherOptions{})

	err := d.Notify(context.Background(), "acme", testMention())
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.Len(t, deliveryErr.Failures, 1)
	assert.EqualError(t, deliveryErr.Failures["failing"], "boom")
	assert.Equal(t, "m-1", deliveryErr.MentionID)

	working.AssertCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	failing.AssertExpectations(t)
	working.AssertExpectations(t)
}

func TestDispatcher_DisabledChannelsAreSkipped(t *testing.T) {
	disabled := &MockChannel{name: "disabled"}
	disabled.On("Enabled", mock.Anything, mock.Anything).Return(false)

	d := NewDispatcher(brands.NewStaticProvider(testBrand()), []Channel{disabled}, DispatcherOptions{})

	assert.NoError(t, d.Notify(context.Background(), "acme", testMention()))
	disabled.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_UnknownBrand(t *testing.T) {
	d := NewDispatcher(brands.NewStaticProvider(), nil, DispatcherOptions{})

	err := d.Notify(context.Background(), "missing", testMention())
	assert.ErrorIs(t, err, brands.ErrBrandNotFound)
}

func TestDispatcher_PerChannelTimeout(t *testing.T) {
	working := &MockChannel{name: "working"}
	working.On("Enabled", mock.Anything, mock.Anything).Return(true)
	working.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(brands.NewStaticProvider(testBrand()), []Channel{slowChannel{}, working}, DispatcherOptions{
		SendTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	err := d.Notify(context.Background(), "acme", testMention())
	assert.Less(t, time.Since(start), time.Second)

	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.ErrorIs(t, deliveryErr.Failures["slow"], context.DeadlineExceeded)
	assert.NotContains(t, deliveryErr.Failures, "working")
	working.AssertExpectations(t)
}

func TestDispatcher_CircuitBreakerOpensPerBrand(t *testing.T) {
	ch := &countingChannel{}
	other := testBrand()
	other.ID = "globex"
	d := NewDispatcher(brands.NewStaticProvider(testBrand(), other), []Channel{ch}, DispatcherOptions{
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	})

	for i := 0; i < 4; i++ {
		_ = d.Notify(context.Background(), "acme", testMention())
	}
	assert.Equal(t, int32(2), ch.calls.Load())

	err := d.Notify(context.Background(), "acme", testMention())
	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.ErrorIs(t, deliveryErr.Failures["counting"], gobreaker.ErrOpenState)

	// another brand has its own breaker
	_ = d.Notify(context.Background(), "globex", testMention())
	assert.Equal(t, int32(3), ch.calls.Load())
}

func TestDispatcher_FormatsWithClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	var captured *Message
	ch := &MockChannel{name: "capture"}
	ch.On("Enabled", mock.Anything, mock.Anything).Return(true)
	ch.On("Send", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(2).(*Message)
	}).Return(nil)

	d := NewDispatcher(brands.NewStaticProvider(testBrand()), []Channel{ch}, DispatcherOptions{Clock: clock})
	require.NoError(t, d.Notify(context.Background(), "acme", testMention()))

	require.NotNil(t, captured)
	assert.Equal(t, clock.Now(), captured.DetectedAt)
	assert.Equal(t, "Acme", captured.BrandName)
	assert.Equal(t, "😊", captured.Glyph)
}

func TestDeliveryError_Message(t *testing.T) {
	err := &DeliveryError{
		MentionID: "m-1",
		Failures: map[string]error{
			"teams": errors.New("status 500"),
			"email": errors.New("dial failed"),
		},
	}
	assert.Equal(t, "notification errors for mention m-1: email: dial failed; teams: status 500", err.Error())
}
