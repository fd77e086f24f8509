package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	comments atomic.Int32
	posts    atomic.Int32
	deadline atomic.Bool
}

func (r *countingRunner) RunComments(ctx context.Context) (*monitoring.RunSummary, error) {
	if _, ok := ctx.Deadline(); ok {
		r.deadline.Store(true)
	}
	r.comments.Add(1)
	return &monitoring.RunSummary{}, nil
}

func (r *countingRunner) RunPosts(ctx context.Context) (*monitoring.RunSummary, error) {
	r.posts.Add(1)
	return nil, monitoring.ErrRunInProgress
}

func TestService_RegistersJobs(t *testing.T) {
	tests := []struct {
		name       string
		postSearch bool
		expected   int
	}{
		{name: "Comments only", postSearch: false, expected: 1},
		{name: "Comments and posts", postSearch: true, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				PollInterval:       time.Hour,
				PostSearchInterval: time.Hour,
				EnablePostSearch:   tt.postSearch,
				RunBudget:          time.Minute,
			}
			s := NewService(cfg, &countingRunner{})
			require.NoError(t, s.Start())
			defer s.Stop()

			assert.Equal(t, tt.expected, s.Entries())
		})
	}
}

func TestService_RunsJobsOnInterval(t *testing.T) {
	cfg := &config.Config{
		PollInterval:       time.Second,
		PostSearchInterval: time.Second,
		EnablePostSearch:   true,
		RunBudget:          time.Minute,
	}
	runner := &countingRunner{}
	s := NewService(cfg, runner)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runner.comments.Load() > 0 && runner.posts.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, runner.deadline.Load())
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 5m0s", every(5*time.Minute))
}
