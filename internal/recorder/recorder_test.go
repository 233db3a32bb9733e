package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// memorySink collects appended records. When gate is set, Append blocks
// until the gate is closed.
type memorySink struct {
	mu      sync.Mutex
	records []*domain.DecisionRecord
	gate    chan struct{}
	failIDs map[string]bool
}

func (s *memorySink) Append(ctx context.Context, rec *domain.DecisionRecord) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failIDs[rec.ID] {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Ping(ctx context.Context) error { return nil }
func (s *memorySink) Close() error                   { return nil }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func record(i int) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		ID:        fmt.Sprintf("rec-%d", i),
		CreatedAt: time.Now(),
		Decision:  domain.DecisionLegitimate,
	}
}

func TestRecorder(t *testing.T) {
	t.Run("StopDeliversEverything", func(t *testing.T) {
		sink := &memorySink{}
		r := New(sink, 100)
		r.Start()

		for i := 0; i < 50; i++ {
			require.True(t, r.Record(record(i)))
		}
		require.NoError(t, r.Stop(context.Background()))

		assert.Equal(t, 50, sink.count())
		appended, failed, dropped := r.Stats()
		assert.Equal(t, int64(50), appended)
		assert.Zero(t, failed)
		assert.Zero(t, dropped)

		// Order is preserved by the single drain goroutine.
		for i, rec := range sink.records {
			assert.Equal(t, fmt.Sprintf("rec-%d", i), rec.ID)
		}
	})

	t.Run("DropsWhenFull", func(t *testing.T) {
		sink := &memorySink{gate: make(chan struct{})}
		r := New(sink, 2)
		r.Start()

		// The drain goroutine may hold one record while blocked on the gate.
		accepted := 0
		for i := 0; i < 10; i++ {
			if r.Record(record(i)) {
				accepted++
			}
		}
		assert.LessOrEqual(t, accepted, 3)
		assert.GreaterOrEqual(t, accepted, 2)

		close(sink.gate)
		require.NoError(t, r.Stop(context.Background()))

		appended, _, dropped := r.Stats()
		assert.Equal(t, int64(accepted), appended)
		assert.Equal(t, int64(10-accepted), dropped)
	})

	t.Run("RecordAfterStop", func(t *testing.T) {
		r := New(&memorySink{}, 4)
		r.Start()
		require.NoError(t, r.Stop(context.Background()))

		assert.False(t, r.Record(record(1)))
		require.NoError(t, r.Stop(context.Background()), "second Stop is a no-op")
	})

	t.Run("SinkFailuresAreCounted", func(t *testing.T) {
		sink := &memorySink{failIDs: map[string]bool{"rec-1": true}}
		r := New(sink, 4)
		r.Start()

		r.Record(record(0))
		r.Record(record(1))
		r.Record(record(2))
		require.NoError(t, r.Stop(context.Background()))

		appended, failed, _ := r.Stats()
		assert.Equal(t, int64(2), appended)
		assert.Equal(t, int64(1), failed)
	})

	t.Run("StopHonoursContext", func(t *testing.T) {
		sink := &memorySink{gate: make(chan struct{})}
		defer close(sink.gate)

		r := New(sink, 4)
		r.Start()
		r.Record(record(0))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := r.Stop(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("ConcurrentRecord", func(t *testing.T) {
		sink := &memorySink{}
		r := New(sink, 1000)
		r.Start()

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					r.Record(record(g*100 + i))
				}
			}(g)
		}
		wg.Wait()
		require.NoError(t, r.Stop(context.Background()))

		assert.Equal(t, 400, sink.count())
	})
}
