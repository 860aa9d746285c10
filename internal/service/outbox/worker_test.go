package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/metrics"
	"github.com/vladislavdragonenkov/commandes/internal/storage/memory"
)

func clientCreated(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateClient,
		AggregateID:   "1",
		EventType:     domain.EventClientCreated,
		Payload:       []byte(`{"client_id":1}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{clientCreated("msg-1")}}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"msg-1"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{clientCreated("msg-2")}}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sentIDs)
	require.Equal(t, []string{"msg-2"}, repo.failedIDs)
	require.Equal(t, 1, dlqPublisher.calls())

	var envelope dlqEnvelope
	require.NoError(t, json.Unmarshal(dlqPublisher.last.Payload, &envelope))
	require.Equal(t, "msg-2", envelope.OutboxID)
	require.Equal(t, domain.EventClientCreated, envelope.EventType)
	require.Contains(t, envelope.PublishError, "publish failed")
	require.JSONEq(t, `{"client_id":1}`, string(envelope.Payload))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{clientCreated("msg-3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Len(t, repo.sentIDs, 1)
	require.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_DrainsMemoryOutbox(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Enqueue(ctx, clientCreated(id))
		require.NoError(t, err)
	}

	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithBatchSize(2), WithRetryBaseDelay(0))

	require.Equal(t, 2, worker.ProcessOnce(ctx))
	require.Equal(t, 1, worker.ProcessOnce(ctx))
	require.Zero(t, worker.ProcessOnce(ctx))
	require.Empty(t, repo.AllPending())
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	require.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	require.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))

	disabled := NewWorker(nil, nil, WithRetryBaseDelay(0))
	require.Zero(t, disabled.retryBackoff(5))
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&log.JSONFormatter{})

	publisher := NewLogPublisher(log.NewEntry(logger))
	require.NoError(t, publisher.Publish(context.Background(), clientCreated("msg-log")))
	require.Contains(t, buf.String(), `"outbox_id":"msg-log"`)
	require.Contains(t, buf.String(), domain.EventClientCreated)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, publisher.Publish(ctx, clientCreated("msg-late")), context.Canceled)
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(
		&stubOutboxRepo{},
		&stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	last           domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.last = event
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
