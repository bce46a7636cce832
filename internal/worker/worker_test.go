package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) ApplyCallback(ctx context.Context, cb *models.GatewayCallback) (*models.Payment, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func newTestWorker(applier CallbackApplier) *CallbackWorker {
	return &CallbackWorker{
		reconciler: applier,
		attempts:   3,
		backoff:    time.Millisecond,
		logger:     util.GetLogger(),
	}
}

func TestCallbackWorkerApplies(t *testing.T) {
	applier := &mockApplier{}
	cb := &models.GatewayCallback{OrderID: "ORDER_1"}
	applier.On("ApplyCallback", mock.Anything, cb).Return(&models.Payment{OrderID: "ORDER_1", Status: models.PaymentStatusCompleted}, nil).Once()

	require.NoError(t, newTestWorker(applier).apply(context.Background(), cb))
	applier.AssertExpectations(t)
}

func TestCallbackWorkerAcknowledgesRejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad signature", apperr.New(apperr.KindSecurity, apperr.CodeInvalidSignature, "invalid signature")},
		{"unknown order", apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &mockApplier{}
			applier.On("ApplyCallback", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			assert.NoError(t, newTestWorker(applier).apply(context.Background(), &models.GatewayCallback{OrderID: "ORDER_X"}))
			applier.AssertNumberOfCalls(t, "ApplyCallback", 1)
		})
	}
}

func TestCallbackWorkerRetriesInternalErrors(t *testing.T) {
	applier := &mockApplier{}
	boom := apperr.Internal(errors.New("connection reset"), "failed to settle payment")
	applier.On("ApplyCallback", mock.Anything, mock.Anything).Return(nil, boom).Twice()
	applier.On("ApplyCallback", mock.Anything, mock.Anything).Return(&models.Payment{Status: models.PaymentStatusFailed}, nil).Once()

	require.NoError(t, newTestWorker(applier).apply(context.Background(), &models.GatewayCallback{OrderID: "ORDER_2"}))
	applier.AssertNumberOfCalls(t, "ApplyCallback", 3)
}

func TestCallbackWorkerGivesUpAfterAttempts(t *testing.T) {
	applier := &mockApplier{}
	boom := apperr.Internal(errors.New("connection reset"), "failed to settle payment")
	applier.On("ApplyCallback", mock.Anything, mock.Anything).Return(nil, boom)

	err := newTestWorker(applier).apply(context.Background(), &models.GatewayCallback{OrderID: "ORDER_3"})
	assert.ErrorIs(t, err, boom)
	applier.AssertNumberOfCalls(t, "ApplyCallback", 3)
}

type countingSweeper struct {
	mu    sync.Mutex
	runs  int
	err   error
	block chan struct{}
}

func (s *countingSweeper) Sweep(ctx context.Context) (int64, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return 0, s.err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

type fakeExpirer struct {
	ttls []time.Duration
}

func (e *fakeExpirer) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	e.ttls = append(e.ttls, ttl)
	return 0, nil
}

// fakeLocker is a single-process Locker that tracks the owner token
type fakeLocker struct {
	mu       sync.Mutex
	owner    string
	next     int
	released []string
	err      error
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if l.owner != "" {
		return "", false, nil
	}
	l.next++
	l.owner = fmt.Sprintf("%s-%d", key, l.next)
	return l.owner, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token == l.owner {
		l.owner = ""
	}
	l.released = append(l.released, token)
	return nil
}

func TestRunOnceSweepsAndExpires(t *testing.T) {
	sweeper := &countingSweeper{}
	expirer := &fakeExpirer{}
	locker := &fakeLocker{}
	s := NewReclamationScheduler(sweeper, expirer, locker, SchedulerConfig{IntentTTL: 15 * time.Minute})

	s.RunOnce()

	assert.Equal(t, 1, sweeper.count())
	assert.Equal(t, []time.Duration{15 * time.Minute}, expirer.ttls)
	assert.Len(t, locker.released, 1)
	assert.Empty(t, locker.owner)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	sweeper := &countingSweeper{}
	locker := &fakeLocker{owner: "other-replica"}
	s := NewReclamationScheduler(sweeper, nil, locker, SchedulerConfig{})

	s.RunOnce()

	assert.Zero(t, sweeper.count())
	assert.Empty(t, locker.released)
	assert.Equal(t, "other-replica", locker.owner)
}

func TestRunOnceSkipsWhenLockUnavailable(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewReclamationScheduler(sweeper, nil, &fakeLocker{err: errors.New("redis down")}, SchedulerConfig{})

	s.RunOnce()
	assert.Zero(t, sweeper.count())
}

func TestRunOnceExpiresEvenWhenSweepFails(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("boom")}
	expirer := &fakeExpirer{}
	s := NewReclamationScheduler(sweeper, expirer, nil, SchedulerConfig{IntentTTL: time.Minute})

	s.RunOnce()
	assert.Equal(t, 1, sweeper.count())
	assert.Len(t, expirer.ttls, 1)
}

func TestSingleReplicaRunsConcurrentTick(t *testing.T) {
	sweeper := &countingSweeper{block: make(chan struct{})}
	locker := &fakeLocker{}
	a := NewReclamationScheduler(sweeper, nil, locker, SchedulerConfig{})
	b := NewReclamationScheduler(sweeper, nil, locker, SchedulerConfig{})

	done := make(chan struct{})
	go func() {
		a.RunOnce()
		close(done)
	}()
	require.Eventually(t, func() bool { return sweeper.count() == 1 }, time.Second, time.Millisecond)

	b.RunOnce()
	close(sweeper.block)
	<-done

	assert.Equal(t, 1, sweeper.count())
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewReclamationScheduler(&countingSweeper{}, nil, nil, SchedulerConfig{Spec: "not a cron spec"})
	require.Error(t, s.Start(context.Background()))

	s = NewReclamationScheduler(&countingSweeper{}, nil, nil, SchedulerConfig{Spec: "*/1 * * * * *"})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
