package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type fakeReconciler struct {
	calls   atomic.Int32
	results []*model.RefundResult
	err     error
}

func (f *fakeReconciler) ReconcilePending(ctx context.Context, limit int) ([]*model.RefundResult, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func TestScheduler_SweepOnceCountsIssued(t *testing.T) {
	r := &fakeReconciler{results: []*model.RefundResult{
		{BookingID: 1, Issued: true},
		{BookingID: 2, Error: "gateway down"},
		{BookingID: 3, Issued: true},
	}}
	s := NewScheduler(r, time.Minute, 10, zap.NewNop())

	assert.Equal(t, 2, s.SweepOnce(context.Background()))
}

func TestScheduler_SweepOnceSurvivesErrors(t *testing.T) {
	r := &fakeReconciler{err: errors.New("db down")}
	s := NewScheduler(r, time.Minute, 10, zap.NewNop())

	assert.Zero(t, s.SweepOnce(context.Background()))
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	r := &fakeReconciler{}
	s := NewScheduler(r, time.Hour, 10, zap.NewNop())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestScheduler_Disabled(t *testing.T) {
	r := &fakeReconciler{}
	s := NewScheduler(r, 0, 10, zap.NewNop())

	s.Start(context.Background())
	s.Stop()

	assert.Zero(t, r.calls.Load())
}
