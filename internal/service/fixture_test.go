package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
	"github.com/Freeeeeet/tutor_booking/internal/policy"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Refund(ctx context.Context, paymentID, reason, idempotencyKey string) (*model.RefundReceipt, error) {
	args := m.Called(ctx, paymentID, reason, idempotencyKey)
	receipt, _ := args.Get(0).(*model.RefundReceipt)
	return receipt, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(e notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []notify.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Friday before the Monday all scenarios book on
var friday = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func monday(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	store    *memory.Store
	clock    *testClock
	gateway  *mockGateway
	events   *recordingPublisher
	params   policy.Params
	bookings *BookingService
	refunds  *RefundOrchestrator
	appeals  *AppealService

	student    model.Actor
	student2   model.Actor
	tutor      model.Actor
	otherTutor model.Actor
	admin      model.Actor
	tutorID    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{t: friday}
	store.SetClock(clock.Now)

	student := store.AddUser(&model.User{Role: model.RoleStudent, Email: "student@example.com"})
	student2 := store.AddUser(&model.User{Role: model.RoleStudent, Email: "student2@example.com"})
	tutorUser := store.AddUser(&model.User{Role: model.RoleTutor, Email: "tutor@example.com"})
	otherTutorUser := store.AddUser(&model.User{Role: model.RoleTutor, Email: "other@example.com"})
	admin := store.AddUser(&model.User{Role: model.RoleAdmin, Email: "admin@example.com"})

	tutor := store.AddTutor(tutorUser.ID, "Maria")
	store.AddTutor(otherTutorUser.ID, "Ivan")

	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		store.AddAvailability(&model.TutorAvailability{TutorID: tutor.ID, Weekday: day, StartMinute: 9 * 60, EndMinute: 17 * 60, IsActive: true})
	}
	store.AddAvailability(&model.TutorAvailability{TutorID: tutor.ID, Weekday: time.Monday, StartMinute: 18 * 60, EndMinute: 22 * 60, IsActive: true})

	gateway := &mockGateway{}
	events := &recordingPublisher{}
	params := policy.DefaultParams()
	logger := zap.NewNop()

	refunds := NewRefundOrchestrator(store, store.Bookings(), gateway, events, params.RefundClaimTTL, clock.Now, logger)

	return &fixture{
		store:      store,
		clock:      clock,
		gateway:    gateway,
		events:     events,
		params:     params,
		bookings:   NewBookingService(store, store.Bookings(), store.Tutors(), store.Users(), refunds, events, params, clock.Now, logger),
		refunds:    refunds,
		appeals:    NewAppealService(store, store.Appeals(), store.Users(), events, clock.Now, logger),
		student:    model.Actor{UserID: student.ID, Role: model.RoleStudent},
		student2:   model.Actor{UserID: student2.ID, Role: model.RoleStudent},
		tutor:      model.Actor{UserID: tutorUser.ID, Role: model.RoleTutor},
		otherTutor: model.Actor{UserID: otherTutorUser.ID, Role: model.RoleTutor},
		admin:      model.Actor{UserID: admin.ID, Role: model.RoleAdmin},
		tutorID:    tutor.ID,
	}
}

func (f *fixture) book(t *testing.T, actor model.Actor, at time.Time, duration int, paymentID string) *model.Booking {
	t.Helper()

	in := CreateBookingInput{
		TutorID:     f.tutorID,
		ScheduledAt: at,
		Duration:    duration,
		Price:       decimal.RequireFromString("40.00"),
	}
	if paymentID != "" {
		in.PaymentID = &paymentID
	}

	b, err := f.bookings.Create(context.Background(), actor, in)
	require.NoError(t, err)
	return b
}

func (f *fixture) reload(t *testing.T, id int64) *model.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func (f *fixture) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

// pastLateCancellation stores a late cancellation made by the student in the past
func (f *fixture) pastLateCancellation(studentID int64, at time.Time) {
	by := studentID
	cancelledAt := at.Add(-time.Hour)
	f.store.PutBooking(&model.Booking{
		StudentID:          studentID,
		TutorID:            f.tutorID,
		ScheduledAt:        at,
		Duration:           60,
		Status:             model.BookingStatusCancelled,
		Price:              decimal.NewFromInt(40),
		CancelledAt:        &cancelledAt,
		CancelledBy:        &by,
		IsLateCancellation: true,
	})
}

func receipt(ref string) *model.RefundReceipt {
	return &model.RefundReceipt{Reference: ref, Amount: decimal.RequireFromString("40.00")}
}
