package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/gateway"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/policy"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var friday = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type api struct {
	router  *gin.Engine
	store   *memory.Store
	auth    *middleware.Authenticator
	student model.Actor
	other   model.Actor
	tutor   model.Actor
	admin   model.Actor
	tutorID int64
}

func newAPI(t *testing.T, health HealthCheck) *api {
	t.Helper()

	store := memory.NewStore()
	now := func() time.Time { return friday }
	store.SetClock(now)

	student := store.AddUser(&model.User{Role: model.RoleStudent, Email: "student@example.com"})
	other := store.AddUser(&model.User{Role: model.RoleStudent, Email: "other@example.com"})
	tutorUser := store.AddUser(&model.User{Role: model.RoleTutor, Email: "tutor@example.com"})
	admin := store.AddUser(&model.User{Role: model.RoleAdmin, Email: "admin@example.com"})
	tutor := store.AddTutor(tutorUser.ID, "Maria")
	store.AddAvailability(&model.TutorAvailability{TutorID: tutor.ID, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60, IsActive: true})

	logger := zap.NewNop()
	params := policy.DefaultParams()
	refunds := service.NewRefundOrchestrator(store, store.Bookings(), gateway.NewSandbox(logger), nil, params.RefundClaimTTL, now, logger)
	bookings := service.NewBookingService(store, store.Bookings(), store.Tutors(), store.Users(), refunds, nil, params, now, logger)
	appeals := service.NewAppealService(store, store.Appeals(), store.Users(), nil, now, logger)

	auth := middleware.NewAuthenticator("secret")
	router := InitRoutes(
		RouterConfig{RequestTimeout: 5 * time.Second, Health: health},
		NewBookingHandler(bookings, logger),
		NewAppealHandler(appeals, logger),
		auth,
		nil,
		logger,
	)

	return &api{
		router:  router,
		store:   store,
		auth:    auth,
		student: model.Actor{UserID: student.ID, Role: model.RoleStudent},
		other:   model.Actor{UserID: other.ID, Role: model.RoleStudent},
		tutor:   model.Actor{UserID: tutorUser.ID, Role: model.RoleTutor},
		admin:   model.Actor{UserID: admin.ID, Role: model.RoleAdmin},
		tutorID: tutor.ID,
	}
}

func (a *api) do(t *testing.T, actor *model.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		token, err := a.auth.Issue(*actor, time.Hour, time.Now())
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *api) createBooking(t *testing.T, at string, paymentID string) int64 {
	t.Helper()

	body := `{"tutorId":` + strconv.FormatInt(a.tutorID, 10) + `,"scheduledAt":"` + at + `","duration":60,"price":"40.00"`
	if paymentID != "" {
		body += `,"paymentId":"` + paymentID + `"`
	}
	body += `}`

	w := a.do(t, &a.student, http.MethodPost, "/bookings", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var b model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b.ID
}

func bookingPath(id int64) string {
	return "/bookings/" + strconv.FormatInt(id, 10)
}

func decodeBooking(t *testing.T, w *httptest.ResponseRecorder) model.Booking {
	t.Helper()
	var b model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestRoutes_RequireToken(t *testing.T) {
	a := newAPI(t, nil)

	w := a.do(t, nil, http.MethodGet, "/bookings/1", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_Health(t *testing.T) {
	a := newAPI(t, nil)
	w := a.do(t, nil, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := newAPI(t, func(context.Context) error { return errors.New("db down") })
	w = down.do(t, nil, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBookingRoutes_CreateAndGet(t *testing.T) {
	a := newAPI(t, nil)
	id := a.createBooking(t, "2024-03-04T10:00:00Z", "")

	w := a.do(t, &a.tutor, http.MethodGet, bookingPath(id), "")
	require.Equal(t, http.StatusOK, w.Code)
	b := decodeBooking(t, w)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, "40.00", b.Price.StringFixed(2))

	w = a.do(t, &a.other, http.MethodGet, bookingPath(id), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Code)

	w = a.do(t, &a.admin, http.MethodGet, "/bookings/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, &a.admin, http.MethodGet, "/bookings/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingRoutes_CreateErrors(t *testing.T) {
	a := newAPI(t, nil)
	a.createBooking(t, "2024-03-04T10:00:00Z", "")
	tutorID := strconv.FormatInt(a.tutorID, 10)

	tests := []struct {
		name   string
		actor  model.Actor
		body   string
		status int
		code   string
	}{
		{"malformed body", a.student, `{"tutorId":`, http.StatusBadRequest, "VALIDATION"},
		{"tutor cannot book", a.tutor, `{"tutorId":` + tutorID + `,"scheduledAt":"2024-03-04T14:00:00Z","duration":60,"price":"40"}`, http.StatusForbidden, "FORBIDDEN"},
		{"too soon", a.student, `{"tutorId":` + tutorID + `,"scheduledAt":"2024-03-01T12:00:00Z","duration":60,"price":"40"}`, http.StatusBadRequest, "INVALID_TIME"},
		{"outside availability", a.student, `{"tutorId":` + tutorID + `,"scheduledAt":"2024-03-04T18:00:00Z","duration":60,"price":"40"}`, http.StatusBadRequest, "NOT_AVAILABLE"},
		{"overlap", a.other, `{"tutorId":` + tutorID + `,"scheduledAt":"2024-03-04T10:30:00Z","duration":60,"price":"40"}`, http.StatusConflict, "CONFLICT"},
		{"unknown tutor", a.student, `{"tutorId":999,"scheduledAt":"2024-03-04T14:00:00Z","duration":60,"price":"40"}`, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			w := a.do(t, &actor, http.MethodPost, "/bookings", tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestBookingRoutes_Patch(t *testing.T) {
	a := newAPI(t, nil)
	id := a.createBooking(t, "2024-03-04T10:00:00Z", "")

	w := a.do(t, &a.tutor, http.MethodPatch, bookingPath(id), `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, &a.tutor, http.MethodPatch, bookingPath(id), `{"status":"CONFIRMED","scheduledAt":"2024-03-04T12:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, &a.tutor, http.MethodPatch, bookingPath(id), `{"status":"CONFIRMED"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.BookingStatusConfirmed, decodeBooking(t, w).Status)

	w = a.do(t, &a.student, http.MethodPatch, bookingPath(id), `{"scheduledAt":"2024-03-04T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := decodeBooking(t, w)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.True(t, b.ScheduledAt.Equal(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)))

	w = a.do(t, &a.tutor, http.MethodPatch, bookingPath(id), `{"status":"REFUNDED"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, w).Code)
}

func TestBookingRoutes_DeleteCancels(t *testing.T) {
	a := newAPI(t, nil)
	id := a.createBooking(t, "2024-03-04T10:00:00Z", "")

	w := a.do(t, &a.student, http.MethodDelete, bookingPath(id), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := decodeBooking(t, w)
	assert.Equal(t, model.BookingStatusCancelled, b.Status)
	require.NotNil(t, b.CancelledBy)
	assert.Equal(t, a.student.UserID, *b.CancelledBy)
	assert.False(t, b.IsLateCancellation)

	w = a.do(t, &a.student, http.MethodDelete, bookingPath(id), `{"reason":"again"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, w).Code)
}

func TestBookingRoutes_TutorCancelRefundsPaidBooking(t *testing.T) {
	a := newAPI(t, nil)
	id := a.createBooking(t, "2024-03-04T10:00:00Z", "pay_1")

	w := a.do(t, &a.tutor, http.MethodPatch, bookingPath(id), `{"status":"CANCELLED"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	b := decodeBooking(t, w)
	assert.Equal(t, model.BookingStatusRefunded, b.Status)
	require.NotNil(t, b.RefundReference)
	assert.True(t, strings.HasPrefix(*b.RefundReference, "rf_sandbox_"))

	w = a.do(t, &a.admin, http.MethodPost, bookingPath(id)+"/refund", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, &a.student, http.MethodPost, bookingPath(id)+"/refund", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAppealRoutes(t *testing.T) {
	a := newAPI(t, nil)
	until := friday.Add(72 * time.Hour)
	penalized := a.store.AddUser(&model.User{Role: model.RoleStudent, Email: "late@example.com", PenaltyUntil: &until})
	student := model.Actor{UserID: penalized.ID, Role: model.RoleStudent}

	w := a.do(t, &a.student, http.MethodPost, "/appeals", `{"reason":"no penalty here"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, &student, http.MethodPost, "/appeals", `{"reason":"I was ill"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var appeal model.CancellationAppeal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appeal))
	assert.Equal(t, model.AppealStatusPending, appeal.Status)
	path := "/appeals/" + strconv.FormatInt(appeal.ID, 10)

	w = a.do(t, &a.other, http.MethodGet, path, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, &student, http.MethodPatch, path, `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, &a.admin, http.MethodPatch, path, `{"status":"MAYBE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, &a.admin, http.MethodPatch, path, `{"status":"APPROVED","adminNotes":"doctor's note"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appeal))
	assert.Equal(t, model.AppealStatusApproved, appeal.Status)
	assert.Equal(t, "doctor's note", appeal.AdminNotes)

	w = a.do(t, &a.admin, http.MethodPatch, path, `{"status":"REJECTED"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_REVIEWED", decodeError(t, w).Code)

	w = a.do(t, &student, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appeal))
	assert.Equal(t, model.AppealStatusApproved, appeal.Status)
}
