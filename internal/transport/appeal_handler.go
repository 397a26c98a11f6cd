package transport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

type AppealService interface {
	Create(ctx context.Context, actor model.Actor, reason string) (*model.CancellationAppeal, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.CancellationAppeal, error)
	Review(ctx context.Context, actor model.Actor, id int64, decision model.AppealStatus, notes string) (*model.CancellationAppeal, error)
}

type AppealHandler struct {
	appealService AppealService
	logger        *zap.Logger
}

func NewAppealHandler(appealService AppealService, logger *zap.Logger) *AppealHandler {
	return &AppealHandler{appealService: appealService, logger: logger}
}

type createAppealRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type reviewAppealRequest struct {
	Status     string `json:"status" binding:"required"`
	AdminNotes string `json:"adminNotes" binding:"max=2000"`
}

func (h *AppealHandler) CreateAppeal(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Invalid("body", err.Error()))
		return
	}

	appeal, err := h.appealService.Create(c.Request.Context(), actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, appeal)
}

func (h *AppealHandler) GetAppeal(c *gin.Context) {
	id, ok := h.appealID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	appeal, err := h.appealService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, appeal)
}

func (h *AppealHandler) ReviewAppeal(c *gin.Context) {
	id, ok := h.appealID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	var req reviewAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Invalid("body", err.Error()))
		return
	}

	appeal, err := h.appealService.Review(c.Request.Context(), actor, id, model.AppealStatus(req.Status), req.AdminNotes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, appeal)
}

func (h *AppealHandler) appealID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, h.logger, apperror.Invalid("id", "invalid appeal id"))
		return 0, false
	}
	return id, true
}
