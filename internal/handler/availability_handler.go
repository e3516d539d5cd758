package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/service"
	"github.com/uniflow/facilitation-api/internal/timeslot"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
	"github.com/uniflow/facilitation-api/pkg/response"
)

type availabilityService interface {
	Check(ctx context.Context, facilitatorID string, date time.Time, start, end timeslot.TimeOfDay, excludeSessionID string) (*service.AvailabilityResult, error)
	AvailableFacilitators(ctx context.Context, sessionID string, actor models.ActingAs) ([]models.AvailableFacilitator, error)
}

// AvailabilityHandler answers availability queries.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Check godoc
// @Summary Check whether a facilitator is free for a time slot
// @Tags Availability
// @Produce json
// @Param id path string true "Facilitator ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start_time query string true "Start time (HH:MM)"
// @Param end_time query string true "End time (HH:MM)"
// @Param exclude_session_id query string false "Session to ignore while checking"
// @Success 200 {object} response.Envelope
// @Router /facilitators/{id}/availability [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	start, err := timeslot.Parse(c.Query("start_time"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid start_time, expected HH:MM"))
		return
	}
	end, err := timeslot.Parse(c.Query("end_time"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid end_time, expected HH:MM"))
		return
	}

	result, err := h.service.Check(c.Request.Context(), c.Param("id"), date, start, end, c.Query("exclude_session_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AvailableFacilitators godoc
// @Summary List a session's roster annotated with availability
// @Tags Availability
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/available-facilitators [get]
func (h *AvailabilityHandler) AvailableFacilitators(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.AvailableFacilitators(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
