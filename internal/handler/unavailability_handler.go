package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/service"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
	"github.com/uniflow/facilitation-api/pkg/response"
)

type unavailabilityService interface {
	Create(ctx context.Context, actor models.ActingAs, req dto.CreateUnavailabilityRequest) (*service.UnavailabilityCreateResult, error)
	Update(ctx context.Context, actor models.ActingAs, id string, req dto.UpdateUnavailabilityRequest) (*models.Unavailability, error)
	Delete(ctx context.Context, actor models.ActingAs, id string) error
	ClearAll(ctx context.Context, actor models.ActingAs, targetUserID string) (int, error)
	List(ctx context.Context, actor models.ActingAs, targetUserID string, query dto.UnavailabilityQuery) ([]models.Unavailability, error)
	ListUnitRoster(ctx context.Context, actor models.ActingAs, unitID string, query dto.UnavailabilityQuery) ([]models.Unavailability, error)
	GenerateRecurring(ctx context.Context, actor models.ActingAs, req dto.GenerateRecurringRequest) (*models.RecurringGenerationResult, error)
}

// UnavailabilityHandler exposes REST endpoints for unavailability management.
type UnavailabilityHandler struct {
	service unavailabilityService
}

// NewUnavailabilityHandler constructs the handler.
func NewUnavailabilityHandler(service unavailabilityService) *UnavailabilityHandler {
	return &UnavailabilityHandler{service: service}
}

// Create godoc
// @Summary Declare unavailability for a facilitator
// @Tags Unavailability
// @Accept json
// @Produce json
// @Param id path string true "Facilitator ID"
// @Param payload body dto.CreateUnavailabilityRequest true "Unavailability payload"
// @Success 201 {object} response.Envelope
// @Router /facilitators/{id}/unavailability [post]
func (h *UnavailabilityHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid unavailability payload"))
		return
	}
	req.UserID = c.Param("id")
	result, err := h.service.Create(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// List godoc
// @Summary List a facilitator's unavailability
// @Tags Unavailability
// @Produce json
// @Param id path string true "Facilitator ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param include_system query bool false "Include system-generated records"
// @Success 200 {object} response.Envelope
// @Router /facilitators/{id}/unavailability [get]
func (h *UnavailabilityHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseUnavailabilityQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.service.List(c.Request.Context(), claims.Actor(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ClearAll godoc
// @Summary Remove every manual unavailability record for a facilitator
// @Tags Unavailability
// @Produce json
// @Param id path string true "Facilitator ID"
// @Success 200 {object} response.Envelope
// @Router /facilitators/{id}/unavailability [delete]
func (h *UnavailabilityHandler) ClearAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	removed, err := h.service.ClearAll(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}

// GenerateRecurring godoc
// @Summary Expand a recurring unavailability rule into concrete records
// @Tags Unavailability
// @Accept json
// @Produce json
// @Param id path string true "Facilitator ID"
// @Param payload body dto.GenerateRecurringRequest true "Recurring rule"
// @Success 201 {object} response.Envelope
// @Router /facilitators/{id}/unavailability/recurring [post]
func (h *UnavailabilityHandler) GenerateRecurring(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid recurring payload"))
		return
	}
	req.UserID = c.Param("id")
	result, err := h.service.GenerateRecurring(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Update godoc
// @Summary Update an unavailability record
// @Tags Unavailability
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.UpdateUnavailabilityRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /unavailability/{id} [put]
func (h *UnavailabilityHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid unavailability payload"))
		return
	}
	record, err := h.service.Update(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an unavailability record
// @Tags Unavailability
// @Produce json
// @Param id path string true "Record ID"
// @Success 204
// @Router /unavailability/{id} [delete]
func (h *UnavailabilityHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.Actor(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListUnit godoc
// @Summary List unavailability across a unit's roster
// @Tags Unavailability
// @Produce json
// @Param id path string true "Unit ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/unavailability [get]
func (h *UnavailabilityHandler) ListUnit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseUnavailabilityQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.service.ListUnitRoster(c.Request.Context(), claims.Actor(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

func parseUnavailabilityQuery(c *gin.Context) (dto.UnavailabilityQuery, error) {
	var query dto.UnavailabilityQuery
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
		}
		query.From = &parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
		}
		query.To = &parsed
	}
	if raw := c.Query("include_system"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "invalid include_system flag")
		}
		query.IncludeSystem = include
	}
	return query, nil
}
