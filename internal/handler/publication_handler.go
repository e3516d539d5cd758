package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniflow/facilitation-api/internal/dto"
	"github.com/uniflow/facilitation-api/internal/models"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
	"github.com/uniflow/facilitation-api/pkg/response"
)

type publicationService interface {
	ListSchedule(ctx context.Context, actor models.ActingAs, unitID string) ([]models.SessionDetail, error)
	Publish(ctx context.Context, actor models.ActingAs, unitID string, req dto.PublishScheduleRequest) (*models.PublishResult, error)
	Unpublish(ctx context.Context, actor models.ActingAs, unitID string) (*models.UnpublishResult, error)
	ReplaceAssignments(ctx context.Context, actor models.ActingAs, unitID string, req dto.ReplaceAssignmentsRequest) (int, error)
	OpenReport(token string) (string, error)
}

// PublicationHandler exposes schedule publication endpoints.
type PublicationHandler struct {
	service publicationService
}

// NewPublicationHandler constructs the handler.
func NewPublicationHandler(service publicationService) *PublicationHandler {
	return &PublicationHandler{service: service}
}

// ListSchedule godoc
// @Summary List a unit's sessions with assignments
// @Tags Publication
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/sessions [get]
func (h *PublicationHandler) ListSchedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sessions, err := h.service.ListSchedule(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Publish godoc
// @Summary Publish a unit's schedule
// @Tags Publication
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body dto.PublishScheduleRequest false "Publish options"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/schedule/publish [post]
func (h *PublicationHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.PublishScheduleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid publish payload"))
			return
		}
	}
	result, err := h.service.Publish(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Unpublish godoc
// @Summary Revert a unit's schedule to draft
// @Tags Publication
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/schedule/unpublish [post]
func (h *PublicationHandler) Unpublish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Unpublish(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReplaceAssignments godoc
// @Summary Replace a draft unit's assignments with a proposed roster
// @Tags Publication
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body dto.ReplaceAssignmentsRequest true "Assignment proposals"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/assignments [put]
func (h *PublicationHandler) ReplaceAssignments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReplaceAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignments payload"))
		return
	}
	installed, err := h.service.ReplaceAssignments(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"installed": installed}, nil)
}

// DownloadReport godoc
// @Summary Download a published schedule report by signed token
// @Tags Publication
// @Produce application/pdf
// @Param token path string true "Signed report token"
// @Success 200
// @Router /schedule-reports/{token} [get]
func (h *PublicationHandler) DownloadReport(c *gin.Context) {
	path, err := h.service.OpenReport(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}
