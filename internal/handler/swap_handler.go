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

type swapService interface {
	Create(ctx context.Context, actor models.ActingAs, req dto.CreateSwapRequest) (*models.SwapRequestDetail, error)
	CreateExchange(ctx context.Context, actor models.ActingAs, req dto.CreateExchangeSwapRequest) (*models.SwapRequestDetail, error)
	FacilitatorRespond(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error)
	CoordinatorRespond(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error)
	ResolvePending(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error)
	ListMine(ctx context.Context, actor models.ActingAs, query dto.SwapQuery) ([]models.SwapRequestDetail, error)
	ListUnit(ctx context.Context, actor models.ActingAs, unitID string, query dto.SwapQuery) ([]models.SwapRequestDetail, error)
	Get(ctx context.Context, actor models.ActingAs, swapID string) (*models.SwapRequestDetail, error)
}

// SwapHandler exposes the swap request endpoints.
type SwapHandler struct {
	service swapService
}

// NewSwapHandler constructs the handler.
func NewSwapHandler(service swapService) *SwapHandler {
	return &SwapHandler{service: service}
}

// Create godoc
// @Summary Request a direct transfer of an assignment
// @Tags Swaps
// @Accept json
// @Produce json
// @Param payload body dto.CreateSwapRequest true "Transfer payload"
// @Success 201 {object} response.Envelope
// @Router /swaps [post]
func (h *SwapHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid swap payload"))
		return
	}
	detail, err := h.service.Create(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// CreateExchange godoc
// @Summary Request a two-stage exchange of assignments
// @Tags Swaps
// @Accept json
// @Produce json
// @Param payload body dto.CreateExchangeSwapRequest true "Exchange payload"
// @Success 201 {object} response.Envelope
// @Router /swaps/exchange [post]
func (h *SwapHandler) CreateExchange(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateExchangeSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid swap payload"))
		return
	}
	detail, err := h.service.CreateExchange(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// FacilitatorRespond godoc
// @Summary Respond to a swap awaiting the target facilitator
// @Tags Swaps
// @Accept json
// @Produce json
// @Param id path string true "Swap ID"
// @Param payload body dto.SwapResponseRequest true "Approve or decline"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/facilitator-response [post]
func (h *SwapHandler) FacilitatorRespond(c *gin.Context) {
	h.respond(c, h.service.FacilitatorRespond)
}

// CoordinatorRespond godoc
// @Summary Resolve a swap awaiting coordinator review
// @Tags Swaps
// @Accept json
// @Produce json
// @Param id path string true "Swap ID"
// @Param payload body dto.SwapResponseRequest true "Approve or decline"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/coordinator-response [post]
func (h *SwapHandler) CoordinatorRespond(c *gin.Context) {
	h.respond(c, h.service.CoordinatorRespond)
}

// ResolvePending godoc
// @Summary Resolve a legacy single-stage pending swap
// @Tags Swaps
// @Accept json
// @Produce json
// @Param id path string true "Swap ID"
// @Param payload body dto.SwapResponseRequest true "Approve or reject"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/review [post]
func (h *SwapHandler) ResolvePending(c *gin.Context) {
	h.respond(c, h.service.ResolvePending)
}

// ListMine godoc
// @Summary List swaps where the caller is requester or target
// @Tags Swaps
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /swaps [get]
func (h *SwapHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.service.ListMine(c.Request.Context(), claims.Actor(), dto.SwapQuery{Status: c.Query("status")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// ListUnit godoc
// @Summary List swaps touching a unit
// @Tags Swaps
// @Produce json
// @Param id path string true "Unit ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/swaps [get]
func (h *SwapHandler) ListUnit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.service.ListUnit(c.Request.Context(), claims.Actor(), c.Param("id"), dto.SwapQuery{Status: c.Query("status")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Get godoc
// @Summary Fetch one swap request
// @Tags Swaps
// @Produce json
// @Param id path string true "Swap ID"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id} [get]
func (h *SwapHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

type swapResponder func(ctx context.Context, actor models.ActingAs, swapID string, req dto.SwapResponseRequest) (*models.SwapRequestDetail, error)

func (h *SwapHandler) respond(c *gin.Context, fn swapResponder) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SwapResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid response payload"))
		return
	}
	detail, err := fn(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
