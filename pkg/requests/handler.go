package requests

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/response"
)

type RequestHandler struct {
	service RequestService
}

func NewRequestHandler(service RequestService) *RequestHandler {
	return &RequestHandler{service: service}
}

func (h *RequestHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	group := router.Group("/rental-requests", requireAuth)
	group.POST("", h.createRequest)
	group.GET("/my", h.listMyRequests)
	group.GET("/open", h.listOpenRequests)
	group.GET("/:id", h.getRequest)
	group.DELETE("/:id", h.closeRequest)
}

type createRequestBody struct {
	City        string  `json:"city" binding:"required"`
	Budget      float64 `json:"budget" binding:"required"`
	MoveInDate  string  `json:"moveInDate" binding:"required"`
	Description string  `json:"description"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrNotTenant), errors.Is(err, ErrNotOwner):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrInvalidBudget), errors.Is(err, ErrCityRequired):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}

// @Summary      Post a rental request
// @Tags         rental-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body createRequestBody true "Rental request"
// @Success      201  {object}  response.APIResponse{data=models.RentalRequest}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /rental-requests [post]
func (h *RequestHandler) createRequest(c *gin.Context) {
	var req createRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	moveIn, err := time.Parse(time.DateOnly, req.MoveInDate)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "moveInDate must be YYYY-MM-DD", nil)
		return
	}

	created, err := h.service.CreateRequest(c.Request.Context(), CreateInput{
		TenantID:    auth.UserID(c),
		City:        req.City,
		Budget:      req.Budget,
		MoveInDate:  moveIn,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "rental request created", created)
}

// @Summary      Rental requests of the current tenant
// @Tags         rental-requests
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse{data=[]models.RentalRequest}
// @Router       /rental-requests/my [get]
func (h *RequestHandler) listMyRequests(c *gin.Context) {
	items, err := h.service.ListMyRequests(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "rental requests fetched", items)
}

// @Summary      Browse open rental requests
// @Tags         rental-requests
// @Produce      json
// @Security     BearerAuth
// @Param        city   query     string  false  "City filter"
// @Param        page   query     int     false  "Page number"
// @Param        limit  query     int     false  "Page size"
// @Success      200  {object}  response.APIResponse{data=RequestList}
// @Router       /rental-requests/open [get]
func (h *RequestHandler) listOpenRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, err := h.service.ListOpenRequests(c.Request.Context(), c.Query("city"), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "rental requests fetched", list)
}

// @Summary      Get a rental request
// @Tags         rental-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Rental request ID"
// @Success      200  {object}  response.APIResponse{data=models.RentalRequest}
// @Failure      404  {object}  response.APIResponse
// @Router       /rental-requests/{id} [get]
func (h *RequestHandler) getRequest(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "rental request fetched", req)
}

// @Summary      Close a rental request
// @Tags         rental-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Rental request ID"
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /rental-requests/{id} [delete]
func (h *RequestHandler) closeRequest(c *gin.Context) {
	if err := h.service.CloseRequest(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "rental request closed", nil)
}
