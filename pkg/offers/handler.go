package offers

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/models"
	"rentmarket/pkg/response"
)

const (
	paymentKeyHeader = "X-Payment-Key"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type OfferHandler struct {
	service    OfferService
	paymentKey string
}

// NewOfferHandler disables the payment callback when paymentKey is empty.
func NewOfferHandler(service OfferService, paymentKey string) *OfferHandler {
	return &OfferHandler{service: service, paymentKey: paymentKey}
}

func (h *OfferHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	router.POST("/offers/:id/paid", h.markPaid)

	group := router.Group("/offers", requireAuth)
	group.POST("", h.createOffer)
	group.GET("/my", h.listMyOffers)
	group.GET("/my/export", h.exportMyOffers)
	group.GET("/:id", h.getOffer)
	group.PUT("/:id/status", h.updateStatus)
}

type createOfferRequest struct {
	RentalRequestID string  `json:"rentalRequestId" binding:"required"`
	RentAmount      float64 `json:"rentAmount" binding:"required"`
	DepositAmount   float64 `json:"depositAmount"`
	LeaseDuration   int     `json:"leaseDuration" binding:"required"`
	AvailableFrom   string  `json:"availableFrom" binding:"required"`
	PropertyAddress string  `json:"propertyAddress" binding:"required"`
	PropertyType    string  `json:"propertyType"`
	PropertySize    float64 `json:"propertySize"`
	Rooms           int     `json:"rooms"`
	Description     string  `json:"description"`
}

type updateStatusRequest struct {
	Status                  string `json:"status" binding:"required"`
	PreferredPaymentGateway string `json:"preferredPaymentGateway"`
}

type paidResponse struct {
	Offer    models.Offer    `json:"offer"`
	Contract models.Contract `json:"contract"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotTenant), errors.Is(err, ErrNotLandlord):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrRequestClosed):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, ErrGatewayRequired), errors.Is(err, ErrInvalidTerms):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}

// @Summary      Make an offer on a rental request
// @Tags         offers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body createOfferRequest true "Offer terms"
// @Success      201  {object}  response.APIResponse{data=models.Offer}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse "Rental request closed"
// @Router       /offers [post]
func (h *OfferHandler) createOffer(c *gin.Context) {
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	from, err := time.Parse(time.DateOnly, req.AvailableFrom)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "availableFrom must be YYYY-MM-DD", nil)
		return
	}

	created, err := h.service.CreateOffer(c.Request.Context(), auth.UserID(c), CreateInput{
		RentalRequestID: req.RentalRequestID,
		RentAmount:      req.RentAmount,
		DepositAmount:   req.DepositAmount,
		LeaseDuration:   req.LeaseDuration,
		AvailableFrom:   from,
		PropertyAddress: req.PropertyAddress,
		PropertyType:    req.PropertyType,
		PropertySize:    req.PropertySize,
		Rooms:           req.Rooms,
		Description:     req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "offer created", created)
}

// @Summary      Offers where the current user is tenant or landlord
// @Tags         offers
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse{data=[]models.Offer}
// @Router       /offers/my [get]
func (h *OfferHandler) listMyOffers(c *gin.Context) {
	items, err := h.service.ListMyOffers(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offers fetched", items)
}

// @Summary      Download the current user's offers as a spreadsheet
// @Tags         offers
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Success      200  {file}  file
// @Router       /offers/my/export [get]
func (h *OfferHandler) exportMyOffers(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.service.ExportMyOffers(c.Request.Context(), auth.UserID(c), &buf); err != nil {
		writeError(c, err)
		return
	}
	filename := fmt.Sprintf("offers_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// @Summary      Get an offer
// @Tags         offers
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Offer ID"
// @Success      200  {object}  response.APIResponse{data=models.Offer}
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /offers/{id} [get]
func (h *OfferHandler) getOffer(c *gin.Context) {
	o, err := h.service.GetOffer(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer fetched", o)
}

// @Summary      Accept or reject an offer
// @Description  Tenant only. ACCEPTED requires preferredPaymentGateway (STRIPE, PAYU, P24, TPAY).
// @Tags         offers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Offer ID"
// @Param        request body updateStatusRequest true "New status"
// @Success      200  {object}  response.APIResponse{data=models.Offer}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse "Transition not allowed"
// @Router       /offers/{id}/status [put]
func (h *OfferHandler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	status := models.OfferStatus(req.Status)
	if !status.Valid() {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid status", nil)
		return
	}

	var gateway *models.PaymentGateway
	if req.PreferredPaymentGateway != "" {
		g, err := models.ParsePaymentGateway(req.PreferredPaymentGateway)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
			return
		}
		gateway = &g
	}

	updated, err := h.service.UpdateStatus(c.Request.Context(), auth.UserID(c), c.Param("id"), status, gateway)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer status updated", updated)
}

// @Summary      Payment confirmation callback
// @Description  Called by the payment collaborator. Moves ACCEPTED to PAID and issues the contract.
// @Tags         offers
// @Produce      json
// @Param        X-Payment-Key  header  string  true  "Shared callback key"
// @Param        id   path      string  true  "Offer ID"
// @Success      200  {object}  response.APIResponse{data=paidResponse}
// @Failure      401  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /offers/{id}/paid [post]
func (h *OfferHandler) markPaid(c *gin.Context) {
	key := c.GetHeader(paymentKeyHeader)
	if h.paymentKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.paymentKey)) != 1 {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "invalid payment key", nil)
		return
	}

	o, contract, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "offer paid", paidResponse{Offer: o, Contract: contract})
}
