package contracts

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/models"
	"rentmarket/pkg/response"
)

const htmlContentType = "text/html; charset=utf-8"

type ContractHandler struct {
	service ContractService
}

func NewContractHandler(service ContractService) *ContractHandler {
	return &ContractHandler{service: service}
}

func (h *ContractHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	group := router.Group("/contracts", requireAuth)
	group.GET("/:rentalRequestId/eligibility", h.eligibility)
	group.POST("/generate/:rentalRequestId", h.generate)
	group.POST("/sign/:contractId", h.sign)
	group.GET("/preview/:offerId", h.preview)
	group.GET("/download/:contractId", h.download)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotTenant):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrAlreadySigned), errors.Is(err, ErrNotEligible):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}

// @Summary      Contract eligibility of a rental request
// @Tags         contracts
// @Produce      json
// @Security     BearerAuth
// @Param        rentalRequestId   path      string  true  "Rental request ID"
// @Success      200  {object}  response.APIResponse{data=models.Eligibility}
// @Failure      403  {object}  response.APIResponse
// @Router       /contracts/{rentalRequestId}/eligibility [get]
func (h *ContractHandler) eligibility(c *gin.Context) {
	e, err := h.service.Eligibility(c.Request.Context(), auth.UserID(c), c.Param("rentalRequestId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "eligibility fetched", e)
}

// @Summary      Generate the contract of a paid offer
// @Tags         contracts
// @Produce      json
// @Security     BearerAuth
// @Param        rentalRequestId   path      string  true  "Rental request ID"
// @Success      200  {object}  response.APIResponse{data=models.Contract}
// @Failure      409  {object}  response.APIResponse "Offer not paid"
// @Router       /contracts/generate/{rentalRequestId} [post]
func (h *ContractHandler) generate(c *gin.Context) {
	contract, err := h.service.Generate(c.Request.Context(), auth.UserID(c), c.Param("rentalRequestId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "contract generated", contract)
}

// @Summary      Sign a contract
// @Tags         contracts
// @Produce      json
// @Security     BearerAuth
// @Param        contractId   path      string  true  "Contract ID"
// @Success      200  {object}  response.APIResponse{data=models.Contract}
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse "Already signed"
// @Router       /contracts/sign/{contractId} [post]
func (h *ContractHandler) sign(c *gin.Context) {
	contract, err := h.service.Sign(c.Request.Context(), auth.UserID(c), c.Param("contractId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "contract signed", contract)
}

// @Summary      Preview the contract of an offer as HTML
// @Tags         contracts
// @Produce      html
// @Security     BearerAuth
// @Param        offerId   path      string  true  "Offer ID"
// @Success      200  {string}  string
// @Router       /contracts/preview/{offerId} [get]
func (h *ContractHandler) preview(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.service.Preview(c.Request.Context(), auth.UserID(c), c.Param("offerId"), &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, htmlContentType, buf.Bytes())
}

// @Summary      Download a stored contract
// @Tags         contracts
// @Produce      html
// @Security     BearerAuth
// @Param        contractId   path      string  true  "Contract ID"
// @Success      200  {file}  file
// @Router       /contracts/download/{contractId} [get]
func (h *ContractHandler) download(c *gin.Context) {
	var buf bytes.Buffer
	contract, err := h.service.Download(c.Request.Context(), auth.UserID(c), c.Param("contractId"), &buf)
	if err != nil {
		writeError(c, err)
		return
	}
	filename := strings.ReplaceAll(contract.ContractNumber, "/", "-") + ".html"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, htmlContentType, buf.Bytes())
}
