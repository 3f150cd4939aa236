package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/models"
	"rentmarket/pkg/response"
)

type UserHandler struct {
	service UserService
}

func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	router.POST("/auth/register", h.register)
	router.POST("/auth/login", h.login)

	authed := router.Group("/users", requireAuth)
	authed.GET("/me", h.me)
	authed.GET("/me/signature", h.getSignature)
	authed.PUT("/me/signature", h.putSignature)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signatureRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// @Summary      Register a tenant or landlord
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body registerRequest true "Register request"
// @Success      201 {object} response.APIResponse{data=models.User}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /auth/register [post]
func (h *UserHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	u, err := h.service.Register(c.Request.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
		case errors.Is(err, ErrInvalidRole):
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "user created", u)
}

// @Summary      Login and obtain a bearer token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body loginRequest true "Login request"
// @Success      200 {object} response.APIResponse{data=LoginResult}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /auth/login [post]
func (h *UserHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "login successful", res)
}

// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=models.User}
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [get]
func (h *UserHandler) me(c *gin.Context) {
	u, err := h.service.GetUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.SendAPIResponse(c, http.StatusNotFound, false, "user not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user fetched", u)
}

// @Summary      Stored signature of the current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=Signature}
// @Failure      404 {object} response.APIResponse
// @Router       /users/me/signature [get]
func (h *UserHandler) getSignature(c *gin.Context) {
	sig, err := h.service.GetSignature(c.Request.Context(), auth.UserID(c))
	if err != nil {
		if errors.Is(err, ErrNoSignature) || errors.Is(err, ErrUserNotFound) {
			response.SendAPIResponse(c, http.StatusNotFound, false, "signature not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "signature fetched", Signature{Signature: sig})
}

// @Summary      Store a signature image (data URL)
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body signatureRequest true "Signature"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Router       /users/me/signature [put]
func (h *UserHandler) putSignature(c *gin.Context) {
	var req signatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	if err := h.service.SetSignature(c.Request.Context(), auth.UserID(c), req.Signature); err != nil {
		if errors.Is(err, ErrSignatureTooLarge) {
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "signature saved", nil)
}
