package messaging

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/models"
	"rentmarket/pkg/response"
)

const maxAttachmentSize = 10 << 20

var errAttachmentTooLarge = errors.New("attachment too large (max 10MB)")

type MessagingHandler struct {
	service   MessagingService
	uploadDir string
}

// NewMessagingHandler stores attachments under uploadDir, served at /uploads.
func NewMessagingHandler(service MessagingService, uploadDir string) *MessagingHandler {
	return &MessagingHandler{service: service, uploadDir: uploadDir}
}

func (h *MessagingHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	group := router.Group("/messaging/conversations", requireAuth)
	group.GET("", h.listConversations)
	group.POST("", h.startConversation)
	group.GET("/unread-count", h.unreadCount)
	group.GET("/:id", h.getConversation)
	group.GET("/:id/messages", h.getMessages)
	group.POST("/:id/messages", h.sendMessage)
	group.PUT("/:id/messages/read", h.markRead)
}

type startConversationRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type sendMessageRequest struct {
	Content   string  `json:"content" form:"content"`
	ReplyToID *string `json:"replyToId" form:"replyToId"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrNotParticipant):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrSelfConversation), errors.Is(err, errAttachmentTooLarge):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}

// @Summary      List the caller's conversations
// @Tags         messaging
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse{data=[]models.Conversation}
// @Router       /messaging/conversations [get]
func (h *MessagingHandler) listConversations(c *gin.Context) {
	convs, err := h.service.ListConversations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "conversations fetched", convs)
}

// @Summary      Start or reuse a direct conversation
// @Tags         messaging
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body startConversationRequest true "Peer"
// @Success      200  {object}  response.APIResponse{data=models.Conversation}
// @Failure      400  {object}  response.APIResponse
// @Router       /messaging/conversations [post]
func (h *MessagingHandler) startConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	conv, err := h.service.StartDirectConversation(c.Request.Context(), auth.UserID(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "conversation ready", conv)
}

// @Summary      Total unread messages of the caller
// @Tags         messaging
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse{data=models.UnreadCount}
// @Router       /messaging/conversations/unread-count [get]
func (h *MessagingHandler) unreadCount(c *gin.Context) {
	n, err := h.service.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "unread count fetched", n)
}

// @Summary      Get a conversation
// @Tags         messaging
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Conversation ID"
// @Success      200  {object}  response.APIResponse{data=models.Conversation}
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /messaging/conversations/{id} [get]
func (h *MessagingHandler) getConversation(c *gin.Context) {
	conv, err := h.service.GetConversation(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "conversation fetched", conv)
}

// @Summary      Page through a conversation
// @Description  Pages are counted from the newest message; each page is returned oldest first.
// @Tags         messaging
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string true  "Conversation ID"
// @Param        page  query int    false "Page (default 1)"
// @Param        limit query int    false "Page size (default 50, max 100)"
// @Success      200  {object}  response.APIResponse{data=models.MessagePage}
// @Failure      403  {object}  response.APIResponse
// @Router       /messaging/conversations/{id}/messages [get]
func (h *MessagingHandler) getMessages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))

	result, err := h.service.GetMessages(c.Request.Context(), auth.UserID(c), c.Param("id"), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "messages fetched", result)
}

// @Summary      Send a message
// @Description  Accepts JSON or multipart/form-data with an "attachment" file.
// @Tags         messaging
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        id         path     string true  "Conversation ID"
// @Param        request    body     sendMessageRequest false "Message"
// @Param        attachment formData file   false "Attachment"
// @Success      201  {object}  response.APIResponse{data=models.Message}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /messaging/conversations/{id}/messages [post]
func (h *MessagingHandler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	var attachment *models.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAttachmentSize+(1<<20))
		if err := c.ShouldBind(&req); err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
			return
		}
		a, err := h.saveAttachment(c)
		if err != nil {
			writeError(c, err)
			return
		}
		attachment = a
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if req.ReplyToID != nil && *req.ReplyToID == "" {
		req.ReplyToID = nil
	}

	msg, err := h.service.SendMessage(c.Request.Context(), auth.UserID(c), c.Param("id"), SendInput{
		Content:    req.Content,
		ReplyToID:  req.ReplyToID,
		Attachment: attachment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "message sent", msg)
}

// saveAttachment returns nil when the form carries no attachment.
func (h *MessagingHandler) saveAttachment(c *gin.Context) (*models.Attachment, error) {
	file, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if file.Size > maxAttachmentSize {
		return nil, errAttachmentTooLarge
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	stored := uuid.NewString() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, stored)); err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}

	return &models.Attachment{
		URL:      "/uploads/" + stored,
		Name:     filepath.Base(file.Filename),
		MimeType: mimeType,
		Size:     file.Size,
	}, nil
}

// @Summary      Mark messages as read
// @Tags         messaging
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path string          true "Conversation ID"
// @Param        request body markReadRequest true "Message IDs"
// @Success      200  {object}  response.APIResponse{data=[]models.ReadReceipt}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /messaging/conversations/{id}/messages/read [put]
func (h *MessagingHandler) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	receipts, err := h.service.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("id"), req.MessageIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "messages marked as read", receipts)
}
