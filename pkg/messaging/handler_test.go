package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/models"
	"rentmarket/pkg/response"
	"rentmarket/pkg/testhelpers"
)

type mockMessagingService struct {
	mock.Mock
}

func (m *mockMessagingService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	convs, _ := args.Get(0).([]models.Conversation)
	return convs, args.Error(1)
}

func (m *mockMessagingService) GetConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, userID, conversationID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockMessagingService) GetMessages(ctx context.Context, userID, conversationID string, page, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, userID, conversationID, page, limit)
	p, _ := args.Get(0).(models.MessagePage)
	return p, args.Error(1)
}

func (m *mockMessagingService) SendMessage(ctx context.Context, userID, conversationID string, in SendInput) (models.Message, error) {
	args := m.Called(ctx, userID, conversationID, in)
	msg, _ := args.Get(0).(models.Message)
	return msg, args.Error(1)
}

func (m *mockMessagingService) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, userID, conversationID, messageIDs)
	rr, _ := args.Get(0).([]models.ReadReceipt)
	return rr, args.Error(1)
}

func (m *mockMessagingService) UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error) {
	args := m.Called(ctx, userID)
	n, _ := args.Get(0).(models.UnreadCount)
	return n, args.Error(1)
}

func (m *mockMessagingService) OpenOfferConversation(ctx context.Context, offerID, landlordID, tenantID string) (models.Conversation, error) {
	args := m.Called(ctx, offerID, landlordID, tenantID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockMessagingService) StartDirectConversation(ctx context.Context, userID, peerID string) (models.Conversation, error) {
	args := m.Called(ctx, userID, peerID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockMessagingService) CanJoin(ctx context.Context, userID, conversationID string) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}

func setupMessagingRouter(t *testing.T, service MessagingService) (*gin.Engine, string) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	r := gin.New()
	NewMessagingHandler(service, dir).RegisterRoutes(r, testhelpers.HeaderAuth())
	return r, dir
}

func doRequest(r *gin.Engine, method, path, user, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(testhelpers.UserHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestMessagingHandler_RequiresAuth(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)

	w := doRequest(r, http.MethodGet, "/messaging/conversations", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessagingHandler_UnreadCount(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)
	svc.On("UnreadCount", mock.Anything, "u1").Return(models.UnreadCount{UnreadCount: 3}, nil)

	w := doRequest(r, http.MethodGet, "/messaging/conversations/unread-count", "u1", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	require.EqualValues(t, 3, data["unreadCount"])
	require.NotContains(t, data, "totalUnread")
	svc.AssertNotCalled(t, "GetConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessagingHandler_GetMessages(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)

	svc.On("GetMessages", mock.Anything, "u1", "c1", 2, 50).
		Return(models.MessagePage{Messages: []models.Message{{ID: "m1"}}, Page: 2, Limit: 50}, nil)
	svc.On("GetMessages", mock.Anything, "u2", "c1", 1, 50).Return(models.MessagePage{}, ErrNotParticipant)

	w := doRequest(r, http.MethodGet, "/messaging/conversations/c1/messages?page=2", "u1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/messaging/conversations/c1/messages", "u2", "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, ErrNotParticipant.Error(), decodeResponse(t, w).Message)
}

func TestMessagingHandler_SendMessage_JSON(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)

	reply := "m0"
	svc.On("SendMessage", mock.Anything, "u1", "c1", SendInput{Content: "hi", ReplyToID: &reply}).
		Return(models.Message{ID: "m1", Content: "hi"}, nil)

	w := doRequest(r, http.MethodPost, "/messaging/conversations/c1/messages", "u1", "application/json",
		bytes.NewBufferString(`{"content":"hi","replyToId":"m0"}`))

	require.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestMessagingHandler_SendMessage_EmptyIsBadRequest(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)
	svc.On("SendMessage", mock.Anything, "u1", "c1", mock.Anything).Return(models.Message{}, ErrEmptyMessage)

	w := doRequest(r, http.MethodPost, "/messaging/conversations/c1/messages", "u1", "application/json",
		bytes.NewBufferString(`{"content":""}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagingHandler_SendMessage_Multipart(t *testing.T) {
	svc := new(mockMessagingService)
	r, dir := setupMessagingRouter(t, svc)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", "lease scan"))
	fw, err := mw.CreateFormFile("attachment", "scan.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	svc.On("SendMessage", mock.Anything, "u1", "c1", mock.MatchedBy(func(in SendInput) bool {
		return in.Content == "lease scan" && in.Attachment != nil &&
			in.Attachment.Name == "scan.pdf" &&
			strings.HasPrefix(in.Attachment.URL, "/uploads/") &&
			strings.HasSuffix(in.Attachment.URL, ".pdf") &&
			in.Attachment.Size == int64(len("%PDF-1.4"))
	})).Return(models.Message{ID: "m1"}, nil)

	w := doRequest(r, http.MethodPost, "/messaging/conversations/c1/messages", "u1", mw.FormDataContentType(), &body)

	require.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ".pdf", filepath.Ext(entries[0].Name()))
}

func TestMessagingHandler_MarkRead(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)
	svc.On("MarkRead", mock.Anything, "u1", "c1", []string{"m1", "m2"}).Return([]models.ReadReceipt{{MessageID: "m1"}}, nil)

	w := doRequest(r, http.MethodPut, "/messaging/conversations/c1/messages/read", "u1", "application/json",
		bytes.NewBufferString(`{"messageIds":["m1","m2"]}`))

	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPut, "/messaging/conversations/c1/messages/read", "u1", "application/json",
		bytes.NewBufferString(`{}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagingHandler_StartConversation(t *testing.T) {
	svc := new(mockMessagingService)
	r, _ := setupMessagingRouter(t, svc)
	svc.On("StartDirectConversation", mock.Anything, "u1", "u1").Return(models.Conversation{}, ErrSelfConversation)

	w := doRequest(r, http.MethodPost, "/messaging/conversations", "u1", "application/json",
		bytes.NewBufferString(`{"userId":"u1"}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
}
