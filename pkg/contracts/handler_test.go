package contracts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/models"
	"rentmarket/pkg/testhelpers"
)

type mockContractService struct {
	mock.Mock
}

func (m *mockContractService) Eligibility(ctx context.Context, userID, requestID string) (models.Eligibility, error) {
	args := m.Called(ctx, userID, requestID)
	e, _ := args.Get(0).(models.Eligibility)
	return e, args.Error(1)
}

func (m *mockContractService) Generate(ctx context.Context, userID, requestID string) (models.Contract, error) {
	args := m.Called(ctx, userID, requestID)
	c, _ := args.Get(0).(models.Contract)
	return c, args.Error(1)
}

func (m *mockContractService) Issue(ctx context.Context, offer models.Offer) (models.Contract, error) {
	args := m.Called(ctx, offer)
	c, _ := args.Get(0).(models.Contract)
	return c, args.Error(1)
}

func (m *mockContractService) Sign(ctx context.Context, userID, contractID string) (models.Contract, error) {
	args := m.Called(ctx, userID, contractID)
	c, _ := args.Get(0).(models.Contract)
	return c, args.Error(1)
}

func (m *mockContractService) Preview(ctx context.Context, userID, offerID string, w io.Writer) error {
	args := m.Called(ctx, userID, offerID, w)
	_, _ = io.WriteString(w, "<html>preview</html>")
	return args.Error(0)
}

func (m *mockContractService) Download(ctx context.Context, userID, contractID string, w io.Writer) (models.Contract, error) {
	args := m.Called(ctx, userID, contractID, w)
	_, _ = io.WriteString(w, "<html>contract</html>")
	c, _ := args.Get(0).(models.Contract)
	return c, args.Error(1)
}

func setupContractRouter(service ContractService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewContractHandler(service).RegisterRoutes(r, testhelpers.HeaderAuth())
	return r
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(testhelpers.UserHeader, "tenant")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestContractHandler_Eligibility(t *testing.T) {
	svc := new(mockContractService)
	r := setupContractRouter(svc)
	svc.On("Eligibility", mock.Anything, "tenant", "r1").Return(models.Eligibility{CanGenerate: true}, nil)

	w := serve(r, http.MethodGet, "/contracts/r1/eligibility")

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"canGenerate":true`)
}

func TestContractHandler_Sign_AlreadySigned(t *testing.T) {
	svc := new(mockContractService)
	r := setupContractRouter(svc)
	svc.On("Sign", mock.Anything, "tenant", "c1").Return(models.Contract{}, ErrAlreadySigned)

	w := serve(r, http.MethodPost, "/contracts/sign/c1")

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), ErrAlreadySigned.Error())
}

func TestContractHandler_Preview(t *testing.T) {
	svc := new(mockContractService)
	r := setupContractRouter(svc)
	svc.On("Preview", mock.Anything, "tenant", "o1", mock.Anything).Return(nil)

	w := serve(r, http.MethodGet, "/contracts/preview/o1")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, htmlContentType, w.Header().Get("Content-Type"))
	require.Equal(t, "<html>preview</html>", w.Body.String())
}

func TestContractHandler_Download(t *testing.T) {
	svc := new(mockContractService)
	r := setupContractRouter(svc)
	svc.On("Download", mock.Anything, "tenant", "c1", mock.Anything).Return(models.Contract{ContractNumber: "RNT/2026/10/ABCDEF"}, nil)

	w := serve(r, http.MethodGet, "/contracts/download/c1")

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "RNT-2026-10-ABCDEF.html")
}

func TestContractHandler_Generate_NotEligible(t *testing.T) {
	svc := new(mockContractService)
	r := setupContractRouter(svc)
	svc.On("Generate", mock.Anything, "tenant", "r1").Return(models.Contract{}, ErrNotEligible)

	w := serve(r, http.MethodPost, "/contracts/generate/r1")

	require.Equal(t, http.StatusConflict, w.Code)
}
