package requests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/models"
)

type mockRequestRepository struct {
	mock.Mock
}

func (m *mockRequestRepository) CreateRequest(ctx context.Context, input models.RentalRequest) (models.RentalRequest, error) {
	args := m.Called(ctx, input)
	req, _ := args.Get(0).(models.RentalRequest)
	return req, args.Error(1)
}

func (m *mockRequestRepository) GetRequestByID(ctx context.Context, id string) (models.RentalRequest, error) {
	args := m.Called(ctx, id)
	req, _ := args.Get(0).(models.RentalRequest)
	return req, args.Error(1)
}

func (m *mockRequestRepository) ListRequestsByTenant(ctx context.Context, tenantID string) ([]models.RentalRequest, error) {
	args := m.Called(ctx, tenantID)
	items, _ := args.Get(0).([]models.RentalRequest)
	return items, args.Error(1)
}

func (m *mockRequestRepository) ListOpenRequests(ctx context.Context, city string, limit, offset int) ([]models.RentalRequest, int64, error) {
	args := m.Called(ctx, city, limit, offset)
	items, _ := args.Get(0).([]models.RentalRequest)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockRequestRepository) CloseRequest(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type stubUsers map[string]models.User

func (s stubUsers) GetUser(_ context.Context, id string) (models.User, error) {
	return s[id], nil
}

var testUsers = stubUsers{
	"tenant":   {ID: "tenant", Role: models.RoleTenant},
	"landlord": {ID: "landlord", Role: models.RoleLandlord},
}

func TestRequestService_CreateRequest(t *testing.T) {
	moveIn := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	t.Run("tenant creates", func(t *testing.T) {
		repo := new(mockRequestRepository)
		service := NewRequestService(repo, testUsers)

		repo.On("CreateRequest", mock.Anything, mock.MatchedBy(func(r models.RentalRequest) bool {
			return r.ID != "" && r.City == "Krakow" && r.TenantID == "tenant"
		})).Return(models.RentalRequest{ID: "r1", City: "Krakow", IsActive: true}, nil)

		created, err := service.CreateRequest(context.Background(), CreateInput{TenantID: "tenant", City: " Krakow ", Budget: 2500, MoveInDate: moveIn})

		require.NoError(t, err)
		require.Equal(t, "r1", created.ID)
		repo.AssertExpectations(t)
	})

	t.Run("landlord rejected", func(t *testing.T) {
		repo := new(mockRequestRepository)
		service := NewRequestService(repo, testUsers)

		_, err := service.CreateRequest(context.Background(), CreateInput{TenantID: "landlord", City: "Krakow", Budget: 2500, MoveInDate: moveIn})

		require.ErrorIs(t, err, ErrNotTenant)
		repo.AssertNotCalled(t, "CreateRequest", mock.Anything, mock.Anything)
	})

	t.Run("validation", func(t *testing.T) {
		service := NewRequestService(new(mockRequestRepository), testUsers)

		_, err := service.CreateRequest(context.Background(), CreateInput{TenantID: "tenant", City: "  ", Budget: 1})
		require.ErrorIs(t, err, ErrCityRequired)

		_, err = service.CreateRequest(context.Background(), CreateInput{TenantID: "tenant", City: "Gdansk"})
		require.ErrorIs(t, err, ErrInvalidBudget)
	})
}

func TestRequestService_ListOpenRequests_Pagination(t *testing.T) {
	repo := new(mockRequestRepository)
	service := NewRequestService(repo, testUsers)

	repo.On("ListOpenRequests", mock.Anything, "", 20, 0).Return([]models.RentalRequest{}, int64(0), nil)
	repo.On("ListOpenRequests", mock.Anything, "Lodz", 10, 20).Return([]models.RentalRequest{{ID: "r9"}}, int64(21), nil)

	list, err := service.ListOpenRequests(context.Background(), "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, list.Page)
	require.Equal(t, 20, list.Limit)

	list, err = service.ListOpenRequests(context.Background(), "Lodz", 3, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, int64(21), list.Total)
	repo.AssertExpectations(t)
}

func TestRequestService_CloseRequest_OwnerOnly(t *testing.T) {
	repo := new(mockRequestRepository)
	service := NewRequestService(repo, testUsers)

	repo.On("GetRequestByID", mock.Anything, "r1").Return(models.RentalRequest{ID: "r1", TenantID: "tenant"}, nil)
	repo.On("CloseRequest", mock.Anything, "r1").Return(nil)

	require.ErrorIs(t, service.CloseRequest(context.Background(), "someone-else", "r1"), ErrNotOwner)
	require.NoError(t, service.CloseRequest(context.Background(), "tenant", "r1"))
	repo.AssertNumberOfCalls(t, "CloseRequest", 1)
}
