package requests

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"rentmarket/pkg/models"
)

var (
	ErrNotTenant     = errors.New("only tenants can post rental requests")
	ErrNotOwner      = errors.New("rental request belongs to another tenant")
	ErrInvalidBudget = errors.New("budget must be positive")
	ErrCityRequired  = errors.New("city is required")
)

// UserLookup resolves the caller's role.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type RequestService interface {
	CreateRequest(ctx context.Context, input CreateInput) (models.RentalRequest, error)
	GetRequest(ctx context.Context, id string) (models.RentalRequest, error)
	ListMyRequests(ctx context.Context, tenantID string) ([]models.RentalRequest, error)
	ListOpenRequests(ctx context.Context, city string, page, limit int) (RequestList, error)
	CloseRequest(ctx context.Context, tenantID, id string) error
}

type requestService struct {
	repo  RequestRepository
	users UserLookup
}

func NewRequestService(repo RequestRepository, users UserLookup) RequestService {
	return &requestService{repo: repo, users: users}
}

func (s *requestService) CreateRequest(ctx context.Context, input CreateInput) (models.RentalRequest, error) {
	city := strings.TrimSpace(input.City)
	if city == "" {
		return models.RentalRequest{}, ErrCityRequired
	}
	if input.Budget <= 0 {
		return models.RentalRequest{}, ErrInvalidBudget
	}

	u, err := s.users.GetUser(ctx, input.TenantID)
	if err != nil {
		return models.RentalRequest{}, err
	}
	if u.Role != models.RoleTenant {
		return models.RentalRequest{}, ErrNotTenant
	}

	return s.repo.CreateRequest(ctx, models.RentalRequest{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		City:        city,
		Budget:      input.Budget,
		MoveInDate:  input.MoveInDate,
		Description: strings.TrimSpace(input.Description),
	})
}

func (s *requestService) GetRequest(ctx context.Context, id string) (models.RentalRequest, error) {
	return s.repo.GetRequestByID(ctx, id)
}

func (s *requestService) ListMyRequests(ctx context.Context, tenantID string) ([]models.RentalRequest, error) {
	return s.repo.ListRequestsByTenant(ctx, tenantID)
}

func (s *requestService) ListOpenRequests(ctx context.Context, city string, page, limit int) (RequestList, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	items, total, err := s.repo.ListOpenRequests(ctx, strings.TrimSpace(city), limit, offset)
	if err != nil {
		return RequestList{}, err
	}
	return RequestList{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *requestService) CloseRequest(ctx context.Context, tenantID, id string) error {
	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if req.TenantID != tenantID {
		return ErrNotOwner
	}
	return s.repo.CloseRequest(ctx, id)
}
