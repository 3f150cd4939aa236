package offers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"rentmarket/pkg/models"
)

var (
	ErrNotLandlord       = errors.New("only landlords can make offers")
	ErrNotTenant         = errors.New("only the tenant can respond to this offer")
	ErrForbidden         = errors.New("offer belongs to other users")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrGatewayRequired   = errors.New("payment gateway is required to accept an offer")
	ErrRequestClosed     = errors.New("rental request is closed")
	ErrInvalidTerms      = errors.New("rent and lease duration must be positive")
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type RequestStore interface {
	GetRequest(ctx context.Context, id string) (models.RentalRequest, error)
	CloseRequest(ctx context.Context, tenantID, id string) error
}

// ConversationOpener creates or reuses the conversation attached to an offer.
type ConversationOpener interface {
	OpenOfferConversation(ctx context.Context, offerID, landlordID, tenantID string) (models.Conversation, error)
}

type ContractIssuer interface {
	Issue(ctx context.Context, offer models.Offer) (models.Contract, error)
}

type StatusNotifier interface {
	OfferStatusChanged(offer models.Offer, landlord models.Party)
}

type OfferService interface {
	CreateOffer(ctx context.Context, landlordID string, input CreateInput) (models.Offer, error)
	GetOffer(ctx context.Context, userID, id string) (models.Offer, error)
	ListMyOffers(ctx context.Context, userID string) ([]models.Offer, error)
	UpdateStatus(ctx context.Context, userID, id string, status models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error)
	MarkPaid(ctx context.Context, id string) (models.Offer, models.Contract, error)
	ExportMyOffers(ctx context.Context, userID string, w io.Writer) error
}

type Dependencies struct {
	Users         UserLookup
	Requests      RequestStore
	Conversations ConversationOpener
	Contracts     ContractIssuer
	Notifier      StatusNotifier
}

type offerService struct {
	repo OfferRepository
	deps Dependencies
	log  interface {
		Printf(string, ...any)
	}
}

func NewOfferService(repo OfferRepository, deps Dependencies) OfferService {
	return &offerService{
		repo: repo,
		deps: deps,
		log:  log.New(log.Writer(), "[offers] ", log.LstdFlags),
	}
}

func (s *offerService) CreateOffer(ctx context.Context, landlordID string, input CreateInput) (models.Offer, error) {
	if input.RentAmount <= 0 || input.LeaseDuration <= 0 {
		return models.Offer{}, ErrInvalidTerms
	}

	landlord, err := s.deps.Users.GetUser(ctx, landlordID)
	if err != nil {
		return models.Offer{}, err
	}
	if landlord.Role != models.RoleLandlord {
		return models.Offer{}, ErrNotLandlord
	}

	req, err := s.deps.Requests.GetRequest(ctx, input.RentalRequestID)
	if err != nil {
		return models.Offer{}, err
	}
	if !req.IsActive {
		return models.Offer{}, ErrRequestClosed
	}

	created, err := s.repo.CreateOffer(ctx, models.Offer{
		ID:              uuid.NewString(),
		RentalRequestID: req.ID,
		LandlordID:      landlordID,
		TenantID:        req.TenantID,
		RentAmount:      input.RentAmount,
		DepositAmount:   input.DepositAmount,
		LeaseDuration:   input.LeaseDuration,
		AvailableFrom:   input.AvailableFrom,
		PropertyAddress: strings.TrimSpace(input.PropertyAddress),
		PropertyType:    input.PropertyType,
		PropertySize:    input.PropertySize,
		Rooms:           input.Rooms,
		Description:     input.Description,
		Status:          models.OfferPending,
	})
	if err != nil {
		return models.Offer{}, err
	}

	if s.deps.Conversations != nil {
		if _, err := s.deps.Conversations.OpenOfferConversation(ctx, created.ID, landlordID, req.TenantID); err != nil {
			s.log.Printf("open conversation for offer %s: %v", created.ID, err)
		}
	}
	return created, nil
}

func (s *offerService) GetOffer(ctx context.Context, userID, id string) (models.Offer, error) {
	o, err := s.repo.GetOfferByID(ctx, id)
	if err != nil {
		return models.Offer{}, err
	}
	if o.TenantID != userID && o.LandlordID != userID {
		return models.Offer{}, ErrForbidden
	}
	return o, nil
}

func (s *offerService) ListMyOffers(ctx context.Context, userID string) ([]models.Offer, error) {
	return s.repo.ListOffersForUser(ctx, userID)
}

// UpdateStatus applies a tenant decision. Only PENDING -> ACCEPTED (with a
// gateway) and PENDING -> REJECTED are reachable here; PAID comes from MarkPaid.
func (s *offerService) UpdateStatus(ctx context.Context, userID, id string, status models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error) {
	if status != models.OfferAccepted && status != models.OfferRejected {
		return models.Offer{}, fmt.Errorf("%w: tenants cannot set %s", ErrInvalidTransition, status)
	}
	if status == models.OfferAccepted && (gateway == nil || !gateway.Valid()) {
		return models.Offer{}, ErrGatewayRequired
	}
	if status == models.OfferRejected {
		gateway = nil
	}

	current, err := s.repo.GetOfferByID(ctx, id)
	if err != nil {
		return models.Offer{}, err
	}
	if current.TenantID != userID {
		return models.Offer{}, ErrNotTenant
	}
	if !current.Status.CanTransitionTo(status) {
		return models.Offer{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, status, gateway)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return models.Offer{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return models.Offer{}, err
	}

	s.notify(updated)
	return updated, nil
}

// MarkPaid is driven by the payment collaborator once the tenant has paid.
func (s *offerService) MarkPaid(ctx context.Context, id string) (models.Offer, models.Contract, error) {
	current, err := s.repo.GetOfferByID(ctx, id)
	if err != nil {
		return models.Offer{}, models.Contract{}, err
	}
	if !current.Status.CanTransitionTo(models.OfferPaid) {
		return models.Offer{}, models.Contract{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, models.OfferPaid)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, models.OfferPaid, nil)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return models.Offer{}, models.Contract{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return models.Offer{}, models.Contract{}, err
	}

	if err := s.deps.Requests.CloseRequest(ctx, updated.TenantID, updated.RentalRequestID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.log.Printf("close rental request %s: %v", updated.RentalRequestID, err)
	}

	contract, err := s.deps.Contracts.Issue(ctx, updated)
	if err != nil {
		return updated, models.Contract{}, fmt.Errorf("issue contract: %w", err)
	}

	s.notify(updated)
	return updated, contract, nil
}

func (s *offerService) ExportMyOffers(ctx context.Context, userID string, w io.Writer) error {
	items, err := s.repo.ListOffersForUser(ctx, userID)
	if err != nil {
		return err
	}
	return WriteSpreadsheet(w, items)
}

func (s *offerService) notify(o models.Offer) {
	if s.deps.Notifier == nil || o.Landlord == nil {
		return
	}
	s.deps.Notifier.OfferStatusChanged(o, *o.Landlord)
}
