package contracts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"rentmarket/pkg/contractdoc"
	"rentmarket/pkg/models"
)

var (
	ErrForbidden   = errors.New("contract belongs to other users")
	ErrNotTenant   = errors.New("only the tenant can sign the contract")
	ErrNotEligible = errors.New("offer must be paid before a contract can be generated")
)

const (
	reasonNoOffer      = "no offer has been made for this rental request"
	reasonNotGenerated = "contract has not been generated yet"
)

type OfferSource interface {
	GetOfferByID(ctx context.Context, id string) (models.Offer, error)
	GetLatestOfferForRequest(ctx context.Context, requestID string) (models.Offer, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type SignNotifier interface {
	ContractSigned(contract models.Contract, parties ...models.Party)
}

type ContractService interface {
	Eligibility(ctx context.Context, userID, requestID string) (models.Eligibility, error)
	Generate(ctx context.Context, userID, requestID string) (models.Contract, error)
	Issue(ctx context.Context, offer models.Offer) (models.Contract, error)
	Sign(ctx context.Context, userID, contractID string) (models.Contract, error)
	Preview(ctx context.Context, userID, offerID string, w io.Writer) error
	Download(ctx context.Context, userID, contractID string, w io.Writer) (models.Contract, error)
}

type contractService struct {
	repo      ContractRepository
	offers    OfferSource
	users     UserLookup
	generator *contractdoc.Generator
	notifier  SignNotifier
	now       func() time.Time
}

func NewContractService(repo ContractRepository, offers OfferSource, users UserLookup, generator *contractdoc.Generator, notifier SignNotifier) ContractService {
	return &contractService{
		repo:      repo,
		offers:    offers,
		users:     users,
		generator: generator,
		notifier:  notifier,
		now:       time.Now,
	}
}

func isParty(o models.Offer, userID string) bool {
	return o.TenantID == userID || o.LandlordID == userID
}

func (s *contractService) Eligibility(ctx context.Context, userID, requestID string) (models.Eligibility, error) {
	offer, err := s.offers.GetLatestOfferForRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Eligibility{Reason: reasonNoOffer}, nil
		}
		return models.Eligibility{}, err
	}
	if !isParty(offer, userID) {
		return models.Eligibility{}, ErrForbidden
	}
	if offer.Status != models.OfferPaid {
		return models.Eligibility{Reason: fmt.Sprintf("offer is %s; %s", offer.Status, ErrNotEligible)}, nil
	}

	c, err := s.repo.GetContractByOffer(ctx, offer.ID)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return models.Eligibility{CanGenerate: true, Reason: reasonNotGenerated}, nil
		}
		return models.Eligibility{}, err
	}
	return models.Eligibility{CanGenerate: true, Contract: &c}, nil
}

func (s *contractService) Generate(ctx context.Context, userID, requestID string) (models.Contract, error) {
	offer, err := s.offers.GetLatestOfferForRequest(ctx, requestID)
	if err != nil {
		return models.Contract{}, err
	}
	if !isParty(offer, userID) {
		return models.Contract{}, ErrForbidden
	}
	return s.Issue(ctx, offer)
}

// Issue stores the contract of a paid offer. Calling it again returns the stored one.
func (s *contractService) Issue(ctx context.Context, offer models.Offer) (models.Contract, error) {
	if offer.Status != models.OfferPaid {
		return models.Contract{}, ErrNotEligible
	}
	if existing, err := s.repo.GetContractByOffer(ctx, offer.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrContractNotFound) {
		return models.Contract{}, err
	}

	now := s.now()
	id := uuid.NewString()
	url := "/contracts/download/" + id
	return s.repo.CreateContract(ctx, models.Contract{
		ID:              id,
		ContractNumber:  contractdoc.NewContractNumber(now),
		OfferID:         offer.ID,
		RentalRequestID: offer.RentalRequestID,
		GeneratedAt:     now,
		PDFURL:          &url,
	})
}

func (s *contractService) Sign(ctx context.Context, userID, contractID string) (models.Contract, error) {
	c, err := s.repo.GetContractByID(ctx, contractID)
	if err != nil {
		return models.Contract{}, err
	}
	offer, err := s.offers.GetOfferByID(ctx, c.OfferID)
	if err != nil {
		return models.Contract{}, err
	}
	if offer.TenantID != userID {
		if offer.LandlordID == userID {
			return models.Contract{}, ErrNotTenant
		}
		return models.Contract{}, ErrForbidden
	}
	if c.Signed() {
		return models.Contract{}, ErrAlreadySigned
	}

	signed, err := s.repo.MarkSigned(ctx, c.ID, s.now())
	if err != nil {
		return models.Contract{}, err
	}

	if s.notifier != nil {
		var parties []models.Party
		if offer.Tenant != nil {
			parties = append(parties, *offer.Tenant)
		}
		if offer.Landlord != nil {
			parties = append(parties, *offer.Landlord)
		}
		s.notifier.ContractSigned(signed, parties...)
	}
	return signed, nil
}

func (s *contractService) Preview(ctx context.Context, userID, offerID string, w io.Writer) error {
	offer, err := s.offers.GetOfferByID(ctx, offerID)
	if err != nil {
		return err
	}
	if !isParty(offer, userID) {
		return ErrForbidden
	}

	var opts []contractdoc.Option
	if c, err := s.repo.GetContractByOffer(ctx, offer.ID); err == nil {
		opts = append(opts, contractdoc.WithExisting(c))
	} else if !errors.Is(err, ErrContractNotFound) {
		return err
	}
	return s.render(ctx, offer, userID, w, opts...)
}

func (s *contractService) Download(ctx context.Context, userID, contractID string, w io.Writer) (models.Contract, error) {
	c, err := s.repo.GetContractByID(ctx, contractID)
	if err != nil {
		return models.Contract{}, err
	}
	offer, err := s.offers.GetOfferByID(ctx, c.OfferID)
	if err != nil {
		return models.Contract{}, err
	}
	if !isParty(offer, userID) {
		return models.Contract{}, ErrForbidden
	}
	return c, s.render(ctx, offer, userID, w, contractdoc.WithExisting(c))
}

func (s *contractService) render(ctx context.Context, offer models.Offer, userID string, w io.Writer, opts ...contractdoc.Option) error {
	var user *models.User
	if u, err := s.users.GetUser(ctx, userID); err == nil {
		user = &u
	}
	doc := s.generator.Generate(ctx, offer, user, opts...)
	return contractdoc.Render(w, doc)
}
