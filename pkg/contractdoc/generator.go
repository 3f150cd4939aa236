// Package contractdoc builds the rental contract document from an offer and
// the identities of both parties.
package contractdoc

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"rentmarket/pkg/models"
)

// SignatureUnavailable is rendered in place of a signature that could not be loaded.
const SignatureUnavailable = "unavailable"

const numberSuffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// SignatureSource loads the stored signature image (a data URL) of a user.
type SignatureSource interface {
	GetSignature(ctx context.Context, userID string) (string, error)
}

type Document struct {
	ContractNumber string
	ContractDate   time.Time

	Landlord models.Party
	Tenant   models.Party

	LandlordSignature string
	TenantSignature   string

	PropertyAddress string
	PropertyType    string
	PropertySize    float64
	Rooms           int
	Description     string

	RentAmount    float64
	DepositAmount float64
	LeaseMonths   int
	StartDate     time.Time
	EndDate       time.Time

	PaymentGateway string
	SignedAt       *time.Time
}

type Option func(*settings)

type settings struct {
	existing *models.Contract
}

// WithExisting reuses the number, date and signing time of a previously issued contract.
func WithExisting(c models.Contract) Option {
	return func(s *settings) {
		s.existing = &c
	}
}

type Generator struct {
	signatures SignatureSource
	now        func() time.Time
	logger     interface {
		Printf(string, ...any)
	}
}

// NewGenerator accepts a nil source; signatures are then taken from the offer only.
func NewGenerator(signatures SignatureSource) *Generator {
	return &Generator{
		signatures: signatures,
		now:        time.Now,
		logger:     log.New(log.Writer(), "[contractdoc] ", log.LstdFlags),
	}
}

// Generate never fails: a signature that cannot be fetched becomes SignatureUnavailable.
func (g *Generator) Generate(ctx context.Context, offer models.Offer, user *models.User, opts ...Option) Document {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	doc := Document{
		PropertyAddress: offer.PropertyAddress,
		PropertyType:    offer.PropertyType,
		PropertySize:    offer.PropertySize,
		Rooms:           offer.Rooms,
		Description:     offer.Description,
		RentAmount:      offer.RentAmount,
		DepositAmount:   offer.DepositAmount,
		LeaseMonths:     offer.LeaseDuration,
		StartDate:       offer.AvailableFrom,
		EndDate:         offer.AvailableFrom.AddDate(0, offer.LeaseDuration, 0),
	}
	if offer.Landlord != nil {
		doc.Landlord = *offer.Landlord
	}
	if offer.Tenant != nil {
		doc.Tenant = *offer.Tenant
	}
	if offer.PreferredPaymentGateway != nil {
		doc.PaymentGateway = string(*offer.PreferredPaymentGateway)
	}

	if s.existing != nil {
		doc.ContractNumber = s.existing.ContractNumber
		doc.ContractDate = s.existing.GeneratedAt
		doc.SignedAt = s.existing.SignedAt
	} else {
		doc.ContractDate = g.now()
		doc.ContractNumber = NewContractNumber(doc.ContractDate)
	}

	if user != nil {
		// The current user fills their own side when the offer does not embed it.
		switch user.ID {
		case doc.Landlord.ID:
			if doc.Landlord.Name == "" {
				doc.Landlord = mergeParty(doc.Landlord, user.AsParty())
			}
		default:
			if doc.Tenant.ID == "" || doc.Tenant.ID == user.ID {
				doc.Tenant = mergeParty(doc.Tenant, user.AsParty())
			}
		}
	}

	doc.TenantSignature = doc.Tenant.Signature
	doc.LandlordSignature = doc.Landlord.Signature
	if doc.TenantSignature == "" && user != nil && user.ID == doc.Tenant.ID {
		doc.TenantSignature = g.fetchSignature(ctx, user.ID)
	}
	if doc.LandlordSignature == "" && user != nil && user.ID == doc.Landlord.ID {
		doc.LandlordSignature = g.fetchSignature(ctx, user.ID)
	}
	if doc.TenantSignature == "" {
		doc.TenantSignature = SignatureUnavailable
	}
	if doc.LandlordSignature == "" {
		doc.LandlordSignature = SignatureUnavailable
	}

	return doc
}

func (g *Generator) fetchSignature(ctx context.Context, userID string) string {
	if g.signatures == nil {
		return ""
	}
	sig, err := g.signatures.GetSignature(ctx, userID)
	if err != nil {
		g.logger.Printf("signature of %s unavailable: %v", userID, err)
		return ""
	}
	return sig
}

func mergeParty(p, from models.Party) models.Party {
	if p.ID == "" {
		p.ID = from.ID
	}
	if p.Name == "" {
		p.Name = from.Name
	}
	if p.Email == "" {
		p.Email = from.Email
	}
	if p.Phone == "" {
		p.Phone = from.Phone
	}
	if p.Address == "" {
		p.Address = from.Address
	}
	return p
}

// NewContractNumber returns RNT/<year>/<month>/<6 random characters>.
func NewContractNumber(at time.Time) string {
	return fmt.Sprintf("RNT/%04d/%02d/%s", at.Year(), int(at.Month()), randomSuffix(6))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("contractdoc: read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = numberSuffixAlphabet[int(b)%len(numberSuffixAlphabet)]
	}
	return string(buf)
}
