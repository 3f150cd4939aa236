package models

import (
	"fmt"
	"strings"
	"time"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferRejected OfferStatus = "REJECTED"
	OfferPaid     OfferStatus = "PAID"
)

// IsTerminal reports whether no further transition is possible.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferRejected || s == OfferPaid
}

// CanTransitionTo encodes PENDING -> {ACCEPTED, REJECTED} and ACCEPTED -> PAID.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	switch s {
	case OfferPending:
		return next == OfferAccepted || next == OfferRejected
	case OfferAccepted:
		return next == OfferPaid
	default:
		return false
	}
}

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferAccepted, OfferRejected, OfferPaid:
		return true
	}
	return false
}

type PaymentGateway string

const (
	GatewayStripe PaymentGateway = "STRIPE"
	GatewayPayU   PaymentGateway = "PAYU"
	GatewayP24    PaymentGateway = "P24"
	GatewayTPay   PaymentGateway = "TPAY"
)

// PaymentGateways returns the selectable gateways in display order.
func PaymentGateways() []PaymentGateway {
	return []PaymentGateway{GatewayStripe, GatewayPayU, GatewayP24, GatewayTPay}
}

func (g PaymentGateway) Valid() bool {
	for _, known := range PaymentGateways() {
		if g == known {
			return true
		}
	}
	return false
}

// ParsePaymentGateway accepts any casing of a known gateway name.
func ParsePaymentGateway(s string) (PaymentGateway, error) {
	g := PaymentGateway(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown payment gateway %q", s)
	}
	return g, nil
}

// Party is the identity data of a landlord or tenant embedded in an offer.
type Party struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type Offer struct {
	ID                      string          `json:"id"`
	RentalRequestID         string          `json:"rentalRequestId"`
	LandlordID              string          `json:"landlordId"`
	TenantID                string          `json:"tenantId"`
	Landlord                *Party          `json:"landlord,omitempty"`
	Tenant                  *Party          `json:"tenant,omitempty"`
	RentAmount              float64         `json:"rentAmount"`
	DepositAmount           float64         `json:"depositAmount"`
	LeaseDuration           int             `json:"leaseDuration"`
	AvailableFrom           time.Time       `json:"availableFrom"`
	PropertyAddress         string          `json:"propertyAddress"`
	PropertyType            string          `json:"propertyType,omitempty"`
	PropertySize            float64         `json:"propertySize,omitempty"`
	Rooms                   int             `json:"rooms,omitempty"`
	Description             string          `json:"description,omitempty"`
	Status                  OfferStatus     `json:"status"`
	PreferredPaymentGateway *PaymentGateway `json:"preferredPaymentGateway,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

type RentalRequest struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	City        string    `json:"city"`
	Budget      float64   `json:"budget"`
	MoveInDate  time.Time `json:"moveInDate"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}
