package models

import "time"

type Contract struct {
	ID              string     `json:"id"`
	ContractNumber  string     `json:"contractNumber"`
	OfferID         string     `json:"offerId"`
	RentalRequestID string     `json:"rentalRequestId"`
	GeneratedAt     time.Time  `json:"generatedAt"`
	SignedAt        *time.Time `json:"signedAt,omitempty"`
	PDFURL          *string    `json:"pdfUrl,omitempty"`
}

func (c Contract) Signed() bool {
	return c.SignedAt != nil
}

// Eligibility is the server-computed contract readiness of a rental request.
type Eligibility struct {
	CanGenerate bool      `json:"canGenerate"`
	Reason      string    `json:"reason,omitempty"`
	Contract    *Contract `json:"contract,omitempty"`
}

type ContractState int

const (
	ContractNotAvailable ContractState = iota
	ContractUnsigned
	ContractSigned
)

func (s ContractState) String() string {
	switch s {
	case ContractUnsigned:
		return "unsigned"
	case ContractSigned:
		return "signed"
	default:
		return "not available"
	}
}

// State collapses the eligibility into the three states a client acts on.
func (e Eligibility) State() ContractState {
	if e.Contract == nil {
		return ContractNotAvailable
	}
	if e.Contract.Signed() {
		return ContractSigned
	}
	return ContractUnsigned
}
