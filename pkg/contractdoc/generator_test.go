package contractdoc

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/models"
)

type mockSignatureSource struct {
	mock.Mock
}

func (m *mockSignatureSource) GetSignature(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func sampleOffer() models.Offer {
	gw := models.GatewayP24
	return models.Offer{
		ID:                      "o1",
		RentalRequestID:         "r1",
		LandlordID:              "landlord",
		TenantID:                "tenant",
		Landlord:                &models.Party{ID: "landlord", Name: "Lena Landlord", Signature: "data:image/png;base64,TEFORA=="},
		Tenant:                  &models.Party{ID: "tenant", Name: "Tom Tenant"},
		RentAmount:              3100,
		DepositAmount:           6200,
		LeaseDuration:           12,
		AvailableFrom:           time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		PropertyAddress:         "Dluga 5, Gdansk",
		Status:                  models.OfferPaid,
		PreferredPaymentGateway: &gw,
	}
}

var numberPattern = regexp.MustCompile(`^RNT/\d{4}/\d{2}/[A-Z2-9]{6}$`)

func TestGenerate_FreshNumberEachTime(t *testing.T) {
	g := NewGenerator(nil)

	a := g.Generate(context.Background(), sampleOffer(), nil)
	b := g.Generate(context.Background(), sampleOffer(), nil)

	require.Regexp(t, numberPattern, a.ContractNumber)
	require.Regexp(t, numberPattern, b.ContractNumber)
	require.NotEqual(t, a.ContractNumber, b.ContractNumber)
	require.Equal(t, time.Date(2027, 11, 1, 0, 0, 0, 0, time.UTC), a.EndDate)
	require.Equal(t, "P24", a.PaymentGateway)
}

func TestGenerate_WithExistingReusesNumberAndDate(t *testing.T) {
	g := NewGenerator(nil)
	signed := time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)
	prior := models.Contract{
		ContractNumber: "RNT/2026/09/ABCDEF",
		GeneratedAt:    time.Date(2026, 9, 30, 9, 0, 0, 0, time.UTC),
		SignedAt:       &signed,
	}

	doc := g.Generate(context.Background(), sampleOffer(), nil, WithExisting(prior))

	require.Equal(t, prior.ContractNumber, doc.ContractNumber)
	require.Equal(t, prior.GeneratedAt, doc.ContractDate)
	require.Equal(t, &signed, doc.SignedAt)
}

func TestGenerate_FetchesMissingTenantSignature(t *testing.T) {
	src := new(mockSignatureSource)
	g := NewGenerator(src)
	src.On("GetSignature", mock.Anything, "tenant").Return("data:image/png;base64,VEVOQU5U", nil)

	doc := g.Generate(context.Background(), sampleOffer(), &models.User{ID: "tenant", Name: "Tom Tenant"})

	require.Equal(t, "data:image/png;base64,VEVOQU5U", doc.TenantSignature)
	require.Equal(t, "data:image/png;base64,TEFORA==", doc.LandlordSignature)
	src.AssertExpectations(t)
}

func TestGenerate_SignatureFailureIsSwallowed(t *testing.T) {
	src := new(mockSignatureSource)
	g := NewGenerator(src)
	src.On("GetSignature", mock.Anything, "tenant").Return("", errors.New("timeout"))

	doc := g.Generate(context.Background(), sampleOffer(), &models.User{ID: "tenant"})

	require.Equal(t, SignatureUnavailable, doc.TenantSignature)
	require.NotEmpty(t, doc.ContractNumber)
}

func TestGenerate_EmbeddedSignatureSkipsFetch(t *testing.T) {
	src := new(mockSignatureSource)
	g := NewGenerator(src)
	offer := sampleOffer()
	offer.Tenant.Signature = "data:image/png;base64,RU1CRURERUQ="

	doc := g.Generate(context.Background(), offer, &models.User{ID: "tenant"})

	require.Equal(t, offer.Tenant.Signature, doc.TenantSignature)
	src.AssertNotCalled(t, "GetSignature", mock.Anything, mock.Anything)
}

func TestGenerate_UserFillsMissingTenantIdentity(t *testing.T) {
	g := NewGenerator(nil)
	offer := sampleOffer()
	offer.Tenant = nil

	doc := g.Generate(context.Background(), offer, &models.User{ID: "tenant", Name: "Tom Tenant", Email: "tom@example.com"})

	require.Equal(t, "Tom Tenant", doc.Tenant.Name)
	require.Equal(t, "tom@example.com", doc.Tenant.Email)
	require.Equal(t, SignatureUnavailable, doc.TenantSignature)
}
