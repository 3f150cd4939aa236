package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"rentmarket/pkg/models"
)

type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Phone    string      `json:"phone,omitempty"`
	Address  string      `json:"address,omitempty"`
}

// Upload is a file sent as the multipart "attachment" field.
type Upload struct {
	Name   string
	Reader io.Reader
}

type SendMessageInput struct {
	Content    string
	ReplyToID  *string
	Attachment *Upload
}

type RentalRequestInput struct {
	City        string  `json:"city"`
	Budget      float64 `json:"budget"`
	MoveInDate  string  `json:"moveInDate"`
	Description string  `json:"description,omitempty"`
}

type RentalRequestPage struct {
	Items []models.RentalRequest `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

type OfferInput struct {
	RentalRequestID string  `json:"rentalRequestId"`
	RentAmount      float64 `json:"rentAmount"`
	DepositAmount   float64 `json:"depositAmount,omitempty"`
	LeaseDuration   int     `json:"leaseDuration"`
	AvailableFrom   string  `json:"availableFrom"`
	PropertyAddress string  `json:"propertyAddress"`
	PropertyType    string  `json:"propertyType,omitempty"`
	PropertySize    float64 `json:"propertySize,omitempty"`
	Rooms           int     `json:"rooms,omitempty"`
	Description     string  `json:"description,omitempty"`
}

type signatureBody struct {
	Signature string `json:"signature"`
}

type statusUpdate struct {
	Status                  models.OfferStatus     `json:"status"`
	PreferredPaymentGateway *models.PaymentGateway `json:"preferredPaymentGateway,omitempty"`
}

// Login authenticates and stores the token and user in the session.
func (c *Client) Login(ctx context.Context, email, password string) (models.User, error) {
	res, err := call[LoginResult](c.request(ctx).SetBody(map[string]string{
		"email":    email,
		"password": password,
	}), http.MethodPost, "/auth/login")
	if err != nil {
		return models.User{}, err
	}
	if err := c.session.Login(res.Token, res.User); err != nil {
		return models.User{}, err
	}
	return res.User, nil
}

func (c *Client) Logout() error {
	return c.session.Logout()
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	return call[models.User](c.request(ctx).SetBody(in), http.MethodPost, "/auth/register")
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	return call[models.User](c.request(ctx), http.MethodGet, "/users/me")
}

// Signature returns the caller's stored signature image.
func (c *Client) Signature(ctx context.Context) (string, error) {
	sig, err := call[signatureBody](c.request(ctx), http.MethodGet, "/users/me/signature")
	return sig.Signature, err
}

func (c *Client) SetSignature(ctx context.Context, dataURL string) error {
	_, err := call[any](c.request(ctx).SetBody(signatureBody{Signature: dataURL}), http.MethodPut, "/users/me/signature")
	return err
}

func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	return call[[]models.Conversation](c.request(ctx), http.MethodGet, "/messaging/conversations")
}

func (c *Client) StartConversation(ctx context.Context, peerID string) (models.Conversation, error) {
	return call[models.Conversation](c.request(ctx).SetBody(map[string]string{"userId": peerID}), http.MethodPost, "/messaging/conversations")
}

func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) (models.MessagePage, error) {
	return call[models.MessagePage](c.request(ctx).
		SetPathParam("id", conversationID).
		SetQueryParams(map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		}), http.MethodGet, "/messaging/conversations/{id}/messages")
}

// SendMessage posts JSON, or multipart when an attachment is present.
func (c *Client) SendMessage(ctx context.Context, conversationID string, in SendMessageInput) (models.Message, error) {
	r := c.request(ctx).SetPathParam("id", conversationID)
	if in.Attachment != nil {
		form := map[string]string{"content": in.Content}
		if in.ReplyToID != nil {
			form["replyToId"] = *in.ReplyToID
		}
		r.SetFormData(form).SetFileReader("attachment", in.Attachment.Name, in.Attachment.Reader)
	} else {
		r.SetBody(struct {
			Content   string  `json:"content"`
			ReplyToID *string `json:"replyToId,omitempty"`
		}{in.Content, in.ReplyToID})
	}
	return call[models.Message](r, http.MethodPost, "/messaging/conversations/{id}/messages")
}

func (c *Client) MarkRead(ctx context.Context, conversationID string, messageIDs []string) ([]models.ReadReceipt, error) {
	return call[[]models.ReadReceipt](c.request(ctx).
		SetPathParam("id", conversationID).
		SetBody(map[string][]string{"messageIds": messageIDs}), http.MethodPut, "/messaging/conversations/{id}/messages/read")
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	n, err := call[models.UnreadCount](c.request(ctx), http.MethodGet, "/messaging/conversations/unread-count")
	return n.UnreadCount, err
}

func (c *Client) CreateRentalRequest(ctx context.Context, in RentalRequestInput) (models.RentalRequest, error) {
	return call[models.RentalRequest](c.request(ctx).SetBody(in), http.MethodPost, "/rental-requests")
}

func (c *Client) MyRentalRequests(ctx context.Context) ([]models.RentalRequest, error) {
	return call[[]models.RentalRequest](c.request(ctx), http.MethodGet, "/rental-requests/my")
}

func (c *Client) OpenRentalRequests(ctx context.Context, city string, page, limit int) (RentalRequestPage, error) {
	return call[RentalRequestPage](c.request(ctx).SetQueryParams(map[string]string{
		"city":  city,
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}), http.MethodGet, "/rental-requests/open")
}

func (c *Client) CreateOffer(ctx context.Context, in OfferInput) (models.Offer, error) {
	return call[models.Offer](c.request(ctx).SetBody(in), http.MethodPost, "/offers")
}

func (c *Client) MyOffers(ctx context.Context) ([]models.Offer, error) {
	return call[[]models.Offer](c.request(ctx), http.MethodGet, "/offers/my")
}

func (c *Client) Offer(ctx context.Context, id string) (models.Offer, error) {
	return call[models.Offer](c.request(ctx).SetPathParam("id", id), http.MethodGet, "/offers/{id}")
}

func (c *Client) UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error) {
	return call[models.Offer](c.request(ctx).
		SetPathParam("id", id).
		SetBody(statusUpdate{Status: status, PreferredPaymentGateway: gateway}), http.MethodPut, "/offers/{id}/status")
}

// ExportOffers returns the caller's offers as an xlsx workbook.
func (c *Client) ExportOffers(ctx context.Context) ([]byte, error) {
	return raw(c.request(ctx), http.MethodGet, "/offers/my/export")
}

func (c *Client) ContractEligibility(ctx context.Context, rentalRequestID string) (models.Eligibility, error) {
	return call[models.Eligibility](c.request(ctx).SetPathParam("id", rentalRequestID), http.MethodGet, "/contracts/{id}/eligibility")
}

func (c *Client) GenerateContract(ctx context.Context, rentalRequestID string) (models.Contract, error) {
	return call[models.Contract](c.request(ctx).SetPathParam("id", rentalRequestID), http.MethodPost, "/contracts/generate/{id}")
}

func (c *Client) SignContract(ctx context.Context, contractID string) (models.Contract, error) {
	return call[models.Contract](c.request(ctx).SetPathParam("id", contractID), http.MethodPost, "/contracts/sign/{id}")
}

// PreviewContract returns the rendered HTML of the offer's contract.
func (c *Client) PreviewContract(ctx context.Context, offerID string) ([]byte, error) {
	return raw(c.request(ctx).SetPathParam("id", offerID), http.MethodGet, "/contracts/preview/{id}")
}

func (c *Client) DownloadContract(ctx context.Context, contractID string) ([]byte, error) {
	return raw(c.request(ctx).SetPathParam("id", contractID), http.MethodGet, "/contracts/download/{id}")
}
