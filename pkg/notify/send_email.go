package notify

import (
	"errors"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailService interface {
	SendEmail(subject, toEmail, plainTextContent, htmlContent string) error
}

type sendgridService struct {
	client      *sendgrid.Client
	senderEmail string
	senderName  string
}

func NewSendgridService(apiKey, senderEmail, senderName string) EmailService {
	return &sendgridService{
		client:      sendgrid.NewSendClient(apiKey),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (e *sendgridService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	response, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return errors.New("failed to send email")
	}
	return nil
}

// discardService is used when no SENDGRID_API_KEY is configured.
type discardService struct{}

func (discardService) SendEmail(string, string, string, string) error { return nil }

func NewDiscardService() EmailService { return discardService{} }
