package notify

import (
	"fmt"
	"html"
	"log"

	"rentmarket/pkg/models"
)

// Notifier sends best-effort e-mails about offer and contract transitions.
// Failures are logged and never returned to the caller.
type Notifier struct {
	es     EmailService
	logger interface {
		Printf(string, ...any)
	}
}

func NewNotifier(es EmailService) *Notifier {
	return &Notifier{
		es:     es,
		logger: log.New(log.Writer(), "[notify] ", log.LstdFlags),
	}
}

var statusSubjects = map[models.OfferStatus]string{
	models.OfferAccepted: "Your offer was accepted",
	models.OfferRejected: "Your offer was rejected",
	models.OfferPaid:     "Payment received for your offer",
}

// OfferStatusChanged tells the landlord what happened to the offer.
func (n *Notifier) OfferStatusChanged(offer models.Offer, landlord models.Party) {
	subject, ok := statusSubjects[offer.Status]
	if !ok || landlord.Email == "" {
		return
	}

	plain := fmt.Sprintf("The offer for %s (%.2f per month) is now %s.", offer.PropertyAddress, offer.RentAmount, offer.Status)
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px;">
			<h2>%s</h2>
			<p>The offer for <b>%s</b> is now <b>%s</b>.</p>
		</div>
	`, html.EscapeString(subject), html.EscapeString(offer.PropertyAddress), offer.Status)

	if err := n.es.SendEmail(subject, landlord.Email, plain, body); err != nil {
		n.logger.Printf("offer %s status mail to %s failed: %v", offer.ID, landlord.Email, err)
	}
}

// ContractSigned informs both parties that the contract was signed.
func (n *Notifier) ContractSigned(contract models.Contract, parties ...models.Party) {
	subject := "Contract " + contract.ContractNumber + " signed"
	plain := fmt.Sprintf("Contract %s has been signed.", contract.ContractNumber)
	body := fmt.Sprintf(`<p>Contract <b>%s</b> has been signed.</p>`, html.EscapeString(contract.ContractNumber))

	for _, p := range parties {
		if p.Email == "" {
			continue
		}
		if err := n.es.SendEmail(subject, p.Email, plain, body); err != nil {
			n.logger.Printf("contract %s signed mail to %s failed: %v", contract.ID, p.Email, err)
		}
	}
}
