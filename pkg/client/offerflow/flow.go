// Package offerflow drives a tenant's offers through their lifecycle and the
// contract actions that follow payment.
package offerflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/models"
)

var (
	ErrGatewayRequired  = errors.New("please select a payment gateway")
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrNoAcceptPending  = errors.New("no offer is awaiting confirmation")
	ErrNotPending       = errors.New("offer is no longer pending")
	ErrOfferNotLoaded   = errors.New("offer not found")
	ErrBusy             = errors.New("another action on this offer is in progress")
	ErrSignInProgress   = errors.New("contract signing already in progress")
	ErrNothingToSign    = errors.New("no unsigned contract for this offer")
	ErrContractNotReady = errors.New("contract is not available yet")
)

const (
	defaultSuccessTTL    = 3 * time.Second
	defaultNotAvailable  = "Contract is not available yet"
	genericAcceptFailure = "Failed to accept offer"
)

type API interface {
	MyOffers(ctx context.Context) ([]models.Offer, error)
	Offer(ctx context.Context, id string) (models.Offer, error)
	UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus, gateway *models.PaymentGateway) (models.Offer, error)
	ContractEligibility(ctx context.Context, rentalRequestID string) (models.Eligibility, error)
	SignContract(ctx context.Context, contractID string) (models.Contract, error)
	DownloadContract(ctx context.Context, contractID string) ([]byte, error)
}

type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionSign     Action = "sign"
	ActionDownload Action = "download"
)

// ContractView is what the tenant sees for a paid offer.
type ContractView struct {
	State    models.ContractState
	Reason   string
	Contract *models.Contract
	SignedAt *time.Time
}

type State struct {
	Offers      []models.Offer
	Contracts   map[string]ContractView
	AcceptingID string // offer in the gateway selection step
	Gateway     *models.PaymentGateway
	Signing     map[string]bool
	Error       string
	Success     string
}

type Options struct {
	SuccessTTL time.Duration
}

type Flow struct {
	api  API
	opts Options
	log  interface {
		Printf(string, ...any)
	}

	mu          sync.Mutex
	offers      []models.Offer
	eligibility map[string]models.Eligibility // by offer id, PAID offers only
	accepting   string
	gateway     *models.PaymentGateway
	busy        map[string]bool
	signing     map[string]bool
	errMsg      string
	success     string
	successSeq  int
	changed     chan struct{}
}

func New(client API, opts Options) *Flow {
	if opts.SuccessTTL <= 0 {
		opts.SuccessTTL = defaultSuccessTTL
	}
	return &Flow{
		api:         client,
		opts:        opts,
		log:         log.New(log.Writer(), "[offerflow] ", log.LstdFlags),
		eligibility: make(map[string]models.Eligibility),
		busy:        make(map[string]bool),
		signing:     make(map[string]bool),
		changed:     make(chan struct{}, 1),
	}
}

// Changed fires after any state change. Notifications coalesce.
func (f *Flow) Changed() <-chan struct{} {
	return f.changed
}

func (f *Flow) notify() {
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		Offers:      append([]models.Offer(nil), f.offers...),
		Contracts:   make(map[string]ContractView, len(f.eligibility)),
		AcceptingID: f.accepting,
		Signing:     make(map[string]bool, len(f.signing)),
		Error:       f.errMsg,
		Success:     f.success,
	}
	if f.gateway != nil {
		g := *f.gateway
		st.Gateway = &g
	}
	for id := range f.eligibility {
		st.Contracts[id] = f.contractViewLocked(id)
	}
	for id, v := range f.signing {
		if v {
			st.Signing[id] = true
		}
	}
	return st
}

func (f *Flow) ClearError() {
	f.mu.Lock()
	f.errMsg = ""
	f.mu.Unlock()
	f.notify()
}

func (f *Flow) failLocked(err error, fallback string) {
	f.errMsg = api.ServerMessage(err, fallback)
	f.success = ""
}

// succeedLocked shows msg and schedules it to disappear.
func (f *Flow) succeedLocked(msg string) {
	f.errMsg = ""
	f.success = msg
	f.successSeq++
	seq := f.successSeq
	time.AfterFunc(f.opts.SuccessTTL, func() {
		f.mu.Lock()
		if f.successSeq != seq {
			f.mu.Unlock()
			return
		}
		f.success = ""
		f.mu.Unlock()
		f.notify()
	})
}

func (f *Flow) offerLocked(id string) (int, bool) {
	for i := range f.offers {
		if f.offers[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Load fetches the tenant's offers and the contract status of every paid one.
func (f *Flow) Load(ctx context.Context) error {
	offers, err := f.api.MyOffers(ctx)
	if err != nil {
		f.mu.Lock()
		f.failLocked(err, "Failed to load offers")
		f.mu.Unlock()
		f.notify()
		return err
	}

	f.mu.Lock()
	f.offers = offers
	f.eligibility = make(map[string]models.Eligibility)
	f.mu.Unlock()

	for _, o := range offers {
		if o.Status == models.OfferPaid {
			f.loadEligibility(ctx, o)
		}
	}
	f.notify()
	return nil
}

// Refresh re-fetches one offer. This is how a PAID transition becomes visible.
func (f *Flow) Refresh(ctx context.Context, offerID string) error {
	o, err := f.api.Offer(ctx, offerID)
	if err != nil {
		f.mu.Lock()
		f.failLocked(err, "Failed to load offer")
		f.mu.Unlock()
		f.notify()
		return err
	}
	f.replace(o)
	if o.Status == models.OfferPaid {
		f.loadEligibility(ctx, o)
	}
	f.notify()
	return nil
}

func (f *Flow) replace(o models.Offer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.offerLocked(o.ID); ok {
		f.offers[i] = o
		return
	}
	f.offers = append(f.offers, o)
}

func (f *Flow) loadEligibility(ctx context.Context, o models.Offer) {
	el, err := f.api.ContractEligibility(ctx, o.RentalRequestID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.log.Printf("eligibility for offer %s: %v", o.ID, err)
		el = models.Eligibility{Reason: api.ServerMessage(err, defaultNotAvailable)}
	}
	f.eligibility[o.ID] = el
}

// BeginAccept opens the gateway selection step for a pending offer.
func (f *Flow) BeginAccept(offerID string) error {
	f.mu.Lock()
	defer f.notify()
	defer f.mu.Unlock()

	i, ok := f.offerLocked(offerID)
	if !ok {
		return ErrOfferNotLoaded
	}
	if f.offers[i].Status != models.OfferPending {
		f.errMsg = ErrNotPending.Error()
		return ErrNotPending
	}
	f.accepting = offerID
	f.gateway = nil
	return nil
}

func (f *Flow) SelectGateway(g models.PaymentGateway) error {
	f.mu.Lock()
	defer f.notify()
	defer f.mu.Unlock()

	if f.accepting == "" {
		return ErrNoAcceptPending
	}
	if !g.Valid() {
		return ErrUnknownGateway
	}
	f.gateway = &g
	if f.errMsg == ErrGatewayRequired.Error() {
		f.errMsg = ""
	}
	return nil
}

// CancelAccept leaves the offer untouched and forgets the selection.
func (f *Flow) CancelAccept() {
	f.mu.Lock()
	f.accepting = ""
	f.gateway = nil
	f.mu.Unlock()
	f.notify()
}

// ConfirmAccept issues the ACCEPTED transition with the selected gateway.
// Without a gateway it fails locally and nothing is sent.
func (f *Flow) ConfirmAccept(ctx context.Context) error {
	f.mu.Lock()
	id := f.accepting
	if id == "" {
		f.mu.Unlock()
		return ErrNoAcceptPending
	}
	if f.gateway == nil {
		f.errMsg = ErrGatewayRequired.Error()
		f.mu.Unlock()
		f.notify()
		return ErrGatewayRequired
	}
	if f.busy[id] {
		f.mu.Unlock()
		return ErrBusy
	}
	g := *f.gateway
	f.busy[id] = true
	f.mu.Unlock()

	updated, err := f.api.UpdateOfferStatus(ctx, id, models.OfferAccepted, &g)

	f.mu.Lock()
	delete(f.busy, id)
	if err != nil {
		// The selection stays so the tenant can retry.
		f.failLocked(err, genericAcceptFailure)
	} else {
		if i, ok := f.offerLocked(id); ok {
			f.offers[i] = updated
		}
		f.accepting = ""
		f.gateway = nil
		f.succeedLocked("Offer accepted")
	}
	f.mu.Unlock()
	f.notify()
	return err
}

// Reject is single step and final.
func (f *Flow) Reject(ctx context.Context, offerID string) error {
	f.mu.Lock()
	i, ok := f.offerLocked(offerID)
	switch {
	case !ok:
		f.mu.Unlock()
		return ErrOfferNotLoaded
	case f.offers[i].Status != models.OfferPending:
		f.errMsg = ErrNotPending.Error()
		f.mu.Unlock()
		f.notify()
		return ErrNotPending
	case f.busy[offerID]:
		f.mu.Unlock()
		return ErrBusy
	}
	f.busy[offerID] = true
	f.mu.Unlock()

	updated, err := f.api.UpdateOfferStatus(ctx, offerID, models.OfferRejected, nil)

	f.mu.Lock()
	delete(f.busy, offerID)
	if err != nil {
		f.failLocked(err, "Failed to reject offer")
	} else {
		if i, ok := f.offerLocked(offerID); ok {
			f.offers[i] = updated
		}
		if f.accepting == offerID {
			f.accepting = ""
			f.gateway = nil
		}
		f.succeedLocked("Offer rejected")
	}
	f.mu.Unlock()
	f.notify()
	return err
}

func (f *Flow) contractViewLocked(offerID string) ContractView {
	el, ok := f.eligibility[offerID]
	if !ok {
		return ContractView{State: models.ContractNotAvailable, Reason: defaultNotAvailable}
	}
	v := ContractView{State: el.State(), Reason: el.Reason}
	if el.Contract != nil {
		c := *el.Contract
		v.Contract = &c
		v.SignedAt = c.SignedAt
	}
	if v.State == models.ContractNotAvailable && v.Reason == "" {
		v.Reason = defaultNotAvailable
	}
	return v
}

func (f *Flow) ContractView(offerID string) ContractView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contractViewLocked(offerID)
}

// Actions lists what the tenant may do with an offer right now.
func (f *Flow) Actions(offerID string) []Action {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, ok := f.offerLocked(offerID)
	if !ok {
		return nil
	}
	switch f.offers[i].Status {
	case models.OfferPending:
		return []Action{ActionAccept, ActionReject}
	case models.OfferPaid:
		switch f.contractViewLocked(offerID).State {
		case models.ContractUnsigned:
			if f.signing[offerID] {
				return []Action{ActionDownload}
			}
			return []Action{ActionSign, ActionDownload}
		case models.ContractSigned:
			return []Action{ActionDownload}
		}
	}
	return nil
}

// Sign signs the offer's contract. The signing flag is held until the
// refreshed state has been loaded.
func (f *Flow) Sign(ctx context.Context, offerID string) error {
	f.mu.Lock()
	if f.signing[offerID] {
		f.mu.Unlock()
		return ErrSignInProgress
	}
	view := f.contractViewLocked(offerID)
	if view.State != models.ContractUnsigned {
		f.mu.Unlock()
		return ErrNothingToSign
	}
	f.signing[offerID] = true
	f.mu.Unlock()
	f.notify()

	defer func() {
		f.mu.Lock()
		delete(f.signing, offerID)
		f.mu.Unlock()
		f.notify()
	}()

	if _, err := f.api.SignContract(ctx, view.Contract.ID); err != nil {
		f.mu.Lock()
		f.failLocked(err, "Failed to sign contract")
		f.mu.Unlock()
		return err
	}
	if err := f.Refresh(ctx, offerID); err != nil {
		return err
	}

	f.mu.Lock()
	f.succeedLocked("Contract signed")
	f.mu.Unlock()
	return nil
}

// Download returns the rendered contract of a paid offer.
func (f *Flow) Download(ctx context.Context, offerID string) ([]byte, error) {
	f.mu.Lock()
	view := f.contractViewLocked(offerID)
	f.mu.Unlock()

	if view.Contract == nil {
		return nil, ErrContractNotReady
	}
	doc, err := f.api.DownloadContract(ctx, view.Contract.ID)
	if err != nil {
		f.mu.Lock()
		f.failLocked(err, "Failed to download contract")
		f.mu.Unlock()
		f.notify()
		return nil, err
	}
	return doc, nil
}
