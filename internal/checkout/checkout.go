// Package checkout orchestrates order submission: the Editing →
// Submitting → Finalized | Failed state machine, the guest and
// registered flow variants, form prefill persistence, the discount
// lifecycle within the checkout screen, and the upsell auto-trigger.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/backendapi"
	"orderflow/internal/background"
	"orderflow/internal/cart"
	"orderflow/internal/discount"
	"orderflow/internal/localstore"
	"orderflow/internal/loyalty"
	"orderflow/internal/model"
	"orderflow/internal/upsell"
)

// State is the submission lifecycle position.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateFinalized  State = "finalized"
	StateFailed     State = "failed" // form re-enabled, user may retry
)

// Mode distinguishes the two flow variants.
type Mode string

const (
	ModeGuest      Mode = "guest"
	ModeRegistered Mode = "registered"
)

// NavContext is what the confirmation screen receives: the flow mode,
// the rendered message and its deep link, and how long the screen
// lingers before redirecting home.
type NavContext struct {
	Mode          Mode          `json:"mode"`
	OrderCode     string        `json:"orderCode,omitempty"`
	Message       string        `json:"message"`
	DeepLink      string        `json:"deepLink"`
	RedirectDelay time.Duration `json:"redirectDelay"`
}

// Navigator receives the confirmed transition to the confirmation
// screen. The machine clears the cart only after this returns.
type Navigator interface {
	ToConfirmation(nc NavContext)
}

// LinkOpener opens the messaging deep link in a new context
// (the window.open analog).
type LinkOpener interface {
	Open(url string) error
}

// OrderAPI is the slice of the backend client the machine needs for
// order creation.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *backendapi.CreateOrderRequest) (*model.Order, error)
}

// UserAPI is the slice of the backend client used by the registered
// flow's best-effort profile and loyalty sync.
type UserAPI interface {
	UpdateProfile(ctx context.Context, userID string, upd *backendapi.ProfileUpdate) error
	RegisterPurchase(ctx context.Context, userID string, purchase *model.StoredPurchase) error
	RecordRedemption(ctx context.Context, userID string, redemption *model.DiscountRedemption) error
	ListDiscountCodes(ctx context.Context) ([]model.DiscountCode, error)
}

// Config carries the flow constants. Zero durations take the
// production defaults; tests shrink them.
type Config struct {
	StoreCode     string
	WhatsAppPhone string

	GuestFloor         time.Duration // min elapsed before guest navigation, default 3s
	RegisteredFloor    time.Duration // same for registered, default 2s
	GuestRedirect      time.Duration // confirmation redirect delay, default 4s
	RegisteredRedirect time.Duration // default 6s
	UpsellDelay        time.Duration // delay before the auto-triggered prompt, default 400ms

	PromoItem *model.Product // nil disables the upsell auto-trigger

	Now func() time.Time // nil → time.Now
}

func (c Config) withDefaults() Config {
	if c.GuestFloor == 0 {
		c.GuestFloor = 3 * time.Second
	}
	if c.RegisteredFloor == 0 {
		c.RegisteredFloor = 2 * time.Second
	}
	if c.GuestRedirect == 0 {
		c.GuestRedirect = 4 * time.Second
	}
	if c.RegisteredRedirect == 0 {
		c.RegisteredRedirect = 6 * time.Second
	}
	if c.UpsellDelay == 0 {
		c.UpsellDelay = 400 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the injected collaborators. Cart, Selection, Orders,
// Runner, Store and Logger are required; the rest are optional.
type Deps struct {
	Cart      *cart.Store
	Selection *discount.Selection
	Orders    OrderAPI
	Users     UserAPI // nil for guest-only deployments
	Runner    *background.Runner
	Store     *localstore.Store
	Upsell    *upsell.Controller // nil disables upsell entirely
	Loyalty   *loyalty.Tracker   // nil skips the local counter
	Nav       Navigator
	Links     LinkOpener
	Logger    *slog.Logger
}

// Machine is the checkout state machine for one session.
type Machine struct {
	cfg      Config
	deps     Deps
	identity Identity
	session  *Session

	mu           sync.Mutex
	state        State
	codes        []model.DiscountCode
	codesFetched bool
	submitStart  time.Time
}

// NewMachine builds an Editing-state machine for the given identity.
func NewMachine(cfg Config, deps Deps, identity Identity, session *Session) *Machine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if session == nil {
		session = NewSession()
	}
	return &Machine{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		identity: identity,
		session:  session,
		state:    StateEditing,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the machine's session state.
func (m *Machine) Session() *Session {
	return m.session
}

// === Mount-time discount lifecycle ===

// Mount runs the checkout-screen entry work: a one-time discount code
// fetch for registered users, then either auto-applying the session's
// pending code or revalidating the current selection against the
// fresh snapshot.
func (m *Machine) Mount(ctx context.Context) {
	if m.identity.Registered && m.deps.Users != nil {
		m.mu.Lock()
		fetched := m.codesFetched
		m.mu.Unlock()
		if !fetched {
			codes, err := m.deps.Users.ListDiscountCodes(ctx)
			if err != nil {
				m.deps.Logger.Warn("discount code fetch failed", "error", err)
			} else {
				m.mu.Lock()
				m.codes = codes
				m.codesFetched = true
				m.mu.Unlock()
			}
		}
	}

	if pending := m.session.TakePendingDiscount(); pending != "" {
		m.ApplyCode(pending)
		return
	}
	m.RevalidateDiscount()
}

// SetCodes primes the discount-code snapshot without a fetch, e.g.
// codes carried into a guest session by a shared link.
func (m *Machine) SetCodes(codes []model.DiscountCode) {
	m.mu.Lock()
	m.codes = codes
	m.codesFetched = true
	m.mu.Unlock()
}

// ApplyCode resolves raw against the cached code snapshot and the
// current subtotal, recording it as the selection when applied.
// Failed resolutions come back as feedback outcomes, never errors.
func (m *Machine) ApplyCode(raw string) discount.Resolution {
	m.mu.Lock()
	codes := m.codes
	m.mu.Unlock()

	res := discount.ResolveByCode(codes, raw, m.deps.Cart.Subtotal(), m.cfg.Now())
	m.deps.Selection.Apply(res)
	return res
}

// RemoveDiscount drops the current selection.
func (m *Machine) RemoveDiscount() {
	m.deps.Selection.Clear()
}

// RevalidateDiscount rechecks the selection against the cached codes
// and the current subtotal. Returns true when a stale selection was
// cleared. Called on mount and after every cart mutation.
func (m *Machine) RevalidateDiscount() bool {
	m.mu.Lock()
	codes := m.codes
	m.mu.Unlock()

	cleared := m.deps.Selection.Revalidate(codes, m.deps.Cart.Subtotal(), m.cfg.Now())
	if cleared {
		m.deps.Logger.Info("discount selection no longer valid, cleared")
	}
	return cleared
}

// OnCartChanged is the subtotal-change hook. Reports whether a stale
// selection was cleared.
func (m *Machine) OnCartChanged() bool {
	return m.RevalidateDiscount()
}

// Totals returns gross, discount amount, applied code, and net.
func (m *Machine) Totals() (gross, discountAmount int64, code string, net int64) {
	gross = m.deps.Cart.Subtotal()
	if applied, ok := m.deps.Selection.Current(); ok {
		discountAmount = applied.Amount
		code = applied.Code.Code
	}
	return gross, discountAmount, code, gross - discountAmount
}

// === Form prefill ===

// PrefillForm reads the persisted form values through the identity's
// fallback key chain. Missing storage degrades to an empty form.
func (m *Machine) PrefillForm() (model.OrderForm, bool) {
	var form model.OrderForm
	chain := localstore.NewChain(m.deps.Store, ProfileKeys(m.identity)...)
	_, ok := chain.ReadFirst(&form)
	return form, ok
}

// === Upsell auto-trigger ===

// OnInputFocus fires the one-shot upsell auto-trigger: registered
// users only, at most once per session, and only while a promo item
// is configured. prepare (blur + scroll) runs to completion before
// the prompt shows. Returns whether the prompt was shown.
func (m *Machine) OnInputFocus(prepare func()) bool {
	if !m.identity.Registered || m.cfg.PromoItem == nil || m.deps.Upsell == nil {
		return false
	}
	if !m.session.markFocus() {
		return false
	}
	if m.cfg.UpsellDelay > 0 {
		time.Sleep(m.cfg.UpsellDelay)
	}
	if prepare != nil {
		prepare()
	}
	return m.deps.Upsell.Show(*m.cfg.PromoItem)
}

// === Submission ===

// Submit runs the full submission flow and returns the confirmation
// context on success. A submit while another is in flight returns
// ErrSubmitInFlight; validation failures return before any state or
// side effect. On a registered-flow creation failure the cart is
// untouched and the machine re-enables for retry.
func (m *Machine) Submit(ctx context.Context, form model.OrderForm) (*NavContext, error) {
	m.mu.Lock()
	if m.state == StateSubmitting {
		m.mu.Unlock()
		return nil, model.ErrSubmitInFlight
	}
	if !form.Valid() {
		m.mu.Unlock()
		return nil, model.NewValidationError("form", "missing or invalid required fields")
	}
	if m.deps.Cart.Empty() {
		m.mu.Unlock()
		return nil, model.NewValidationError("cart", "cart is empty")
	}
	m.state = StateSubmitting
	m.submitStart = m.cfg.Now()
	start := m.submitStart
	m.mu.Unlock()

	lines := m.deps.Cart.Items()
	gross := m.deps.Cart.Subtotal()
	applied, hasDiscount := m.deps.Selection.Current()
	net := gross
	if hasDiscount {
		net = gross - applied.Amount
	}

	items := buildOrderItems(lines)
	snapshot := buildSnapshot(lines, net, m.cfg.Now())

	// Persist form values under every candidate key so future
	// sessions prefill even before authentication resolves.
	localstore.NewChain(m.deps.Store, ProfileKeys(m.identity)...).WriteAll(form)

	req := &backendapi.CreateOrderRequest{
		CustomerName:  form.Name,
		CustomerEmail: form.Email,
		CustomerPhone: form.Phone,
		Delivery:      model.Delivery{AddressLine: form.Address, Notes: form.Notes},
		PaymentMethod: form.PaymentMethod,
		Items:         items,
		TotalGross:    gross,
	}
	if hasDiscount {
		req.TotalNet = &net
		req.DiscountCode = applied.Code.Code
		req.DiscountTotal = applied.Amount
	}

	data := MessageData{
		Form:          form,
		Items:         items,
		TotalGross:    gross,
		TotalNet:      net,
		PromoAccepted: m.deps.Upsell != nil && m.deps.Upsell.Accepted(),
		SenderName:    m.identity.DisplayName,
	}
	if hasDiscount {
		data.DiscountCode = applied.Code.Code
		data.DiscountAmount = applied.Amount
	}
	if data.SenderName == "" {
		data.SenderName = form.Name
	}

	if m.identity.Registered {
		return m.submitRegistered(ctx, start, req, data, form, snapshot)
	}
	return m.submitGuest(ctx, start, req, data, snapshot)
}

// submitGuest fires the creation call without awaiting it, builds the
// message from local data only (no order ID exists client-side), and
// navigates after the guest floor.
func (m *Machine) submitGuest(ctx context.Context, start time.Time, req *backendapi.CreateOrderRequest, data MessageData, snapshot model.StoredPurchase) (*NavContext, error) {
	localGross, localNet := req.TotalGross, data.TotalNet

	m.deps.Runner.Go(context.WithoutCancel(ctx), "guest order creation", func(ctx context.Context) error {
		order, err := m.deps.Orders.CreateOrder(ctx, req)
		if err != nil {
			return err
		}
		// The customer already saw locally-computed totals. If the
		// backend disagrees, flag the gap; never rewrite either side.
		if order.TotalGross != localGross || (order.TotalNet != 0 && order.TotalNet != localNet) {
			m.deps.Logger.Warn("order total reconciliation gap",
				"order_id", order.ID,
				"local_gross", localGross,
				"remote_gross", order.TotalGross,
				"local_net", localNet,
				"remote_net", order.TotalNet)
		}
		return nil
	})

	msg := BuildMessage(data)
	link := DeepLink(m.cfg.WhatsAppPhone, msg)

	if err := m.waitFloor(ctx, start, m.cfg.GuestFloor); err != nil {
		m.setState(StateFailed)
		return nil, err
	}

	nc := NavContext{
		Mode:          ModeGuest,
		Message:       msg,
		DeepLink:      link,
		RedirectDelay: m.cfg.GuestRedirect,
	}
	m.completeNavigation(nc, snapshot, link, true)
	return &nc, nil
}

// submitRegistered awaits creation, rebuilds the message around the
// server-assigned order code, fires the best-effort profile and
// loyalty sync, and navigates after the registered floor.
func (m *Machine) submitRegistered(ctx context.Context, start time.Time, req *backendapi.CreateOrderRequest, data MessageData, form model.OrderForm, snapshot model.StoredPurchase) (*NavContext, error) {
	order, err := m.deps.Orders.CreateOrder(ctx, req)
	if err != nil {
		m.setState(StateFailed)
		return nil, fmt.Errorf("creating order: %w", err)
	}

	code := model.FormatOrderCode(m.cfg.StoreCode, order.Number)
	data.OrderCode = code
	msg := BuildMessage(data)
	link := DeepLink(m.cfg.WhatsAppPhone, msg)

	if m.deps.Users != nil && m.identity.UserID != "" {
		bg := context.WithoutCancel(ctx)
		userID := m.identity.UserID
		upd := profileUpdateFromForm(form)
		m.deps.Runner.Go(bg, "profile update", func(ctx context.Context) error {
			return m.deps.Users.UpdateProfile(ctx, userID, upd)
		})
		purchase := snapshot
		m.deps.Runner.Go(bg, "purchase registration", func(ctx context.Context) error {
			return m.deps.Users.RegisterPurchase(ctx, userID, &purchase)
		})
		if req.DiscountCode != "" {
			redemption := model.DiscountRedemption{
				Code:         req.DiscountCode,
				ValueApplied: req.DiscountTotal,
				RedeemedAt:   m.cfg.Now(),
				OrderID:      order.ID,
			}
			m.deps.Runner.Go(bg, "redemption recording", func(ctx context.Context) error {
				return m.deps.Users.RecordRedemption(ctx, userID, &redemption)
			})
		}
	}
	if m.deps.Loyalty != nil {
		m.deps.Loyalty.RecordPurchase()
	}

	if err := m.waitFloor(ctx, start, m.cfg.RegisteredFloor); err != nil {
		m.setState(StateFailed)
		return nil, err
	}

	nc := NavContext{
		Mode:          ModeRegistered,
		OrderCode:     code,
		Message:       msg,
		DeepLink:      link,
		RedirectDelay: m.cfg.RegisteredRedirect,
	}
	m.completeNavigation(nc, snapshot, link, false)
	return &nc, nil
}

// completeNavigation persists the purchase snapshot, performs the
// confirmed transition, and only then clears cart and selection.
func (m *Machine) completeNavigation(nc NavContext, snapshot model.StoredPurchase, link string, openLink bool) {
	localstore.NewChain(m.deps.Store, PurchaseKeys(m.identity)...).WriteAll(snapshot)
	m.session.SetLastOrder(nc)

	if openLink && m.deps.Links != nil {
		if err := m.deps.Links.Open(link); err != nil {
			m.deps.Logger.Warn("opening deep link failed", "error", err)
		}
	}
	if m.deps.Nav != nil {
		m.deps.Nav.ToConfirmation(nc)
	}

	m.deps.Cart.Clear()
	m.deps.Selection.Clear()
	m.setState(StateFinalized)
}

// waitFloor blocks for the remainder of the minimum-duration floor.
// The floor runs against the submit start time, so it overlaps the
// network call: total wait is the later of the two.
func (m *Machine) waitFloor(ctx context.Context, start time.Time, floor time.Duration) error {
	remaining := floor - m.cfg.Now().Sub(start)
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// === Builders ===

func buildOrderItems(lines []model.CartLine) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		item := model.OrderItem{
			ProductID: l.Product.ID,
			Label:     l.Product.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Product.Price,
			LineTotal: l.LineTotal(),
			Side:      l.Side,
			Type:      string(l.Product.Kind),
		}
		if d := l.Product.PromoDiscount(); d > 0 {
			item.OriginalUnitPrice = l.Product.OriginalPrice
			item.DiscountValue = d
		}
		items = append(items, item)
	}
	return items
}

func buildSnapshot(lines []model.CartLine, net int64, placedAt time.Time) model.StoredPurchase {
	snapshot := model.StoredPurchase{
		ID:         uuid.NewString(),
		PlacedAt:   placedAt,
		TotalLabel: model.FormatPrice(net),
	}
	for _, l := range lines {
		snapshot.Lines = append(snapshot.Lines, model.PurchaseLine{
			ProductID: l.Product.ID,
			Label:     l.Product.Name,
			Quantity:  l.Quantity,
			Side:      l.Side,
			Kind:      l.Product.Kind,
		})
	}
	return snapshot
}

func profileUpdateFromForm(form model.OrderForm) *backendapi.ProfileUpdate {
	name, phone := form.Name, form.Phone
	upd := &backendapi.ProfileUpdate{Name: &name}
	if phone != "" {
		upd.Phone = &phone
	}
	if form.Address != "" {
		upd.Addresses = []model.UserAddress{{
			AddressLine: form.Address,
			Notes:       form.Notes,
			IsPrimary:   true,
		}}
	}
	return upd
}
