package handler

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"orderflow/internal/cart"
	"orderflow/internal/checkout"
	"orderflow/internal/discount"
	"orderflow/internal/localstore"
	"orderflow/internal/loyalty"
	"orderflow/internal/middleware"
	"orderflow/internal/model"
	"orderflow/internal/upsell"
)

// Identity headers. Order-User marks a registered session; Order-Auth
// carries the auth provider UID when it differs from the user ID.
const (
	UserHeader = "Order-User"
	AuthHeader = "Order-Auth"
)

// session bundles the per-browser-session engines: its persistent
// store, cart, discount selection, upsell prompt, loyalty counter and
// checkout machine. All share the session's store directory.
type session struct {
	id       string
	identity checkout.Identity

	store     *localstore.Store
	cart      *cart.Store
	selection *discount.Selection
	upsell    *upsell.Controller
	loyalty   *loyalty.Tracker
	machine   *checkout.Machine
	nav       *navRecorder
}

// navRecorder captures the confirmation transition so the submit
// response can return it; it is the navigation analog of the web
// client's router push.
type navRecorder struct {
	mu   sync.Mutex
	last *checkout.NavContext
}

func (n *navRecorder) ToConfirmation(nc checkout.NavContext) {
	n.mu.Lock()
	n.last = &nc
	n.mu.Unlock()
}

// linkOpener satisfies the machine's opener; the deep link travels
// back in the response body, so opening is just a log line here.
type linkOpener struct {
	logger *slog.Logger
}

func (l *linkOpener) Open(url string) error {
	l.logger.Debug("deep link ready", slog.String("url", url))
	return nil
}

// registry holds the live sessions keyed by the Order-Session header.
type registry struct {
	h *Handler

	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry(h *Handler) *registry {
	return &registry{h: h, sessions: make(map[string]*session)}
}

// resolve returns the session for the request, creating engines on
// first sight of a session ID. A login or logout mid-session rebuilds
// the identity-bound engines while keeping the cart and the upsell
// suppression state.
func (reg *registry) resolve(r *http.Request) (*session, error) {
	sessionID := r.Header.Get(middleware.SessionHeader)
	if sessionID == "" {
		return nil, model.NewValidationError(middleware.SessionHeader, "session header required")
	}

	id := checkout.Identity{
		UserID:  r.Header.Get(UserHeader),
		AuthUID: r.Header.Get(AuthHeader),
	}
	id.Registered = id.UserID != ""

	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, ok := reg.sessions[sessionID]
	if !ok {
		var err error
		s, err = reg.create(sessionID, id)
		if err != nil {
			return nil, err
		}
		reg.sessions[sessionID] = s
		reg.mount(r, s)
		return s, nil
	}

	if s.identity != id {
		reg.rebind(s, id)
		reg.mount(r, s)
	}
	return s, nil
}

// mount seeds guest sessions with the public code list (registered
// sessions fetch their own on Mount) and runs the mount lifecycle.
func (reg *registry) mount(r *http.Request, s *session) {
	if !s.identity.Registered {
		codes, err := reg.h.backend.ListDiscountCodes(r.Context())
		if err != nil {
			reg.h.logger.Warn("discount code fetch failed", slog.String("error", err.Error()))
		} else {
			s.machine.SetCodes(codes)
		}
	}
	s.machine.Mount(r.Context())
}

func (reg *registry) create(sessionID string, id checkout.Identity) (*session, error) {
	h := reg.h

	store, err := localstore.Open(filepath.Join(h.cfg.DataDir, sessionID), h.logger)
	if err != nil {
		return nil, model.NewInternalError(err)
	}

	s := &session{
		id:        sessionID,
		identity:  id,
		store:     store,
		selection: &discount.Selection{},
		upsell:    upsell.NewController(upsell.Config{}),
		nav:       &navRecorder{},
	}
	s.cart = cart.New(store, "cart", h.logger)
	reg.rebind(s, id)
	return s, nil
}

// rebind builds the identity-scoped engines: the loyalty tracker over
// the identity's key chain and the checkout machine itself.
func (reg *registry) rebind(s *session, id checkout.Identity) {
	h := reg.h
	s.identity = id

	if s.loyalty != nil {
		s.loyalty.Close()
	}
	s.loyalty = loyalty.NewTracker(s.store,
		localstore.NewChain(s.store, checkout.LoyaltyKeys(id)...), h.logger)

	var prevSession *checkout.Session
	if s.machine != nil {
		prevSession = s.machine.Session()
	}

	s.machine = checkout.NewMachine(
		checkout.Config{
			StoreCode:       h.cfg.StoreCode,
			WhatsAppPhone:   h.cfg.WhatsAppPhone,
			GuestFloor:      h.cfg.GuestFloor,
			RegisteredFloor: h.cfg.RegisteredFloor,
			UpsellDelay:     h.cfg.UpsellDelay,
			PromoItem:       h.cfg.PromoItem,
		},
		checkout.Deps{
			Cart:      s.cart,
			Selection: s.selection,
			Orders:    h.backend,
			Users:     h.backend,
			Runner:    h.runner,
			Store:     s.store,
			Upsell:    s.upsell,
			Loyalty:   s.loyalty,
			Nav:       s.nav,
			Links:     &linkOpener{logger: h.logger},
			Logger:    h.logger,
		},
		id, prevSession,
	)
}

func (reg *registry) closeAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, s := range reg.sessions {
		s.upsell.Close()
		s.cart.Close()
		if s.loyalty != nil {
			s.loyalty.Close()
		}
	}
	reg.sessions = make(map[string]*session)
}
