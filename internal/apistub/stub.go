// Package apistub is an in-process fake of the Militex REST backend. It issues real
// HS256 JWTs and rotates CSRF cookies the way the backend does, and exposes knobs to
// force the failure modes the client has to handle.
package apistub

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/militex-client/listings"
	"github.com/jrsteele09/militex-client/users"
)

type account struct {
	profile      users.UserProfile
	passwordHash string
	locked       bool
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	now    func() time.Time

	signer        *hmacSigner
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	requireCSRF   bool

	mu            sync.Mutex
	accounts      map[string]*account
	refreshTokens map[string]string // jti -> username
	generation    int
	rateLimited   bool
	csrfToken     string
	failNext      map[string]int
	calls         map[string]int
	lastHeaders   map[string]http.Header
	cars          []listings.Car
	fundraisers   []listings.Fundraiser
	donations     int
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens (default 5m).
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) {
		s.refreshTTL = d
	}
}

// WithRotatingRefresh makes the refresh endpoint return a new refresh token and
// invalidate the old one.
func WithRotatingRefresh(enabled bool) Option {
	return func(s *Server) {
		s.rotateRefresh = enabled
	}
}

// WithCSRFRequired rejects unsafe requests whose X-CSRFToken header does not match.
func WithCSRFRequired(enabled bool) Option {
	return func(s *Server) {
		s.requireCSRF = enabled
	}
}

func WithSecret(secret string) Option {
	return func(s *Server) {
		s.signer = newHMACSigner(secret)
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDemoData seeds a demo account (demo / Militex2024) plus a few listings.
func WithDemoData() Option {
	return func(s *Server) {
		s.seedDemo()
	}
}

func New(options ...Option) *Server {
	s := &Server{
		logger:        log.Logger,
		now:           time.Now,
		signer:        newHMACSigner(uuid.NewString()),
		accessTTL:     5 * time.Minute,
		refreshTTL:    24 * time.Hour,
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		csrfToken:     newCSRFToken(),
		failNext:      make(map[string]int),
		calls:         make(map[string]int),
		lastHeaders:   make(map[string]http.Header),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get(RouteCSRF, s.track(RouteCSRF, s.CSRF()))
	r.Group(func(r chi.Router) {
		r.Use(s.csrfMiddleware)

		r.Post(RouteToken, s.track(RouteToken, s.Token()))
		r.Post(RouteTokenRefresh, s.track(RouteTokenRefresh, s.Refresh()))
		r.Post(RouteUsers, s.track(RouteUsers, s.Register()))

		r.Get(RouteCars, s.track(RouteCars, s.ListCars()))
		r.Get(RouteCars+"{id}/", s.track(RouteCars, s.GetCar()))
		r.Get(RouteFundraisers, s.track(RouteFundraisers, s.ListFundraisers()))
		r.Get(RouteFundraisers+"{id}/", s.track(RouteFundraisers, s.GetFundraiser()))

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get(RouteUsersMe, s.track(RouteUsersMe, s.Me()))
			r.Patch(RouteUsersMe, s.track(RouteUsersMe, s.UpdateMe()))
			r.Post(RouteCars, s.track(RouteCars, s.CreateCar()))
			r.Delete(RouteCars+"{id}/", s.track(RouteCars, s.DeleteCar()))
			r.Post(RouteFundraisers+"{id}/donate/", s.track(RouteDonate, s.Donate()))
		})
	})
	s.router = r
}

// AddUser registers an account directly, bypassing validation.
func (s *Server) AddUser(username, password string, profile users.UserProfile) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("[apistub.AddUser] %w", err)
	}
	profile.Username = username
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = &account{profile: profile, passwordHash: hash}
	return nil
}

// LockUser makes logins for username fail with 403.
func (s *Server) LockUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.locked = true
	}
}

// SetRateLimited makes every login fail with 429 while enabled.
func (s *Server) SetRateLimited(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited = enabled
}

// FailNext makes the next call to route answer with status.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = status
}

// RevokeAccessTokens invalidates every access token issued so far. Refresh tokens
// stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastHeader returns the headers of the most recent request to route.
func (s *Server) LastHeader(route string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders[route].Clone()
}

// CSRFToken returns the token handed out by GET /csrf/.
func (s *Server) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

func (s *Server) AddCar(car listings.Car) listings.Car {
	s.mu.Lock()
	defer s.mu.Unlock()
	if car.ID == "" {
		car.ID = uuid.NewString()
	}
	if car.CreatedAt.IsZero() {
		car.CreatedAt = s.now().UTC()
	}
	s.cars = append(s.cars, car)
	return car
}

func (s *Server) AddFundraiser(f listings.Fundraiser) listings.Fundraiser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.fundraisers = append(s.fundraisers, f)
	return f
}

func (s *Server) seedDemo() {
	phone := "+15555550100"
	_ = s.AddUser("demo", "Militex2024", users.UserProfile{
		Email:       "demo@militex.local",
		FirstName:   "Dana",
		LastName:    "Reyes",
		PhoneNumber: &phone,
		IsMilitary:  true,
		IsVerified:  true,
	})
	s.AddCar(listings.Car{Make: "Jeep", Model: "Wrangler", Year: 2019, Price: 28500, Mileage: 42000, Location: "Fort Hood, TX", Seller: "demo"})
	s.AddCar(listings.Car{Make: "Toyota", Model: "Tacoma", Year: 2021, Price: 33900, Mileage: 18000, Location: "San Diego, CA", Seller: "demo"})
	s.AddCar(listings.Car{Make: "Ford", Model: "F-150", Year: 2017, Price: 24750, Mileage: 71000, Location: "Norfolk, VA", Seller: "demo"})
	s.AddFundraiser(listings.Fundraiser{Title: "Wheels for Veterans", Description: "Vehicles for returning service members.", Goal: 50000, Raised: 12250, Organizer: "demo"})
}
