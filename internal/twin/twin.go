// Package twin is an in-memory stand-in for the nursery application: the JSON
// API under /api and a small server-rendered UI under /ui. It implements the
// behaviour the suite asserts on and nothing more.
package twin

import (
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/obs"
	"github.com/kuitang/nursery-suite/internal/ratelimit"
)

// Options configures a Server. Zero values pick the defaults.
type Options struct {
	JWTSecret    []byte
	TokenTTL     time.Duration
	Seed         *Seed
	RateLimit    ratelimit.Config
	PasswordCost int
	Clock        func() time.Time
}

// OptionsFromConfig derives server options from suite configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	seed, err := LoadSeed(cfg.TwinSeedFile)
	if err != nil {
		return Options{}, err
	}
	limits := ratelimit.DefaultConfig
	limits.PrincipalRPS = cfg.TwinRPS
	limits.PrincipalBurst = cfg.TwinBurst
	return Options{
		JWTSecret: []byte(cfg.TwinJWTSecret),
		Seed:      &seed,
		RateLimit: limits,
	}, nil
}

// Server is the twin application.
type Server struct {
	opts     Options
	store    *Store
	users    *users
	tokens   *tokens
	limiter  *ratelimit.RateLimiter
	renderer *Renderer
	sessions *sessionStore
	validate *validator.Validate

	resetMu sync.Mutex
	handler http.Handler
}

// New builds a seeded server.
func New(opts Options) (*Server, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = bcrypt.DefaultCost
	}
	if opts.RateLimit.PrincipalRPS <= 0 || opts.RateLimit.AnonymousRPS <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig
	}
	if opts.Seed == nil {
		seed := DefaultSeed()
		opts.Seed = &seed
	}
	if len(opts.JWTSecret) == 0 {
		opts.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(opts.JWTSecret); err != nil {
			return nil, errs.Wrap(errs.Internal, "generate jwt secret", err)
		}
	}

	accounts, err := newUsers(opts.Seed.Users, opts.PasswordCost)
	if err != nil {
		return nil, err
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		store:    NewStore(),
		users:    accounts,
		tokens:   &tokens{secret: opts.JWTSecret, ttl: opts.TokenTTL, now: opts.Clock},
		limiter:  ratelimit.NewRateLimiter(opts.RateLimit),
		renderer: renderer,
		sessions: newSessionStore(),
		validate: validator.New(),
	}
	if err := s.Reset(); err != nil {
		s.limiter.Stop()
		return nil, err
	}
	s.handler = obs.RequestContextMiddleware(obs.AccessLogMiddleware("twin", s.routes()))
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store exposes the backing store, mainly for tests.
func (s *Server) Store() *Store {
	return s.store
}

// Reset restores the seeded state and drops UI sessions. Issued tokens stay valid.
func (s *Server) Reset() error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()
	s.store.Reset()
	s.sessions.reset()
	return s.opts.Seed.apply(s.store, s.opts.Clock().UTC())
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) now() time.Time {
	return s.opts.Clock().UTC()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	limit := ratelimit.Middleware(s.limiter, principalName, s.writeRateLimited)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/admin/reset", s.handleReset)

	r.Route("/api", func(r chi.Router) {
		r.With(limit).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken, limit)

			r.Get("/categories", s.handleListCategories)
			r.Get("/categories/{id}", s.handleGetCategory)
			r.Get("/plants", s.handleListPlants)
			r.Get("/plants/{id}", s.handleGetPlant)
			r.Get("/plants/category/{id}", s.handleListPlantsByCategory)
			r.Get("/sales", s.handleListSales)
			r.Get("/sales/page", s.handleSalesPage)
			r.Get("/sales/{id}", s.handleGetSale)
			r.Get("/dashboard", s.handleDashboard)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Post("/categories", s.handleCreateCategory)
				r.Put("/categories/{id}", s.handleUpdateCategory)
				r.Delete("/categories/{id}", s.handleDeleteCategory)
				r.Post("/plants", s.handleCreatePlant)
				r.Post("/plants/category/{id}", s.handleCreatePlantInCategory)
				r.Put("/plants/{id}", s.handleUpdatePlant)
				r.Delete("/plants/{id}", s.handleDeletePlant)
				r.Post("/sales/plant/{plantId}", s.handleSell)
				r.Delete("/sales/{id}", s.handleDeleteSale)
			})
		})
	})

	r.Route("/ui", func(r chi.Router) {
		s.uiRoutes(r, limit)
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/login", http.StatusFound)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ui") {
			s.renderer.RenderError(w, http.StatusNotFound, "Page not found")
			return
		}
		s.writeError(w, r, errs.Newf(errs.NotFound, "No endpoint %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, s.now(), http.StatusMethodNotAllowed, "Request method '"+r.Method+"' is not supported")
	})
	return r
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
