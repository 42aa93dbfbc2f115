package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
)

// Session is the push-to-talk surface of the session controller.
type Session interface {
	Start(ctx context.Context) error
	End(ctx context.Context) error
	Abort() error
	EnterEdit() (string, error)
	Cancel() error
	SubmitEdit(text string) error
	Status() domain.Status
	Turns() []domain.Turn
}

// Conversations manages the thread history.
type Conversations interface {
	List(ctx context.Context) ([]domain.Thread, error)
	CurrentID(ctx context.Context) (string, error)
	Select(ctx context.Context, id string) (domain.Thread, error)
	New(ctx context.Context) error
	Clear(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Usage exposes the telemetry monitor.
type Usage interface {
	Snapshot() (domain.UsageSnapshot, bool)
	Refresh(ctx context.Context) (domain.UsageSnapshot, error)
}

// Preferences persists user toggles.
type Preferences interface {
	kv.Getter
	kv.Setter
}

type Deps struct {
	Session       Session
	Conversations Conversations
	Usage         Usage
	Preferences   Preferences
	Hub           *Hub
	// LockoutDefault is reported when no preference has been stored.
	LockoutDefault bool
	Logger         *slog.Logger
}

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	sessionH := &sessionHandler{session: deps.Session}
	threadH := &threadHandler{conversations: deps.Conversations}
	usageH := &usageHandler{usage: deps.Usage}
	prefsH := &prefsHandler{prefs: deps.Preferences, lockoutDefault: deps.LockoutDefault}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if deps.Hub != nil {
			r.Get("/events", deps.Hub.ServeWS)
		}

		r.Get("/status", sessionH.Status)
		r.Get("/turns", sessionH.Turns)
		r.Route("/session", func(r chi.Router) {
			r.Post("/start", sessionH.Start)
			r.Post("/end", sessionH.End)
			r.Post("/abort", sessionH.Abort)
			r.Post("/edit", sessionH.Edit)
			r.Post("/cancel", sessionH.Cancel)
			r.Post("/submit", sessionH.Submit)
		})

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", threadH.List)
			r.Post("/", threadH.New)
			r.Post("/current/clear", threadH.Clear)
			r.Post("/{id}/select", threadH.Select)
			r.Delete("/{id}", threadH.Delete)
		})

		r.Get("/usage", usageH.Get)
		r.Post("/usage/refresh", usageH.Refresh)

		r.Get("/prefs/lockout", prefsH.GetLockout)
		r.Put("/prefs/lockout", prefsH.SetLockout)
	})

	return r
}
