package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/solarvest/platform/internal/middleware"
)

// RouterConfig wires handlers and middleware into the API router.
type RouterConfig struct {
	Logger        *slog.Logger
	IsDevelopment bool
	MaxBodyBytes  int64
	CORS          middleware.CORSConfig
	Auth          middleware.AuthConfig
	RateLimit     middleware.RateLimitConfig

	Health       *HealthHandler
	Accounts     *AccountHandler
	Investors    *InvestorHandler
	Applications *ApplicationHandler
	Transactions *TransactionHandler
	KYC          *KYCHandler
	Tickets      *TicketHandler
	CRM          *CRMHandler
	Exports      *ExportHandler
	Metrics      *MetricsHandler
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.IsDevelopment))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)

	authenticated := func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))
		r.Use(middleware.RateLimitAPI(cfg.RateLimit))
	}

	// The dashboard is served both at the top level and under /api.
	r.Route("/metrics", func(r chi.Router) {
		authenticated(r)
		mountDashboard(r, cfg.Metrics)
	})

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimitLogin(cfg.RateLimit)).Post("/auth/login", cfg.Accounts.Login)

		r.Group(func(r chi.Router) {
			authenticated(r)

			r.Route("/auth", func(r chi.Router) {
				r.Use(middleware.RequireUser())
				r.Get("/me", cfg.Accounts.Me)
				r.Post("/password", cfg.Accounts.ChangePassword)
			})

			r.Route("/metrics", func(r chi.Router) {
				mountDashboard(r, cfg.Metrics)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/", cfg.Accounts.ListUsers)
				r.Post("/", cfg.Accounts.CreateUser)
				r.Get("/{id}", cfg.Accounts.GetUser)
				r.Patch("/{id}", cfg.Accounts.UpdateUser)
				r.Delete("/{id}", cfg.Accounts.DeleteUser)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/", cfg.Accounts.ListKeys)
				r.Post("/", cfg.Accounts.CreateKey)
				r.Delete("/{id}", cfg.Accounts.RevokeKey)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/metrics", cfg.Metrics.Snapshot)
			})

			r.Route("/investors", func(r chi.Router) {
				crud(r, cfg.Investors.ListInvestors, cfg.Investors.CreateInvestor, cfg.Investors.GetInvestor,
					cfg.Investors.UpdateInvestor, cfg.Investors.DeleteInvestor)
				r.With(middleware.RequireRead()).Get("/{id}/portfolio", cfg.Investors.Portfolio)
			})

			r.Route("/investments", func(r chi.Router) {
				crud(r, cfg.Investors.ListInvestments, cfg.Investors.CreateInvestment, cfg.Investors.GetInvestment,
					cfg.Investors.UpdateInvestment, cfg.Investors.DeleteInvestment)
			})

			r.Route("/applications", func(r chi.Router) {
				crud(r, cfg.Applications.List, cfg.Applications.Create, cfg.Applications.Get,
					cfg.Applications.Update, cfg.Applications.Delete)
				r.With(middleware.RequireWrite()).Post("/{id}/status", cfg.Applications.Transition)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", cfg.Transactions.List)
				r.With(middleware.RequireWrite()).Post("/", cfg.Transactions.Create)
				r.With(middleware.RequireRead()).Get("/{id}", cfg.Transactions.Get)
				r.With(middleware.RequireWrite()).Post("/{id}/status", cfg.Transactions.UpdateStatus)
				r.With(middleware.RequireWrite()).Delete("/{id}", cfg.Transactions.Delete)
			})

			r.Route("/kyc", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", cfg.KYC.List)
				r.With(middleware.RequireWrite()).Post("/", cfg.KYC.Create)
				r.With(middleware.RequireRead()).Get("/{id}", cfg.KYC.Get)
				r.With(middleware.RequireWrite()).Post("/{id}/review", cfg.KYC.Review)
				r.With(middleware.RequireWrite()).Delete("/{id}", cfg.KYC.Delete)
			})

			r.Route("/tickets", func(r chi.Router) {
				crudWith(r, middleware.RequireCRM(), cfg.Tickets.List, cfg.Tickets.Create, cfg.Tickets.Get, cfg.Tickets.Update, cfg.Tickets.Delete)
			})

			r.Route("/crm", func(r chi.Router) {
				mountCRM(r, cfg.CRM)
			})

			r.Route("/exports", func(r chi.Router) {
				mountExports(r, cfg.Exports)
			})
		})
	})

	return r
}

// crud mounts the five standard record routes with read/write guards.
func crud(r chi.Router, list, create, get, update, del http.HandlerFunc) {
	crudWith(r, middleware.RequireWrite(), list, create, get, update, del)
}

func crudWith(r chi.Router, write func(http.Handler) http.Handler, list, create, get, update, del http.HandlerFunc) {
	r.With(middleware.RequireRead()).Get("/", list)
	r.With(write).Post("/", create)
	r.With(middleware.RequireRead()).Get("/{id}", get)
	r.With(write).Patch("/{id}", update)
	r.With(write).Delete("/{id}", del)
}

func mountDashboard(r chi.Router, h *MetricsHandler) {
	r.Use(middleware.RequireRead())
	for name, fn := range h.Routes() {
		r.Get("/"+name, fn)
	}
}

func mountCRM(r chi.Router, h *CRMHandler) {
	r.Route("/contacts", func(r chi.Router) {
		crudWith(r, middleware.RequireCRM(), h.ListContacts, h.CreateContact, h.GetContact, h.UpdateContact, h.DeleteContact)
		r.With(middleware.RequireCRM()).Post("/{id}/assign", h.AssignContact)
	})
	r.With(middleware.RequireRead()).Get("/responses", h.ListResponses)
	r.With(middleware.RequireCRM()).Post("/inbound", h.Inbound)

	r.Route("/threads", func(r chi.Router) {
		r.With(middleware.RequireRead()).Get("/", h.ListThreads)
		r.With(middleware.RequireCRM()).Post("/", h.CreateThread)
		r.With(middleware.RequireRead()).Get("/{id}", h.GetThread)
		r.With(middleware.RequireCRM()).Post("/{id}/status", h.SetThreadStatus)
		r.With(middleware.RequireCRM()).Post("/{id}/read", h.MarkThreadRead)
		r.With(middleware.RequireCRM()).Post("/{id}/messages", h.SendMessage)
	})

	r.Route("/templates", func(r chi.Router) {
		crudWith(r, middleware.RequireCRM(), h.ListTemplates, h.CreateTemplate, h.GetTemplate, h.UpdateTemplate, h.DeleteTemplate)
		r.With(middleware.RequireRead()).Post("/{id}/preview", h.PreviewTemplate)
	})

	r.Route("/automations", func(r chi.Router) {
		crudWith(r, middleware.RequireCRM(), h.ListAutomations, h.CreateAutomation, h.GetAutomation, h.UpdateAutomation, h.DeleteAutomation)
		r.With(middleware.RequireCRM()).Post("/{id}/test", h.TestAutomation)
	})

	r.Route("/assignments", func(r chi.Router) {
		r.With(middleware.RequireRead()).Get("/metrics", h.Workloads)
		r.With(middleware.RequireAdmin()).Put("/{id}/capacity", h.SetCapacity)
	})
}

func mountExports(r chi.Router, h *ExportHandler) {
	r.Use(middleware.RequireExport())
	r.Post("/", h.AdHoc)

	r.Route("/scheduled", func(r chi.Router) {
		r.Get("/", h.ListScheduled)
		r.Post("/", h.CreateScheduled)
		r.Get("/{id}", h.GetScheduled)
		r.Patch("/{id}", h.UpdateScheduled)
		r.Delete("/{id}", h.DeleteScheduled)
		r.Post("/{id}/run", h.RunNow)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.History)
		r.Get("/{id}", h.HistoryEntry)
		r.Get("/{id}/download", h.Download)
	})
}
