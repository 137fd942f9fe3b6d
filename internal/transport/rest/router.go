package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/workfin/finance-core/internal/budget"
	"github.com/workfin/finance-core/internal/expense"
	"github.com/workfin/finance-core/internal/invoice"
	"github.com/workfin/finance-core/internal/transport/middleware"
	"github.com/workfin/finance-core/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, expenseHandler *expense.Handler, budgetHandler *budget.Handler, invoiceHandler *invoice.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.Identity)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if expenseHandler != nil {
			r.Route("/expenses", func(er chi.Router) {
				er.Post("/", expenseHandler.CreateExpense)                 // POST /expenses
				er.Get("/", expenseHandler.ListExpenses)                   // GET /expenses?project_id=
				er.Get("/{id}", expenseHandler.GetExpense)                 // GET /expenses/:id
				er.Post("/{id}/decisions", expenseHandler.RecordDecision)  // POST /expenses/:id/decisions
				er.Post("/{id}/resubmit", expenseHandler.Resubmit)         // POST /expenses/:id/resubmit
			})
		}

		if budgetHandler != nil {
			r.Route("/budgets", func(br chi.Router) {
				br.Post("/", budgetHandler.CreateBudget)                           // POST /budgets
				br.Get("/{id}", budgetHandler.GetBudget)                           // GET /budgets/:id
				br.Get("/{id}/summary", budgetHandler.GetSummary)                  // GET /budgets/:id/summary
				br.Get("/{id}/breakdown", budgetHandler.GetBreakdown)              // GET /budgets/:id/breakdown
				br.Post("/{id}/revisions", budgetHandler.RequestRevision)          // POST /budgets/:id/revisions
				br.Get("/{id}/revisions", budgetHandler.ListRevisions)             // GET /budgets/:id/revisions
				br.Post("/revisions/{id}/decisions", budgetHandler.RecordRevisionDecision) // POST /budgets/revisions/:id/decisions
			})
		}

		if invoiceHandler != nil {
			r.Route("/invoices", func(ir chi.Router) {
				ir.Post("/", invoiceHandler.CreateInvoice)              // POST /invoices
				ir.Get("/", invoiceHandler.ListInvoices)                // GET /invoices?project_id=
				ir.Get("/{id}", invoiceHandler.GetInvoice)              // GET /invoices/:id
				ir.Post("/{id}/items", invoiceHandler.AddLineItem)      // POST /invoices/:id/items
				ir.Post("/{id}/payments", invoiceHandler.RecordPayment) // POST /invoices/:id/payments
				ir.Patch("/{id}/approve", invoiceHandler.Approve)       // PATCH /invoices/:id/approve
				ir.Patch("/{id}/send", invoiceHandler.Send)             // PATCH /invoices/:id/send
				ir.Patch("/{id}/viewed", invoiceHandler.MarkViewed)     // PATCH /invoices/:id/viewed
				ir.Patch("/{id}/cancel", invoiceHandler.Cancel)         // PATCH /invoices/:id/cancel
			})
		}
	})
}
