package ledger_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go.uber.org/zap"
)

type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter returns the ledger API with the standard middleware stack.
func NewRouter(l LedgerService, s StatementService, logger *zap.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	RegisterRoutes(r, l, s, logger)
	return r
}

func RegisterRoutes(r chi.Router, l LedgerService, s StatementService, logger *zap.Logger) {
	handler := NewLedgerHandler(l, s, logger.With(zap.String("component", "LedgerHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", handler.OpenAccountHandler)
		r.Route("/{number}", func(r chi.Router) {
			r.Get("/", handler.GetAccountHandler)
			r.Delete("/", handler.CloseAccountHandler)
			r.Post("/deposits", handler.DepositHandler)
			r.Post("/withdrawals", handler.WithdrawHandler)
			r.Get("/statement", handler.StatementHandler)
		})
	})

	r.Route("/holders/{holderID}", func(r chi.Router) {
		r.Get("/accounts", handler.ListHolderAccountsHandler)
		r.Get("/recent", handler.RecentHandler)
	})

	r.Post("/transfers", handler.TransferHandler)
	r.Post("/instant-transfers", handler.InstantTransferHandler)
}
