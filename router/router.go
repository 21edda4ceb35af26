package router

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/smartpigdefi/smartpig/handler"
)

// Handlers groups everything the router serves. Any field may be nil, in
// which case its routes are not registered.
type Handlers struct {
	Session  *handler.SessionHandler
	Deposit  *handler.DepositHandler
	Withdraw *handler.WithdrawHandler
	Account  *handler.AccountHandler
	Events   *handler.EventsHandler
	Verifier handler.TokenVerifier
}

func NewRouter(h Handlers, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)

	protect := func(fn http.HandlerFunc) http.Handler { return fn }
	if h.Verifier != nil {
		auth := handler.AuthMiddleware(h.Verifier)
		protect = func(fn http.HandlerFunc) http.Handler { return auth(fn) }
	}

	if s := h.Session; s != nil {
		mux.Handle("GET /api/session", handler.ErrorHandlingMiddleware(s.Status))
		mux.Handle("POST /api/session/register", handler.ErrorHandlingMiddleware(s.Register))
		mux.Handle("POST /api/session/signin", handler.ErrorHandlingMiddleware(s.SignIn))
		mux.Handle("POST /api/session/logout", protect(handler.ErrorHandlingMiddleware(s.Logout)))
		mux.Handle("POST /api/session/lock", protect(handler.ErrorHandlingMiddleware(s.Lock)))
	}

	if d := h.Deposit; d != nil {
		mux.Handle("POST /api/deposits", protect(handler.ErrorHandlingMiddleware(d.Submit)))
		mux.Handle("GET /api/deposits/current", protect(handler.ErrorHandlingMiddleware(d.Current)))
		mux.Handle("POST /api/deposits/confirm", protect(handler.ErrorHandlingMiddleware(d.ConfirmPaid)))
		mux.Handle("POST /api/deposits/back", protect(handler.ErrorHandlingMiddleware(d.BackToInstrument)))
		mux.Handle("POST /api/deposits/cancel", protect(handler.ErrorHandlingMiddleware(d.Cancel)))
		mux.Handle("POST /api/deposits/reset", protect(handler.ErrorHandlingMiddleware(d.Reset)))
	}

	if wd := h.Withdraw; wd != nil {
		mux.Handle("POST /api/withdrawals", protect(handler.ErrorHandlingMiddleware(wd.Submit)))
		mux.Handle("GET /api/withdrawals/current", protect(handler.ErrorHandlingMiddleware(wd.Current)))
		mux.Handle("POST /api/withdrawals/confirm", protect(handler.ErrorHandlingMiddleware(wd.Confirm)))
		mux.Handle("POST /api/withdrawals/cancel", protect(handler.ErrorHandlingMiddleware(wd.Cancel)))
		mux.Handle("POST /api/withdrawals/reset", protect(handler.ErrorHandlingMiddleware(wd.Reset)))
	}

	if a := h.Account; a != nil {
		mux.Handle("GET /api/quote", protect(handler.ErrorHandlingMiddleware(a.Quote)))
		mux.Handle("GET /api/savings", protect(handler.ErrorHandlingMiddleware(a.Savings)))
		mux.Handle("GET /api/history", protect(handler.ErrorHandlingMiddleware(a.History)))
	}

	if e := h.Events; e != nil {
		mux.HandleFunc("GET /ws", e.Stream)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(mux)
}
