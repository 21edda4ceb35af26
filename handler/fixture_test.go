package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/handler"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/repository"
	"github.com/smartpigdefi/smartpig/router"
	"github.com/smartpigdefi/smartpig/service"
)

type testServer struct {
	router      http.Handler
	bus         *service.EventBus
	session     *service.SessionService
	deposits    *service.DepositService
	withdrawals *service.WithdrawService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	challenges, err := credential.NewChallengeSource()
	require.NoError(t, err)
	tokens, err := service.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	bus := service.NewEventBus()
	session := service.NewSessionService(
		credential.NewSoftwareAuthenticator(true, nil),
		challenges,
		service.NewSolanaAccountDeriver(),
		repository.NewMemorySessionStore(),
		tokens,
		bus,
		credential.RelyingParty{ID: "localhost", Name: "Smart Pig DeFi"},
	)

	slot := service.NewPaymentSlot()
	rail := client.NewDemoSettlement(time.Hour)
	rates := client.NewFixedRate(5.5)

	deposits := service.NewDepositService(service.DepositConfig{
		Minimum:       decimal.NewFromInt(10),
		FeeBps:        50,
		Currency:      "BRL",
		PollInterval:  time.Hour,
		DefaultExpiry: 15 * time.Minute,
	}, rail, session, slot, bus)
	withdrawals := service.NewWithdrawService(service.WithdrawConfig{
		Minimum: decimal.NewFromInt(10),
		FeeBps:  50,
	}, rail, rates, tokens, session, slot, bus)

	session.OnLogout(deposits.Dispose)
	session.OnLogout(withdrawals.Dispose)
	t.Cleanup(func() {
		deposits.Dispose(context.Background())
		withdrawals.Dispose(context.Background())
	})

	r := router.NewRouter(router.Handlers{
		Session:  handler.NewSessionHandler(session),
		Deposit:  handler.NewDepositHandler(deposits),
		Withdraw: handler.NewWithdrawHandler(withdrawals),
		Account: handler.NewAccountHandler(service.NewSavingsService(session, 0.07), nil, rates,
			handler.FeeSchedule{DepositBps: 50, WithdrawBps: 50}),
		Events:   handler.NewEventsHandler(bus, session, nil),
		Verifier: session,
	}, []string{"*"})

	return &testServer{router: r, bus: bus, session: session, deposits: deposits, withdrawals: withdrawals}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// register signs up a fresh account and returns its access token.
func (s *testServer) register(t *testing.T) (string, *model.Account) {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/session/register", "", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var status model.SessionStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.NotEmpty(t, status.AccessToken)
	return status.AccessToken, status.Account
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}
