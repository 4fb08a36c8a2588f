package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/takapay/takapay/internal/api/middleware"
	"github.com/takapay/takapay/internal/config"
	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/gateway"
	"github.com/takapay/takapay/internal/idempotency"
	"github.com/takapay/takapay/internal/ledger"
	"github.com/takapay/takapay/internal/service"
)

const testJWTSecret = "router-test-secret-0123456789abcdef"

type routerFixture struct {
	handler http.Handler
	store   *ledger.MemoryStore
	engine  *service.TransferEngine
	admin   *service.AdminService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	cfg := &config.Config{
		JWTSecret:       testJWTSecret,
		MinimumTopUp:    10_00,
		MaximumTopUp:    50_000_00,
		TransferFeeRate: decimal.RequireFromString("1"),
		AgentCommission: decimal.RequireFromString("1.5"),
		PublicRateLimit: 1000,
		AuthRateLimit:   1000,
		IdempotencyTTL:  time.Minute,
	}
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation("", "")

	store := ledger.NewMemory()
	idem := idempotency.NewStore(rc, cfg.IdempotencyTTL)
	gw := &gateway.MockGateway{BaseURL: "https://sandbox.gateway.test/checkout"}

	router := NewRouter(cfg, zap.NewNop(), store, nil, rc, idem, gw)
	return &routerFixture{
		handler: router.Routes(),
		store:   store,
		engine: service.NewTransferEngine(store, service.TransferConfig{
			TransferFeeRate:       cfg.TransferFeeRate,
			DefaultCommissionRate: cfg.AgentCommission,
		}),
		admin: service.NewAdminService(store, cfg.AgentCommission),
	}
}

// seed registers a holder and optionally funds its wallet.
func (f *routerFixture) seed(t *testing.T, name, phone string, role domain.Role, balance int64) uuid.UUID {
	t.Helper()
	holder, err := f.admin.Register(context.Background(), name, phone, role)
	require.NoError(t, err)
	if role == domain.RoleAgent {
		_, err = f.admin.SetAgentApproval(context.Background(), holder.ID, true)
		require.NoError(t, err)
	}
	if balance > 0 {
		_, err = f.engine.Deposit(context.Background(), holder.ID, balance, holder.ID, "seed")
		require.NoError(t, err)
	}
	return holder.ID
}

func signToken(t *testing.T, userID uuid.UUID, role domain.Role) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t)

	// 1. No token at all.
	rr := f.do(t, http.MethodGet, "/v1/wallet", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// 2. Garbage token.
	rr = f.do(t, http.MethodGet, "/v1/wallet", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// 3. Operational endpoints stay open.
	rr = f.do(t, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodGet, "/openapi.yaml", "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Takapay Wallet API")
	rr = f.do(t, http.MethodGet, "/swagger/index.html", "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRoleEnforcement(t *testing.T) {
	f := newRouterFixture(t)
	user := f.seed(t, "Rahim", "+8801711000001", domain.RoleUser, 100_00)
	userToken := signToken(t, user, domain.RoleUser)

	// 1. A plain user may not call agent endpoints.
	rr := f.do(t, http.MethodPost, "/v1/agent/cash-in", userToken,
		map[string]interface{}{"user_phone": "+8801711000001", "amount": 10_00},
		map[string]string{"Idempotency-Key": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// 2. Nor back-office endpoints.
	rr = f.do(t, http.MethodPost, "/v1/admin/holders", userToken,
		map[string]interface{}{"name": "x", "phone": "+880000", "role": "USER"}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSendMoneyEndpointIdempotent(t *testing.T) {
	f := newRouterFixture(t)
	sender := f.seed(t, "Karim", "+8801711000010", domain.RoleUser, 100_00)
	f.seed(t, "Fatema", "+8801711000011", domain.RoleUser, 0)
	token := signToken(t, sender, domain.RoleUser)

	body := map[string]interface{}{"receiver_phone": "+8801711000011", "amount": 50_00}
	key := uuid.NewString()

	// 1. Missing Idempotency-Key is rejected before the handler runs.
	rr := f.do(t, http.MethodPost, "/v1/wallet/send", token, body, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// 2. First attempt moves the money. 50.00 at a 1% fee costs 50.50.
	rr = f.do(t, http.MethodPost, "/v1/wallet/send", token, body, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := rr.Body.String()

	// 3. Replaying the same key and body serves the stored response without
	// a second transfer.
	rr = f.do(t, http.MethodPost, "/v1/wallet/send", token, body, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, first, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Idempotent-Replay"))

	// 4. Same key with a different body is a conflict.
	other := map[string]interface{}{"receiver_phone": "+8801711000011", "amount": 60_00}
	rr = f.do(t, http.MethodPost, "/v1/wallet/send", token, other, map[string]string{"Idempotency-Key": key})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// 5. The sender paid exactly once.
	rr = f.do(t, http.MethodGet, "/v1/wallet", token, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	wallet := decodeBody(t, rr)
	assert.Equal(t, float64(49_50), wallet["balance"])
}

func TestPaymentCallbackCreditsOnce(t *testing.T) {
	f := newRouterFixture(t)
	user := f.seed(t, "Nusrat", "+8801711000020", domain.RoleUser, 0)
	token := signToken(t, user, domain.RoleUser)

	// 1. Initiate a top-up.
	rr := f.do(t, http.MethodPost, "/v1/payments", token,
		map[string]interface{}{"amount": 500_00},
		map[string]string{"Idempotency-Key": uuid.NewString()})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodeBody(t, rr)
	assert.NotEmpty(t, resp["redirect_url"])
	payment, ok := resp["payment"].(map[string]interface{})
	require.True(t, ok)
	txnID, _ := payment["transaction_id"].(string)
	require.NotEmpty(t, txnID)
	assert.Equal(t, string(domain.PaymentPending), payment["status"])

	callback := map[string]interface{}{"transaction_id": txnID, "gateway_txn": "MOCK-1"}

	// 2. The success callback credits the wallet.
	rr = f.do(t, http.MethodPost, "/v1/payments/callback/success", "", callback, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// 3. A redelivered success callback is rejected, the balance stays put.
	rr = f.do(t, http.MethodPost, "/v1/payments/callback/success", "", callback, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// 4. A late failure callback cannot flip a paid payment either.
	rr = f.do(t, http.MethodPost, "/v1/payments/callback/failure", "", callback, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/wallet", token, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(500_00), decodeBody(t, rr)["balance"])

	// 5. An unknown transaction id is a 404.
	rr = f.do(t, http.MethodPost, "/v1/payments/callback/success", "",
		map[string]interface{}{"transaction_id": "TXN-does-not-exist"}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminBlockFlow(t *testing.T) {
	f := newRouterFixture(t)
	admin := f.seed(t, "Ops", "+8801711000030", domain.RoleAdmin, 0)
	user := f.seed(t, "Sajid", "+8801711000031", domain.RoleUser, 100_00)
	f.seed(t, "Mitu", "+8801711000032", domain.RoleUser, 0)
	adminToken := signToken(t, admin, domain.RoleAdmin)
	userToken := signToken(t, user, domain.RoleUser)

	// 1. Block the user's wallet.
	rr := f.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/wallets/%s/block", user), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// 2. The blocked wallet cannot send.
	rr = f.do(t, http.MethodPost, "/v1/wallet/send", userToken,
		map[string]interface{}{"receiver_phone": "+8801711000032", "amount": 10_00},
		map[string]string{"Idempotency-Key": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// 3. Unblock and the transfer goes through.
	rr = f.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/wallets/%s/unblock", user), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodPost, "/v1/wallet/send", userToken,
		map[string]interface{}{"receiver_phone": "+8801711000032", "amount": 10_00},
		map[string]string{"Idempotency-Key": uuid.NewString()})
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// 4. Dashboard and full-ledger listing answer for the back office.
	rr = f.do(t, http.MethodGet, "/v1/admin/dashboard", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "total_users")
	rr = f.do(t, http.MethodGet, "/v1/admin/entries", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pagination")
}

func TestAgentCashInOverAPI(t *testing.T) {
	f := newRouterFixture(t)
	agent := f.seed(t, "Hasan Store", "+8801711000040", domain.RoleAgent, 1_000_00)
	f.seed(t, "Ruma", "+8801711000041", domain.RoleUser, 0)
	agentToken := signToken(t, agent, domain.RoleAgent)

	// 1. Cash in 200.00 for the user. The 1.5% commission lands on the agent.
	rr := f.do(t, http.MethodPost, "/v1/agent/cash-in", agentToken,
		map[string]interface{}{"user_phone": "+8801711000041", "amount": 200_00},
		map[string]string{"Idempotency-Key": uuid.NewString()})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// 2. The agent's ledger shows the commission entry.
	rr = f.do(t, http.MethodGet, "/v1/agent/commissions", agentToken, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), string(domain.EntryCommission))
}
