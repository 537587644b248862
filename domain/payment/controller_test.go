package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paygate-vip/domain/entitlement"
	"paygate-vip/infrastructure/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	payResp    *service.PayResponse
	payErr     error
	payCalls   int
	lastPay    service.PaymentRequest
	statusResp *service.StatusResponse
	statusErr  error
	balance    json.RawMessage
	balanceErr error
}

func (g *fakeGateway) InitiatePayment(_ context.Context, req service.PaymentRequest) (*service.PayResponse, error) {
	g.payCalls++
	g.lastPay = req
	return g.payResp, g.payErr
}

func (g *fakeGateway) QueryStatus(context.Context, string) (*service.StatusResponse, error) {
	return g.statusResp, g.statusErr
}

func (g *fakeGateway) QueryBalance(context.Context) (json.RawMessage, error) {
	return g.balance, g.balanceErr
}

func gatewayStatus(s service.GatewayStatus) *service.GatewayStatus { return &s }

func acceptedPay(txReference string) *service.PayResponse {
	return &service.PayResponse{
		TxReference: txReference,
		Status:      gatewayStatus(service.StatusPaid),
		Raw:         json.RawMessage(`{"tx_reference":"` + txReference + `","status":0}`),
	}
}

func paidStatus(txReference, paymentReference string) *service.StatusResponse {
	return &service.StatusResponse{
		TxReference:      txReference,
		PaymentReference: paymentReference,
		Status:           gatewayStatus(service.StatusPaid),
		Raw:              json.RawMessage(`{"status":0}`),
	}
}

type testEnv struct {
	app     *fiber.App
	gateway *fakeGateway
	tracker entitlement.ITransactionTracker
	store   entitlement.IEntitlementStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tracker := entitlement.NewRedisTracker(client, redislock.New(client))
	store := entitlement.NewRedisStore(client)
	engine := entitlement.NewEngine(tracker, store)
	gw := &fakeGateway{}

	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	NewController(gw, engine, store, NewInlineDispatcher(engine), "TG").InitRoutes(app)

	return &testEnv{app: app, gateway: gw, tracker: tracker, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

const payBody = `{"phone_number":"90112345","amount":500,"network":"flooz","uid":"user-1"}`

func TestPay_TracksTransaction(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payResp = acceptedPay("TXR-1")

	code, out := env.do(t, http.MethodPost, "/pay", payBody)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "TXR-1", out["tx_reference"])

	assert.True(t, strings.HasPrefix(env.gateway.lastPay.Identifier, "TX-"))
	assert.Equal(t, "Achat VIP", env.gateway.lastPay.Description)
	assert.Equal(t, "FLOOZ", env.gateway.lastPay.Network)

	tx, err := env.tracker.Lookup(context.Background(), "TXR-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.NotNil(t, tx.UserId)
	assert.Equal(t, "user-1", *tx.UserId)
	assert.Equal(t, entitlement.StatePending, tx.State)
	assert.Equal(t, "500", tx.Params.Amount.String())
}

func TestPay_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed json", `{"phone_number":`, ""},
		{"invalid phone", `{"phone_number":"123","amount":500,"network":"FLOOZ"}`, "phone_number"},
		{"missing phone", `{"amount":500,"network":"FLOOZ"}`, "phone_number"},
		{"zero amount", `{"phone_number":"90112345","amount":0,"network":"FLOOZ"}`, "amount"},
		{"unknown network", `{"phone_number":"90112345","amount":500,"network":"MTN"}`, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			code, out := env.do(t, http.MethodPost, "/pay", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Zero(t, env.gateway.payCalls)
			if tt.field != "" {
				fields, ok := out["fields"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, fields, tt.field)
			}
		})
	}
}

func TestPay_GatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payErr = service.ErrGatewayUnavailable

	code, out := env.do(t, http.MethodPost, "/pay", payBody)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Impossible d’initier le paiement", out["error"])
}

func TestPay_NotAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payResp = &service.PayResponse{
		TxReference: "TXR-2",
		Status:      gatewayStatus(2),
		Raw:         json.RawMessage(`{"tx_reference":"TXR-2","status":2}`),
	}

	code, out := env.do(t, http.MethodPost, "/pay", payBody)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	tx, err := env.tracker.Lookup(context.Background(), "TXR-2")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestCheckStatus_GrantsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payResp = acceptedPay("TXR-1")
	code, _ := env.do(t, http.MethodPost, "/pay", payBody)
	require.Equal(t, http.StatusOK, code)

	env.gateway.statusResp = paidStatus("TXR-1", "PR-1")
	for i := 0; i < 2; i++ {
		code, out := env.do(t, http.MethodPost, "/check-status", `{"tx_reference":"TXR-1"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "PR-1", out["payment_reference"])
	}

	code, out := env.do(t, http.MethodGet, "/entitlements/PR-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user-1", out["owner_id"])
	assert.Equal(t, "TXR-1", out["source_transaction_id"])
	assert.Equal(t, string(entitlement.StatusActive), out["status"])

	code, out = env.do(t, http.MethodGet, "/vip/user-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["vip"])
	assert.NotEmpty(t, out["expires_at"])

	owned, err := env.store.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	tx, err := env.tracker.Lookup(context.Background(), "TXR-1")
	require.NoError(t, err)
	assert.Equal(t, entitlement.StateMigrated, tx.State)
}

func TestCheckStatus_Pending(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.statusResp = &service.StatusResponse{
		TxReference: "TXR-1",
		Status:      gatewayStatus(2),
		Raw:         json.RawMessage(`{"status":2}`),
	}

	code, out := env.do(t, http.MethodPost, "/check-status", `{"tx_reference":"TXR-1","uid":"user-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	code, out = env.do(t, http.MethodGet, "/vip/user-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["vip"])
}

func TestCheckStatus_OwnerHintWithoutPay(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.statusResp = paidStatus("TXR-9", "PR-9")

	code, _ := env.do(t, http.MethodPost, "/check-status", `{"tx_reference":"TXR-9","uid":"user-9"}`)
	require.Equal(t, http.StatusOK, code)

	stored, err := env.store.Get(context.Background(), "PR-9")
	require.NoError(t, err)
	require.NotNil(t, stored.OwnerId)
	assert.Equal(t, "user-9", *stored.OwnerId)
}

func TestCheckStatus_Errors(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/check-status", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	env.gateway.statusErr = service.ErrGatewayRejected
	code, out := env.do(t, http.MethodPost, "/check-status", `{"tx_reference":"TXR-1"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Impossible de vérifier le statut", out["error"])
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		granted bool
	}{
		{"paid status", `{"tx_reference":"TXR-1","payment_reference":"PR-1","amount":"500","phone_number":"90112345","status":0}`, http.StatusOK, true},
		{"paid string status", `{"tx_reference":"TXR-1","payment_reference":"PR-1","status":"0"}`, http.StatusOK, true},
		{"success flag", `{"payment_reference":"PR-1","success":true}`, http.StatusOK, true},
		{"pending", `{"tx_reference":"TXR-1","payment_reference":"PR-1","status":2}`, http.StatusOK, false},
		{"missing status", `{"tx_reference":"TXR-1","payment_reference":"PR-1"}`, http.StatusOK, false},
		{"missing reference", `{"tx_reference":"TXR-1","status":0}`, http.StatusOK, false},
		{"empty amount", `{"tx_reference":"TXR-1","payment_reference":"PR-1","amount":"","status":0}`, http.StatusOK, true},
		{"text amount", `{"payment_reference":"PR-1","amount":"cinq cents","status":"0"}`, http.StatusOK, true},
		{"text status", `{"tx_reference":"TXR-1","payment_reference":"PR-1","status":"SUCCESS"}`, http.StatusOK, false},
		{"malformed", `not json`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			code, out := env.do(t, http.MethodPost, "/callback", tt.body)
			require.Equal(t, tt.code, code)
			if code == http.StatusOK {
				assert.Equal(t, "Callback bien reçu", out["message"])
			}

			_, err := env.store.Get(context.Background(), "PR-1")
			if tt.granted {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)
			}
		})
	}
}

func TestCallback_InconsistentMigration(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.payResp = acceptedPay("TXR-1")
	code, _ := env.do(t, http.MethodPost, "/pay", payBody)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/callback", `{"tx_reference":"TXR-1","payment_reference":"PR-A","status":0}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/callback", `{"tx_reference":"TXR-1","payment_reference":"PR-B","status":0}`)
	assert.Equal(t, http.StatusConflict, code)

	_, err := env.store.Get(context.Background(), "PR-B")
	assert.ErrorIs(t, err, entitlement.ErrEntitlementNotFound)
}

func TestCheckBalance(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.balance = json.RawMessage(`{"flooz":1000,"tmoney":250}`)

	code, out := env.do(t, http.MethodPost, "/check-balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1000), out["flooz"])

	env.gateway.balanceErr = errors.New("boom")
	code, out = env.do(t, http.MethodPost, "/check-balance", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Impossible de consulter le solde", out["error"])
}

func TestReadEndpoints_Empty(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/entitlements/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out := env.do(t, http.MethodGet, "/vip/nobody", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["vip"])
	assert.NotContains(t, out, "expires_at")
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	code, out := env.do(t, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", out["message"])
}
