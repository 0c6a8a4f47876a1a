package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"deficore/core"
	"deficore/core/events"
	"deficore/core/types"
	"deficore/crypto"
	nativecommon "deficore/native/common"
	"deficore/services/eventlog"
	"deficore/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xB0
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

type stubEvents struct {
	records []eventlog.Record
	last    eventlog.Filter
}

func (s *stubEvents) Query(_ context.Context, f eventlog.Filter) ([]eventlog.Record, error) {
	s.last = f
	return s.records, nil
}

type testServer struct {
	t     *testing.T
	http  *httptest.Server
	rpc   *Server
	hub   *Hub
	admin crypto.Address
}

func newTestServer(t *testing.T, cfg Config, querier EventQuerier) *testServer {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	hub := NewHub(nil)
	protocol, err := core.NewProtocol(db, core.Options{Sink: events.Fanout{hub}})
	require.NoError(t, err)
	if cfg.Auth.HMACSecret == "" {
		cfg.Auth = AuthConfig{HMACSecret: testSecret, Issuer: "deficore"}
	}
	var q EventQuerier
	if querier != nil {
		q = querier
	}
	srv := NewServer(protocol, q, hub, cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{t: t, http: ts, rpc: srv, hub: hub, admin: testAddress(0x01)}
}

func (ts *testServer) token(caller crypto.Address) string {
	ts.t.Helper()
	tok, err := IssueToken(testSecret, "deficore", caller, time.Minute)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) call(caller crypto.Address, method string, params interface{}) (int, RPCResponse, json.RawMessage) {
	ts.t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	require.NoError(ts.t, err)
	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/", bytes.NewReader(body))
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if !caller.IsZero() {
		req.Header.Set("Authorization", "Bearer "+ts.token(caller))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var envelope struct {
		RPCResponse
		Raw json.RawMessage `json:"result"`
	}
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope.RPCResponse, envelope.Raw
}

func (ts *testServer) mustCall(caller crypto.Address, method string, params interface{}, out interface{}) {
	ts.t.Helper()
	status, resp, raw := ts.call(caller, method, params)
	if resp.Error != nil {
		ts.t.Fatalf("%s: unexpected error %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	require.Equal(ts.t, http.StatusOK, status)
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(raw, out))
	}
}

func (ts *testServer) bootstrap() {
	ts.t.Helper()
	ts.mustCall(ts.admin, "token_initialize", map[string]interface{}{"decimals": 7, "name": "Deficore", "symbol": "dfc"}, nil)
	ts.mustCall(ts.admin, "token_mint", map[string]string{"to": ts.admin.String(), "amount": "1000000"}, nil)
}

func TestTokenFlowOverJSONRPC(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.bootstrap()
	user := testAddress(0x22)

	ts.mustCall(ts.admin, "token_transfer", map[string]string{"to": user.String(), "amount": "1500"}, nil)

	var balance AmountResult
	ts.mustCall(crypto.Address{}, "token_balance", map[string]string{"address": user.String()}, &balance)
	require.Equal(t, "1500", balance.Amount)

	// Array-wrapped params are accepted too.
	ts.mustCall(crypto.Address{}, "token_balance", []interface{}{map[string]string{"address": ts.admin.String()}}, &balance)
	require.Equal(t, "998500", balance.Amount)

	var meta struct {
		Symbol   string `json:"symbol"`
		Decimals uint32 `json:"decimals"`
	}
	ts.mustCall(crypto.Address{}, "token_metadata", nil, &meta)
	require.Equal(t, "DFC", meta.Symbol)
	require.Equal(t, uint32(7), meta.Decimals)
}

func TestErrorCodesFollowFailureKind(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.bootstrap()
	user := testAddress(0x23)

	status, resp, _ := ts.call(crypto.Address{}, "token_transfer", map[string]string{"to": user.String(), "amount": "1"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp, _ = ts.call(user, "token_transfer", map[string]string{"to": ts.admin.String(), "amount": "5"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, codeEconomic, resp.Error.Code)

	_, resp, _ = ts.call(ts.admin, "token_transfer", map[string]string{"to": user.String(), "amount": "-5"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp, _ = ts.call(ts.admin, "token_transfer", map[string]string{"to": "nope", "amount": "5"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp, _ = ts.call(ts.admin, "token_transfer", map[string]string{"to": user.String(), "amount": "5", "memo": "x"})
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp, _ = ts.call(user, "token_mint", map[string]string{"to": user.String(), "amount": "5"})
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp, _ = ts.call(crypto.Address{}, "eth_chainId", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRejectedCallsLeaveStateUntouched(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.bootstrap()
	var before HeightResult
	ts.mustCall(crypto.Address{}, "protocol_height", nil, &before)

	_, resp, _ := ts.call(ts.admin, "supply", map[string]string{"amount": "100"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codePrecondition, resp.Error.Code)

	var after HeightResult
	ts.mustCall(crypto.Address{}, "protocol_height", nil, &after)
	require.Equal(t, before.Root, after.Root)
}

func TestLendingOverJSONRPC(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.bootstrap()
	lender, borrower := testAddress(0x31), testAddress(0x32)
	ts.mustCall(ts.admin, "token_transfer", map[string]string{"to": lender.String(), "amount": "10000"}, nil)
	ts.mustCall(ts.admin, "token_transfer", map[string]string{"to": borrower.String(), "amount": "2000"}, nil)

	ts.mustCall(ts.admin, "initializeLendingPool", map[string]uint64{
		"supplyRate": 500, "borrowRate": 1000, "collateralFactor": 7500, "reserveFactor": 1000,
	}, nil)
	ts.mustCall(lender, "supply", map[string]string{"amount": "5000"}, nil)
	ts.mustCall(borrower, "borrow", map[string]string{"amount": "600", "collateral": "1800"}, nil)

	var pool LendingPoolResult
	ts.mustCall(crypto.Address{}, "getLendingPoolInfo", nil, &pool)
	require.Equal(t, "5000", pool.TotalSupplied)
	require.Equal(t, "600", pool.TotalBorrowed)

	var borrow BorrowResult
	ts.mustCall(crypto.Address{}, "getUserBorrowInfo", map[string]string{"address": borrower.String()}, &borrow)
	require.Equal(t, "600", borrow.Amount)
	require.Equal(t, "1800", borrow.Collateral)

	var batch BatchLiquidationResult
	ts.mustCall(ts.admin, "batchLiquidate", map[string]interface{}{
		"targets": []map[string]string{{"borrower": borrower.String(), "repayAmount": "100"}},
	}, &batch)
	require.Equal(t, []string{borrower.String()}, batch.Skipped)
	require.Equal(t, "0", batch.TotalRepaid)

	_, resp, _ := ts.call(lender, "getProtocolRiskMetrics", nil)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
	var risk RiskResult
	ts.mustCall(ts.admin, "getProtocolRiskMetrics", nil, &risk)
	require.Equal(t, "600", risk.TotalDebt)
}

func TestAdvanceHeightRequiresDevMode(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	_, resp, _ := ts.call(crypto.Address{}, "protocol_advanceHeight", map[string]uint64{"height": 10})
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	dev := newTestServer(t, Config{DevMode: true}, nil)
	var h HeightResult
	dev.mustCall(crypto.Address{}, "protocol_advanceHeight", map[string]uint64{"height": 10}, &h)
	require.Equal(t, uint64(10), h.Height)
	dev.mustCall(crypto.Address{}, "protocol_advanceHeight", nil, &h)
	require.Equal(t, uint64(11), h.Height)

	_, resp, _ = dev.call(crypto.Address{}, "protocol_advanceHeight", map[string]uint64{"height": 5})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestEventsQuery(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	_, resp, _ := ts.call(crypto.Address{}, "events_query", nil)
	require.Equal(t, codePrecondition, resp.Error.Code)

	stub := &stubEvents{records: []eventlog.Record{{Sequence: 1, Type: "token.minted", Amount: "5"}}}
	withLog := newTestServer(t, Config{}, stub)
	var records []eventlog.Record
	withLog.mustCall(crypto.Address{}, "events_query", map[string]interface{}{"type": "token.minted", "fromHeight": 2}, &records)
	require.Len(t, records, 1)
	require.Equal(t, "token.minted", stub.last.Type)
	require.Equal(t, uint64(2), stub.last.FromHeight)

	_, resp, _ = withLog.call(crypto.Address{}, "events_query", map[string]uint64{"fromHeight": 9, "toHeight": 3})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRateLimiterThrottles(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: RateLimit{RequestsPerSecond: 0.001, Burst: 1}}, nil)
	status, resp, _ := ts.call(crypto.Address{}, "protocol_height", nil)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp, _ = ts.call(crypto.Address{}, "protocol_height", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	resp, err := http.Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketStreamsCommittedEvents(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/events?type=token."
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.bootstrap()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev types.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "token.initialized", ev.Type)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "token.minted", ev.Type)
	require.Equal(t, "1000000", ev.Attr("amount"))
}

func TestIssueAndVerifyToken(t *testing.T) {
	caller := testAddress(0x44)
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "deficore"})

	tok, err := IssueToken(testSecret, "deficore", caller, time.Minute)
	require.NoError(t, err)
	got, err := auth.Verify(tok)
	require.NoError(t, err)
	require.True(t, got.Equal(caller))

	forged, err := IssueToken(strings.Repeat("z", 32), "deficore", caller, time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(forged)
	require.Error(t, err)

	otherIssuer, err := IssueToken(testSecret, "someone-else", caller, time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(otherIssuer)
	require.Error(t, err)
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nativecommon.ErrUnauthorized, codeUnauthorized},
		{nativecommon.ErrInvalidAmount, codeInvalidParams},
		{nativecommon.ErrModulePaused, codePrecondition},
		{nativecommon.ErrInsufficientBalance, codeEconomic},
		{errors.New("disk on fire"), codeServerError},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Fatalf("%v: expected code %d, got %d", tc.err, tc.code, got)
		}
	}
}
