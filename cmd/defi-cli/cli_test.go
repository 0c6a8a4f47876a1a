package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deficore/core"
	"deficore/crypto"
	"deficore/rpc"
	"deficore/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xA0
	raw[19] = b
	return crypto.NewAddress(crypto.DefaultPrefix, raw)
}

func newNode(t *testing.T) string {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	protocol, err := core.NewProtocol(db, core.Options{})
	require.NoError(t, err)
	srv := rpc.NewServer(protocol, nil, nil, rpc.Config{
		DevMode: true,
		Auth:    rpc.AuthConfig{HMACSecret: testSecret, Issuer: "deficore"},
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func issue(t *testing.T, caller crypto.Address) string {
	t.Helper()
	out, err := run(t, "token", "--secret", testSecret, "--address", caller.String(), "--ttl", "5m")
	require.NoError(t, err)
	return strings.TrimSpace(out)
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	caller := testAddress(7)
	token := issue(t, caller)

	auth := rpc.NewAuthenticator(rpc.AuthConfig{HMACSecret: testSecret, Issuer: "deficore"})
	got, err := auth.Verify(token)
	require.NoError(t, err)
	require.True(t, got.Equal(caller))

	_, err = run(t, "token", "--secret", testSecret)
	require.Error(t, err)
	_, err = run(t, "token", "--secret", testSecret, "--address", caller.String(), "--keystore", "x.keystore")
	require.Error(t, err)
}

func TestCommandsAgainstNode(t *testing.T) {
	endpoint := newNode(t)
	admin := testAddress(1)
	token := issue(t, admin)

	_, err := run(t, "--rpc", endpoint, "--token", token, "call", "token_initialize",
		`{"decimals":7,"name":"Deficore","symbol":"DFC"}`)
	require.NoError(t, err)
	_, err = run(t, "--rpc", endpoint, "--token", token, "call", "token_mint",
		`{"to":"`+admin.String()+`","amount":"1500"}`)
	require.NoError(t, err)

	out, err := run(t, "--rpc", endpoint, "balance", admin.String())
	require.NoError(t, err)
	var balance struct {
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &balance))
	require.Equal(t, "1500", balance.Amount)

	out, err = run(t, "--rpc", endpoint, "advance", "12")
	require.NoError(t, err)
	var height struct {
		Height uint64 `json:"height"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &height))
	require.Equal(t, uint64(12), height.Height)

	out, err = run(t, "--rpc", endpoint, "height")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &height))
	require.Equal(t, uint64(12), height.Height)
}

func TestCallSurfacesRPCErrors(t *testing.T) {
	endpoint := newNode(t)

	_, err := run(t, "--rpc", endpoint, "call", "token_mint", `{"to":"`+testAddress(2).String()+`","amount":"1"}`)
	var rpcErr *rpcError
	require.True(t, errors.As(err, &rpcErr), "expected rpc error, got %v", err)
	require.Equal(t, -32001, rpcErr.Code)

	_, err = run(t, "--rpc", endpoint, "call", "token_balance", `{not json`)
	require.EqualError(t, err, "params must be valid JSON")

	_, err = run(t, "--rpc", endpoint, "events")
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, -32010, rpcErr.Code)

	_, err = run(t, "--rpc", endpoint, "balance", "not-an-address")
	require.Error(t, err)
}

func TestEventsRejectsInvertedRange(t *testing.T) {
	_, err := run(t, "events", "--from", "10", "--to", "2")
	require.EqualError(t, err, "--from exceeds --to")
}

func TestKeygenWritesLoadableKeystore(t *testing.T) {
	t.Setenv("DEFI_KEYSTORE_PASSPHRASE", "correct horse")
	path := t.TempDir() + "/wallet.keystore"

	out, err := run(t, "keygen", "--out", path)
	require.NoError(t, err)
	key, err := crypto.LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), strings.TrimSpace(out))

	_, err = run(t, "keygen", "--out", path)
	require.Error(t, err)

	token := strings.TrimSpace(mustRun(t, "token", "--secret", testSecret, "--keystore", path, "--ttl", time.Minute.String()))
	auth := rpc.NewAuthenticator(rpc.AuthConfig{HMACSecret: testSecret, Issuer: "deficore"})
	caller, err := auth.Verify(token)
	require.NoError(t, err)
	require.True(t, caller.Equal(key.PubKey().Address()))
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	return out
}
