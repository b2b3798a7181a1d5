package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/authgate/adapters/registry"
	"github.com/hexlane/authgate/adapters/store"
	"github.com/hexlane/authgate/adapters/tokenizer"
	"github.com/hexlane/authgate/adapters/wallet"
	"github.com/hexlane/authgate/ports"
	"github.com/hexlane/authgate/service"
)

func addrFromHex(s string) common.Address { return common.HexToAddress(s) }

type env struct {
	router  *gin.Engine
	markers ports.MarkerStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	reg := registry.NewMemoryRegistry(crypto.PubkeyToAddress(ownerKey.PublicKey))

	userKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := wallet.NewLocalWallet()
	w.AddKey(userKey)

	jwtKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tok := tokenizer.NewJWTTokenizer(jwtKey)
	markers := store.NewMemoryStore()

	mgr := service.NewSessionManager(w, reg.ForCaller, service.Config{
		Markers:   markers,
		Tokenizer: tok,
		Logger:    slog.New(slog.DiscardHandler),
	})
	t.Cleanup(mgr.Close)

	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)
	audit := service.NewAuditService(reg, reg.ForCaller(owner), nil, slog.New(slog.DiscardHandler))

	handlers := NewSessionHandlers(mgr, audit)
	return &env{
		router:  SetupRouter(handlers, tok, markers, slog.New(slog.DiscardHandler)),
		markers: markers,
	}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestSessionFlowOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec, body := e.do(t, http.MethodPost, "/session/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "connected_unregistered", body["state"])

	rec, body = e.do(t, http.MethodPost, "/session/register", gin.H{"username": "ab"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "username_too_short", body["kind"])

	rec, body = e.do(t, http.MethodPost, "/session/register", gin.H{"username": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "connected_registered", body["state"])
	require.Equal(t, "alice", body["username"])

	rec, body = e.do(t, http.MethodPost, "/session/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "awaiting_otp", body["state"])
	code, ok := body["otp"].(string)
	require.True(t, ok)
	require.Len(t, code, 6)

	rec, body = e.do(t, http.MethodPost, "/session/otp", gin.H{"otp": "000000x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_otp", body["kind"])

	rec, body = e.do(t, http.MethodPost, "/session/otp", gin.H{"otp": code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged_in", body["state"])
	require.NotContains(t, body, "otp")

	rec, body = e.do(t, http.MethodGet, "/audit/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2) // registration + login attempt

	rec, body = e.do(t, http.MethodDelete, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "disconnected", body["state"])
}

func TestProtectedRoute(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Walk the flow to obtain a marker token.
	_, _ = e.do(t, http.MethodPost, "/session/connect", nil)
	_, _ = e.do(t, http.MethodPost, "/session/register", gin.H{"username": "alice"})
	_, body := e.do(t, http.MethodPost, "/session/login", nil)
	code := body["otp"].(string)
	rec, _ = e.do(t, http.MethodPost, "/session/otp", gin.H{"otp": code})
	require.Equal(t, http.StatusOK, rec.Code)

	var session map[string]any
	_, session = e.do(t, http.MethodGet, "/session", nil)
	addr := session["address"].(string)

	token, ok, err := e.markers.Marker(context.Background(), addrFromHex(addr))
	require.NoError(t, err)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var me map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &me))
	require.Equal(t, addr, me["address"])
	require.Equal(t, "alice", me["username"])

	// Disconnect invalidates the marker for protected routes.
	rec, _ = e.do(t, http.MethodDelete, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	recorder = httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
