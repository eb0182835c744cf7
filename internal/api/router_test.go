package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"islandregistry/internal/account"
	"islandregistry/internal/coordinator"
	"islandregistry/internal/discovery"
	"islandregistry/internal/fetch"
	"islandregistry/internal/identity"
	"islandregistry/internal/ownership"
	"islandregistry/internal/ratelimit"
	"islandregistry/internal/store"
)

func newTestServer(t *testing.T, fetchSrv *httptest.Server) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlx.Open("sqlite3", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var fetchOpts []fetch.Option
	if fetchSrv != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(fetchSrv.Client()))
	}
	f := fetch.New(fetchOpts...)
	t.Cleanup(f.Close)

	ownReg := ownership.New(s)
	coord := coordinator.New(s, ownReg, f)
	disc := discovery.New(s)
	idsvc := identity.New(s)
	acct := account.New(s, []byte("test-signing-key"))

	deps := &Deps{
		Store:       s,
		Discovery:   disc,
		Coordinator: coord,
		Ownership:   ownReg,
		Identity:    idsvc,
		Account:     acct,
		AuthLimiter: ratelimit.New(ratelimit.Config{RatePerSecond: 100, Burst: 1000}),
		AnonLimiter: ratelimit.New(ratelimit.Config{RatePerSecond: 100, Burst: 1000}),
	}
	r := SetupRouter(deps)
	return httptest.NewServer(r)
}

func mustIssueToken(t *testing.T, s *store.Store, principal string) string {
	t.Helper()
	token := "reg_test_" + principal
	if _, err := s.CreateAPIToken(context.Background(), identity.HashToken(token), principal, "test", []string{"publish"}); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRegisterPublishAndDiscover(t *testing.T) {
	artifactSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{})
	}))
	defer artifactSrv.Close()

	server := newTestServer(t, artifactSrv)
	defer server.Close()

	db, err := sqlx.Open("sqlite3", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	s, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// This second store is a separate handle onto the same in-memory
	// database the running server uses (t.Name() is shared, so the DSN
	// matches); sqlite's shared-cache mode makes both handles see the
	// same data, which is what lets this test mint a token the running
	// server's store will also see.
	token := mustIssueToken(t, s, "alice")

	body := map[string]any{
		"name":                "pokemon_emerald",
		"version":             "1.0.0",
		"game":                "Pokemon Emerald",
		"minimum_ap_version":  "0.5.0",
		"entry_points":        map[string]string{"pokemon_emerald": "pokemon_emerald.world:World"},
		"distributions": []map[string]any{
			{
				"filename":     "pokemon_emerald-1.0.0-py3-none-any.island",
				"url":          artifactSrv.URL + "/a.island",
				"sha256":       "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
				"size":         0,
				"platform_tag": "py3-none-any",
			},
		},
	}
	buf, _ := json.Marshal(body)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/register", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d, want 200", resp.StatusCode)
	}

	getResp, err := http.Get(server.URL + "/v1/packages/pokemon_emerald")
	if err != nil {
		t.Fatalf("GET package: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get package status = %d, want 200", getResp.StatusCode)
	}
}

func TestRegisterRequiresAuthentication(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	buf, _ := json.Marshal(map[string]any{"name": "x", "version": "1.0.0"})
	resp, err := http.Post(server.URL+"/v1/register", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST /v1/register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGetUnknownPackageNotFound(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/packages/nonexistent")
	if err != nil {
		t.Fatalf("GET package: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAccountRegisterLoginAndMintToken(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	regBody, _ := json.Marshal(map[string]any{"username": "alice", "password": "supersecret"})
	resp, err := http.Post(server.URL+"/v1/accounts", "application/json", bytes.NewReader(regBody))
	if err != nil {
		t.Fatalf("POST /v1/accounts: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("account register status = %d, want 201", resp.StatusCode)
	}

	loginResp, err := http.Post(server.URL+"/v1/login", "application/json", bytes.NewReader(regBody))
	if err != nil {
		t.Fatalf("POST /v1/login: %v", err)
	}
	defer loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", loginResp.StatusCode)
	}

	var sessionCookie, csrfCookie *http.Cookie
	for _, ck := range loginResp.Cookies() {
		switch ck.Name {
		case "registry_session":
			sessionCookie = ck
		case "registry_csrf":
			csrfCookie = ck
		}
	}
	if sessionCookie == nil || csrfCookie == nil {
		t.Fatal("expected session and csrf cookies on login")
	}

	tokReq, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/tokens", bytes.NewReader([]byte(`{"name":"ci"}`)))
	tokReq.Header.Set("Content-Type", "application/json")
	tokReq.Header.Set("X-CSRF-Token", csrfCookie.Value)
	tokReq.AddCookie(sessionCookie)
	tokReq.AddCookie(csrfCookie)
	tokResp, err := http.DefaultClient.Do(tokReq)
	if err != nil {
		t.Fatalf("POST /v1/tokens: %v", err)
	}
	defer tokResp.Body.Close()
	if tokResp.StatusCode != http.StatusCreated {
		t.Fatalf("create token status = %d, want 201", tokResp.StatusCode)
	}
}
