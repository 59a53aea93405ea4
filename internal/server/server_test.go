package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/authproto"
	"github.com/eugener/warden/internal/auth/method/native"
	"github.com/eugener/warden/internal/envelope"
	"github.com/eugener/warden/internal/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *envelope.KeyPair, *memory.Store) {
	t.Helper()
	serverKP, err := envelope.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate server key pair: %v", err)
	}
	store := memory.New()
	proto := &authproto.Protocol{
		Keys:         serverKP,
		Method:       native.New(store),
		Sessions:     store,
		Users:        store,
		DefaultRoles: []warden.Role{warden.BuiltinRoles["member"]},
	}
	srv := httptest.NewServer(New(Deps{Proto: proto}))
	t.Cleanup(srv.Close)
	return srv, serverKP, store
}

func sealLogin(t *testing.T, serverPub [envelope.KeySize]byte, clientPub [envelope.KeySize]byte, ctime int64, ident string) string {
	t.Helper()
	req := authproto.LoginRequest{
		Ctime: ctime,
		Pbkey: base64.StdEncoding.EncodeToString(clientPub[:]),
		Ident: json.RawMessage(ident),
	}
	sealed, err := envelope.SealJSON(req, serverPub)
	if err != nil {
		t.Fatalf("seal login request: %v", err)
	}
	return sealed
}

func sealAuthData(t *testing.T, serverPub [envelope.KeySize]byte, data authproto.AuthData) string {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal auth data: %v", err)
	}
	sealed, err := envelope.Seal(raw, serverPub)
	if err != nil {
		t.Fatalf("seal auth data: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sealed)
}

// TestNativeLoginAndSerialRatchet exercises spec.md 8's scenario 1 end to
// end over real HTTP: login, then a protected request succeeds once per
// serial and is rejected on replay.
func TestNativeLoginAndSerialRatchet(t *testing.T) {
	srv, serverKP, store := newTestServer(t)

	if err := store.CreateUser(context.Background(), &warden.User{
		Name:         "Elene",
		PasswordHash: mustHash(t, "secret"),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	clientKP, err := envelope.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate client key pair: %v", err)
	}

	infoResp, err := http.Get(srv.URL + "/auth")
	if err != nil {
		t.Fatalf("GET /auth: %v", err)
	}
	var info authproto.ServerInfo
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		t.Fatalf("decode server info: %v", err)
	}
	infoResp.Body.Close()

	sealedReq := sealLogin(t, serverKP.Public, clientKP.Public, info.Ctime, `{"native":{"name":"Elene","pass":"secret"}}`)

	loginResp, err := http.Post(srv.URL+"/auth", "application/x-base64-sealed-json", strings.NewReader(sealedReq))
	if err != nil {
		t.Fatalf("POST /auth: %v", err)
	}
	if loginResp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", loginResp.StatusCode)
	}
	body, _ := io.ReadAll(loginResp.Body)
	loginResp.Body.Close()

	var loginPlain authproto.LoginResponse
	if err := envelope.OpenJSON(string(body), clientKP, &loginPlain); err != nil {
		t.Fatalf("open login response: %v", err)
	}
	token, err := base64.StdEncoding.DecodeString(loginPlain.Token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}

	authFor := func(serial uint64) string {
		return sealAuthData(t, serverKP.Public, authproto.AuthData{
			UserID:    loginPlain.UserID,
			SessionID: loginPlain.SessionID,
			Token:     base64.StdEncoding.EncodeToString(token),
			Serial:    serial,
		})
	}

	// serial:1 succeeds.
	req1, _ := http.NewRequest(http.MethodGet, srv.URL+"/whoami", nil)
	req1.Header.Set("X-Auth", authFor(1))
	resp1, err := http.DefaultClient.Do(req1)
	if err != nil {
		t.Fatalf("whoami (serial 1): %v", err)
	}
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("whoami (serial 1) status = %d, want 200", resp1.StatusCode)
	}
	resp1.Body.Close()

	// replaying serial:1 fails BadSession.
	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/whoami", nil)
	req2.Header.Set("X-Auth", authFor(1))
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("whoami (replay serial 1): %v", err)
	}
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("whoami (replay serial 1) status = %d, want 403", resp2.StatusCode)
	}
	resp2.Body.Close()

	// serial:2 succeeds.
	req3, _ := http.NewRequest(http.MethodGet, srv.URL+"/whoami", nil)
	req3.Header.Set("X-Auth", authFor(2))
	resp3, err := http.DefaultClient.Do(req3)
	if err != nil {
		t.Fatalf("whoami (serial 2): %v", err)
	}
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("whoami (serial 2) status = %d, want 200", resp3.StatusCode)
	}
	resp3.Body.Close()
}

// TestEnvelopeTamperReturnsCryptoError exercises spec.md 8's scenario 6: a
// single flipped byte in a sealed X-Auth header fails integrity, not just
// base64 decoding.
func TestEnvelopeTamperReturnsCryptoError(t *testing.T) {
	srv, serverKP, _ := newTestServer(t)

	sealed := sealAuthData(t, serverKP.Public, authproto.AuthData{
		UserID:    "u1",
		SessionID: "1",
		Token:     base64.StdEncoding.EncodeToString([]byte("0123456789abcdefghij")),
		Serial:    1,
	})
	tampered := flipByte(t, sealed)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/whoami", nil)
	req.Header.Set("X-Auth", tampered)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("whoami (tampered): %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body apiError
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Kind != "CryptoError" {
		t.Errorf("error kind = %q, want CryptoError", body.Error.Kind)
	}
}

func TestHealthzAndReadyz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", resp2.StatusCode)
	}
}

func TestWhoamiWithoutAuthHeaderRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/whoami")
	if err != nil {
		t.Fatalf("GET /whoami: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (MissingAuth)", resp.StatusCode)
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := native.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func flipByte(t *testing.T, b64 string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode for tamper: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("cannot tamper empty payload")
	}
	raw[len(raw)/2] ^= 0xFF
	return base64.StdEncoding.EncodeToString(raw)
}

