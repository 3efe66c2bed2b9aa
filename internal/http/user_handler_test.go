package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"detective-llm/internal/service"
)

type loginResponse struct {
	Points      int    `json:"points"`
	Streak      int    `json:"streak"`
	Awarded     bool   `json:"awarded"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func TestLogin_FirstVisitCreatesAndAwards(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	rec := doRequest(env.router, "/user/login", map[string]string{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Awarded {
		t.Fatal("la primera visita debe acreditar")
	}
	if resp.Points != service.InitialPoints {
		t.Fatalf("points = %d", resp.Points)
	}
	if resp.Streak != 1 {
		t.Fatalf("streak = %d", resp.Streak)
	}
}

func TestLogin_SecondVisitSameDayNotAwarded(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	doRequest(env.router, "/user/login", map[string]string{}, true)
	rec := doRequest(env.router, "/user/login", map[string]string{}, true)

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Awarded {
		t.Fatal("la segunda visita del día no acredita")
	}
	if resp.Message != "Bienvenido de nuevo" {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Points != service.InitialPoints {
		t.Fatalf("points = %d", resp.Points)
	}
}

func TestLogin_IssuesSessionToken(t *testing.T) {
	jwtSvc := service.NewJWTService("secreto-de-prueba", time.Hour)
	env := newTestEnv(t, nil, nil, jwtSvc)

	rec := doRequest(env.router, "/user/login", map[string]string{}, true)
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("falta el access_token")
	}
	if resp.ExpiresIn <= 0 {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}

	claims, err := jwtSvc.ParseAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.PlayerID != service.CredentialDigest(testAPIKey) {
		t.Fatalf("playerID = %q", claims.PlayerID)
	}
}

func TestLogin_IdentityIsCredentialDigest(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)

	doRequest(env.router, "/user/login", map[string]string{}, true)

	// El libro de puntos guarda el digest, nunca la credencial en claro.
	id := service.CredentialDigest(testAPIKey)
	player, err := env.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if player.ID != id || player.ID == testAPIKey {
		t.Fatalf("id = %q", player.ID)
	}
}

func TestBearerTokenOverridesDigestIdentity(t *testing.T) {
	jwtSvc := service.NewJWTService("secreto-de-prueba", time.Hour)
	env := newTestEnv(t, nil, nil, jwtSvc)

	tok, err := jwtSvc.GenerateToken("jugador-fijo")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := env.repo.Get(context.Background(), "jugador-fijo"); err != nil {
		t.Fatalf("la identidad del token no se usó: %v", err)
	}
}
