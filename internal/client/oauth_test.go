package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOAuth2TokenRequest_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "password" ||
			r.PostForm.Get("client_id") != "integrator-key" ||
			r.PostForm.Get("username") != "johndoe" ||
			r.PostForm.Get("scope") != "api" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"the-token","token_type":"bearer"}`))
	}))
	defer server.Close()

	token, err := OAuth2TokenRequest(context.Background(), server.URL, "johndoe", "secret", "integrator-key")
	if err != nil {
		t.Fatalf("OAuth2TokenRequest() error = %v", err)
	}
	if token != "the-token" {
		t.Errorf("token = %q", token)
	}
}

func TestOAuth2TokenRequest_InvalidClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	_, err := OAuth2TokenRequest(context.Background(), server.URL, "johndoe", "wrong", "integrator-key")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var oauthErr *OAuth2Error
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %T, want *OAuth2Error", err)
	}
	if oauthErr.Code != "invalid_client" {
		t.Errorf("Code = %q, want invalid_client", oauthErr.Code)
	}
}

func TestOAuth2TokenRevoke(t *testing.T) {
	var revoked string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/revoke" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		revoked = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := OAuth2TokenRevoke(context.Background(), server.URL, "the-token"); err != nil {
		t.Fatalf("OAuth2TokenRevoke() error = %v", err)
	}
	if revoked != "the-token" {
		t.Errorf("revoked token = %q", revoked)
	}
}
