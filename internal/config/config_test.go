package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test,
// restoring the original directory on cleanup. (Equivalent to t.Chdir,
// which requires Go 1.24.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	})
}

// chdirWithConfig creates a temp project root containing config/dev.yaml
// with the given content and chdirs into it for the duration of the test.
func chdirWithConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

func setCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOCUSIGN_USERNAME", "johndoe")
	t.Setenv("DOCUSIGN_PASSWORD", "secret")
	t.Setenv("DOCUSIGN_INTEGRATOR_KEY", "very-secret")
}

func TestLoad_EnvironmentOptions(t *testing.T) {
	chdirWithConfig(t, "server:\n  port: \"9090\"\n")
	setCredentialEnv(t)
	t.Setenv("DOCUSIGN_ROOT_URL", "http://other.example.com")
	t.Setenv("DOCUSIGN_ACCOUNT_ID", "not-an-uuid")
	t.Setenv("DOCUSIGN_APP_TOKEN", "not-a-token")
	t.Setenv("DOCUSIGN_OAUTH2_TOKEN", "some-oauth2-token")
	t.Setenv("DOCUSIGN_TIMEOUT", "200.123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RootURL != "http://other.example.com" {
		t.Errorf("RootURL = %q", cfg.RootURL)
	}
	if cfg.Username != "johndoe" || cfg.Password != "secret" || cfg.IntegratorKey != "very-secret" {
		t.Errorf("credentials = %q/%q/%q", cfg.Username, cfg.Password, cfg.IntegratorKey)
	}
	if cfg.AccountID != "not-an-uuid" {
		t.Errorf("AccountID = %q", cfg.AccountID)
	}
	if cfg.OAuth2Token != "some-oauth2-token" {
		t.Errorf("OAuth2Token = %q", cfg.OAuth2Token)
	}
	if want := 200*time.Second + 123*time.Millisecond; cfg.APITimeout != want {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, want)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	chdirWithConfig(t, `
docusign:
  root_url: "http://file.example.com"
  account_id: "file-account"
`)
	setCredentialEnv(t)
	t.Setenv("DOCUSIGN_ROOT_URL", "http://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RootURL != "http://env.example.com" {
		t.Errorf("RootURL = %q, want env value", cfg.RootURL)
	}
	if cfg.AccountID != "file-account" {
		t.Errorf("AccountID = %q, want file value", cfg.AccountID)
	}
}

func TestLoad_TimeoutFloor(t *testing.T) {
	chdirWithConfig(t, "")
	setCredentialEnv(t)
	t.Setenv("DOCUSIGN_TIMEOUT", "0.0009")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with sub-millisecond timeout expected error, got nil")
	}
}

func TestLoad_TimeoutTruncatedToMilliseconds(t *testing.T) {
	chdirWithConfig(t, "")
	setCredentialEnv(t)
	t.Setenv("DOCUSIGN_TIMEOUT", "1.2345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := 1234 * time.Millisecond; cfg.APITimeout != want {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, want)
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	chdirWithConfig(t, "")
	t.Setenv("DOCUSIGN_USERNAME", "")
	t.Setenv("DOCUSIGN_PASSWORD", "")
	t.Setenv("DOCUSIGN_INTEGRATOR_KEY", "")
	t.Setenv("DOCUSIGN_OAUTH2_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without credentials expected error, got nil")
	}
}

func TestLoad_OAuth2TokenAloneSuffices(t *testing.T) {
	chdirWithConfig(t, "")
	t.Setenv("DOCUSIGN_USERNAME", "")
	t.Setenv("DOCUSIGN_PASSWORD", "")
	t.Setenv("DOCUSIGN_INTEGRATOR_KEY", "")
	t.Setenv("DOCUSIGN_OAUTH2_TOKEN", "tok")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OAuth2Token != "tok" {
		t.Errorf("OAuth2Token = %q", cfg.OAuth2Token)
	}
}

func TestLoad_SecretsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	secrets := "docusign_username: filesuser\ndocusign_password: filespass\ndocusign_integrator_key: fileskey\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "secrets.yaml"), []byte(secrets), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	t.Setenv("DOCUSIGN_USERNAME", "")
	t.Setenv("DOCUSIGN_PASSWORD", "")
	t.Setenv("DOCUSIGN_INTEGRATOR_KEY", "")
	t.Setenv("DOCUSIGN_OAUTH2_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Username != "filesuser" || cfg.Password != "filespass" || cfg.IntegratorKey != "fileskey" {
		t.Errorf("secrets not applied: %q/%q/%q", cfg.Username, cfg.Password, cfg.IntegratorKey)
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	chdirWithConfig(t, "cache:\n  backend: redis\n")
	setCredentialEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("Load() with unknown cache backend expected error, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirWithConfig(t, "")
	setCredentialEnv(t)
	t.Setenv("DOCUSIGN_ROOT_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RootURL != "https://demo.docusign.net/restapi/v2" {
		t.Errorf("RootURL default = %q", cfg.RootURL)
	}
	if cfg.APITimeout != 30*time.Second {
		t.Errorf("APITimeout default = %v", cfg.APITimeout)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts default = %d", cfg.RetryAttempts)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend default = %q", cfg.CacheBackend)
	}
	if cfg.LoginCacheTTL != 10*time.Minute {
		t.Errorf("LoginCacheTTL default = %v", cfg.LoginCacheTTL)
	}
}
