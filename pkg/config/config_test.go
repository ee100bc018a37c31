package config

import "testing"

func TestDBConfigEnsureDSNPrefersExplicit(t *testing.T) {
	cfg := DBConfig{DSN: "postgres://explicit"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN error: %v", err)
	}
	if cfg.DSN != "postgres://explicit" {
		t.Fatalf("explicit DSN must win, got %q", cfg.DSN)
	}
}

func TestDBConfigEnsureDSNFromParts(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "returns",
		Password: "secret",
		Name:     "returns",
		SSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("ensureDSN error: %v", err)
	}
	want := "host=localhost port=5432 user=returns password=secret dbname=returns sslmode=disable"
	if cfg.DSN != want {
		t.Fatalf("dsn = %q, want %q", cfg.DSN, want)
	}
}

func TestDBConfigEnsureDSNMissingParts(t *testing.T) {
	cfg := DBConfig{Host: "localhost"}
	if err := cfg.ensureDSN(); err == nil {
		t.Fatal("expected error when user/name missing")
	}
}

func TestAppConfigEnvHelpers(t *testing.T) {
	if !(AppConfig{Env: "DEV"}).IsDev() {
		t.Fatal("IsDev should be case-insensitive")
	}
	if (AppConfig{Env: "dev"}).IsProd() {
		t.Fatal("dev is not prod")
	}
}
