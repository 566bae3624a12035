package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bota93/spendesk/internal/config"
	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "mongodb"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", JWTSecret: secret, SessionTTL: time.Hour})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend, JWTSecret: secret, SessionTTL: time.Hour}, false},
		{"memory short secret", Config{Type: MemoryBackend, JWTSecret: "short", SessionTTL: time.Hour}, true},
		{"sqlite without path", Config{Type: SQLiteBackend, JWTSecret: secret, SessionTTL: time.Hour}, true},
		{"postgres without url", Config{Type: PostgresBackend, JWTSecret: secret, SessionTTL: time.Hour}, true},
		{"supabase", Config{Type: SupabaseBackend, SupabaseURL: "https://x.supabase.co", SupabaseAnonKey: "k"}, false},
		{"supabase without key", Config{Type: SupabaseBackend, SupabaseURL: "https://x.supabase.co"}, true},
		{"unknown", Config{Type: "mongodb"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateLocalBackends(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	var got []events.AuthEvent
	bus.Subscribe(func(e events.AuthEvent) { got = append(got, e) })
	f := NewFactory(nil, bus)

	for _, cfg := range []Config{
		{Type: MemoryBackend, JWTSecret: secret, SessionTTL: time.Hour},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "spendesk.db"), JWTSecret: secret, SessionTTL: time.Hour},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Close()

			if res.Repository == nil {
				t.Fatal("local backends expose their repository")
			}
			if err := res.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}

			s, err := res.Backend.SignUp(ctx, "ana@example.com", "secret1", core.UserMetadata{})
			if err != nil {
				t.Fatalf("SignUp: %v", err)
			}
			if _, err := res.Backend.SignIn(ctx, "ana@example.com", "nope-nope"); !errors.Is(err, core.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if err := res.Backend.SignOut(ctx, s.AccessToken); err != nil {
				t.Fatalf("SignOut: %v", err)
			}
		})
	}

	if len(got) == 0 || got[len(got)-1].Type != events.SignedOut {
		t.Fatalf("factory backends should publish to the bus, got %+v", got)
	}
}

func TestCreateSupabaseBackend(t *testing.T) {
	res, err := NewFactory(nil, nil).CreateBackend(context.Background(), Config{
		Type:            SupabaseBackend,
		SupabaseURL:     "https://x.supabase.co",
		SupabaseAnonKey: "anon",
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Repository != nil || res.Close() != nil {
		t.Fatal("hosted backend has no local repository to close")
	}
}
