package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GATEWAY_BACKEND", "")
	t.Setenv("QUEUE_MAX_LENGTH", "")
	t.Setenv("CLINIC_NAME", "")
	t.Setenv("STAFF_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.GatewayBackend != "supabase" {
		t.Fatalf("expected supabase gateway default, got %s", cfg.GatewayBackend)
	}
	if cfg.QueueMaxLength != 200 {
		t.Fatalf("expected default queue bound, got %d", cfg.QueueMaxLength)
	}
	if cfg.ReusableCancelledSlots {
		t.Fatal("cancelled slots should block by default")
	}
	if len(cfg.ReminderOffsets) != 3 || cfg.ReminderOffsets[0] != 24*time.Hour {
		t.Fatalf("unexpected reminder offsets: %v", cfg.ReminderOffsets)
	}
	if cfg.ClinicName != "Pearl Dental" {
		t.Fatalf("expected default clinic name, got %q", cfg.ClinicName)
	}
	if len(cfg.StaffEmails) != 0 {
		t.Fatalf("expected no staff emails by default, got %v", cfg.StaffEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEWAY_BACKEND", "Memory ")
	t.Setenv("QUEUE_DRAIN_INTERVAL", "5s")
	t.Setenv("REMINDER_OFFSETS", "48h, 1h")
	t.Setenv("REUSABLE_CANCELLED_SLOTS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CLINIC_NAME", "Harbor Smiles")
	t.Setenv("STAFF_EMAILS", "desk@harborsmiles.example, office@harborsmiles.example")

	cfg := Load()
	if cfg.GatewayBackend != "memory" {
		t.Fatalf("expected trimmed lowercase backend, got %q", cfg.GatewayBackend)
	}
	if cfg.QueueDrainInterval != 5*time.Second {
		t.Fatalf("expected 5s drain interval, got %s", cfg.QueueDrainInterval)
	}
	if len(cfg.ReminderOffsets) != 2 || cfg.ReminderOffsets[1] != time.Hour {
		t.Fatalf("unexpected reminder offsets: %v", cfg.ReminderOffsets)
	}
	if !cfg.ReusableCancelledSlots {
		t.Fatal("expected cancelled slots reusable")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ClinicName != "Harbor Smiles" {
		t.Fatalf("unexpected clinic name: %q", cfg.ClinicName)
	}
	if len(cfg.StaffEmails) != 2 || cfg.StaffEmails[0] != "desk@harborsmiles.example" {
		t.Fatalf("unexpected staff emails: %v", cfg.StaffEmails)
	}
}

func TestGetEnvAsDurationsInvalidFallsBack(t *testing.T) {
	t.Setenv("REMINDER_OFFSETS", "24h,notaduration")
	cfg := Load()
	if len(cfg.ReminderOffsets) != 3 {
		t.Fatalf("expected fallback to defaults, got %v", cfg.ReminderOffsets)
	}
}
