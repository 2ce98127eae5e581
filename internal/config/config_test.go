package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Business.StreakBonusInterval != 7 {
		t.Errorf("streak_bonus_interval = %d, want 7", cfg.Business.StreakBonusInterval)
	}
	if cfg.Kafka.Topic.PointsEvent != "points_event" {
		t.Errorf("points topic = %q", cfg.Kafka.Topic.PointsEvent)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: mysql\n  password: from-file\n")
	t.Setenv("DATABASE_PASSWORD", "from-env")
	t.Setenv("BUSINESS_TIMEZONE", "Asia/Shanghai")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("password = %q, want from-env", cfg.Database.Password)
	}
	loc, err := cfg.Business.Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc.String() != "Asia/Shanghai" {
		t.Errorf("location = %s", loc)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: oracle\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
