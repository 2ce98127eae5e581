package database

import (
	"testing"

	"pointsystem/internal/config"

	"gorm.io/gorm/logger"
)

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		wantErr bool
	}{
		{"mysql", "mysql", false},
		{"postgres", "postgres", false},
		{"memory", "", true},
	}
	for _, tt := range tests {
		d, err := dialectorFor(&config.DatabaseConfig{Driver: tt.driver, Host: "localhost", Port: 1, Database: "x"})
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.driver)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.driver, err)
		}
		if d.Name() != tt.name {
			t.Errorf("%s: dialector name = %q", tt.driver, d.Name())
		}
	}
}

func TestLogLevel(t *testing.T) {
	if logLevel("info") != logger.Info {
		t.Error("info")
	}
	if logLevel("") != logger.Warn {
		t.Error("default should be warn")
	}
	if logLevel("silent") != logger.Silent {
		t.Error("silent")
	}
}
