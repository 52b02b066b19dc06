package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		wantErr bool
	}{
		{"current", CurrentVersion, false},
		{"unversioned file", 0, false},
		{"newer than build", CurrentVersion + 1, true},
		{"negative", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateVersion(%d) = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
			if err != nil {
				var ve *VersionError
				if !errors.As(err, &ve) {
					t.Fatalf("error type = %T, want *VersionError", err)
				}
			}
		})
	}
}

func TestVersionErrorSuggestsUpgradeForNewerConfig(t *testing.T) {
	err := ValidateVersion(CurrentVersion + 1)
	if err == nil || !strings.Contains(err.Error(), "upgrade") {
		t.Fatalf("error = %v, want an upgrade hint", err)
	}
}

func TestConfigValidateRejectsUnsupportedVersion(t *testing.T) {
	cfg := Default()
	cfg.Version = CurrentVersion + 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted an unsupported config version")
	}
}
