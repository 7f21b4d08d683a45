package vault

import (
	"context"
	"path/filepath"
	"testing"

	"dvsmart-go/internal/config"
)

func TestNewDestinationFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DestinationConfig
		wantErr bool
	}{
		{
			name:    "memory destination",
			cfg:     config.DestinationConfig{Type: "memory"},
			wantErr: false,
		},
		{
			name: "filesystem destination",
			cfg: config.DestinationConfig{
				Type:   "filesystem",
				FSRoot: filepath.Join(t.TempDir(), "organized"),
			},
			wantErr: false,
		},
		{
			name:    "filesystem destination without root",
			cfg:     config.DestinationConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 destination without bucket",
			cfg:     config.DestinationConfig{Type: "s3"},
			wantErr: true,
		},
		{
			name:    "unknown destination type",
			cfg:     config.DestinationConfig{Type: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDestinationFromConfig(context.Background(), tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewDestinationFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				if got != nil {
					t.Error("NewDestinationFromConfig() should return nil on error")
				}
				return
			}

			if err := got.ValidateSetup(context.Background()); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}
