package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/haitech14/miservicios-sub001/internal/config"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"https://cdn.example.com", "organizations/a/logo.png", "https://cdn.example.com/organizations/a/logo.png"},
		{"https://cdn.example.com/", "/organizations/a/logo.png", "https://cdn.example.com/organizations/a/logo.png"},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.base, tt.key); got != tt.want {
			t.Errorf("PublicURL(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestBrandingKey(t *testing.T) {
	got := BrandingKey("gym-norte", "logo", "abc", "Logo.PNG")
	if got != "organizations/gym-norte/logo-abc.png" {
		t.Errorf("BrandingKey = %q", got)
	}
	if got := BrandingKey("gym-norte", "cover", "abc", "cover"); got != "organizations/gym-norte/cover-abc" {
		t.Errorf("BrandingKey without ext = %q", got)
	}
}

func TestNewS3Uploader_NotConfigured(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), &config.Config{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
