package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "cam1", false},
		{"single char", "a", false},
		{"hyphen and underscore", "rear-camera_01", false},
		{"max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"leading hyphen", "-cam", true},
		{"trailing underscore", "cam_", true},
		{"spaces", "cam 1", true},
		{"slash", "cam/1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr && !errors.Is(err, ErrInvalidID) {
				t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", tt.id, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateID(%q) = %v", tt.id, err)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"ipv4", "192.168.1.50", false},
		{"ipv6", "fe80::1", false},
		{"hostname", "rear-camera.local", false},
		{"bare hostname", "camper-pi", false},
		{"empty", "", true},
		{"spaces", "10.0.0.1 extra", true},
		{"scheme", "http://10.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if tt.wantErr && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ValidateAddress(%q) = %v, want ErrInvalidAddress", tt.address, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateAddress(%q) = %v", tt.address, err)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 80, 8080, 65535} {
		if err := ValidatePort(port); err != nil {
			t.Errorf("ValidatePort(%d) = %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePort(port); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("ValidatePort(%d) = %v, want ErrInvalidPort", port, err)
		}
	}
}

func TestEndpoint(t *testing.T) {
	rec := &Record{Address: "192.168.1.50", Port: 8080}
	if got := rec.Endpoint(); got != "192.168.1.50:8080" {
		t.Errorf("Endpoint = %q", got)
	}

	rec = &Record{Address: "fe80::1", Port: 8080}
	if got := rec.Endpoint(); got != "[fe80::1]:8080" {
		t.Errorf("ipv6 Endpoint = %q", got)
	}
}
