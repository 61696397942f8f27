package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidImageRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"/uploads/projects/1700000000000-123456789.jpg", true},
		{"https://res.cloudinary.com/demo/image/upload/v1/portfolio/a.jpg", true},
		{"http://localhost:5000/uploads/hero/a.png", true},
		{"", false},
		{" /uploads/a.png", false},
		{"//evil.example.com/a.png", false},
		{"/uploads/../etc/passwd", false},
		{"uploads/a.png", false},
		{"data:image/png;base64,AAAA", false},
		{"ftp://example.com/a.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := ValidImageRef(tt.ref); got != tt.want {
				t.Errorf("ValidImageRef(%q) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestRegisterValidators(t *testing.T) {
	v := validator.New()
	if err := RegisterValidators(v); err != nil {
		t.Fatalf("RegisterValidators() error: %v", err)
	}

	type payload struct {
		Images []string `validate:"dive,imageref"`
	}

	if err := v.Struct(payload{Images: []string{"/uploads/a.png", "https://cdn.example.com/b.webp"}}); err != nil {
		t.Errorf("valid refs rejected: %v", err)
	}
	if err := v.Struct(payload{Images: []string{"/uploads/a.png", "../b.png"}}); err == nil {
		t.Error("invalid ref accepted")
	}
	if err := v.Struct(payload{}); err != nil {
		t.Errorf("nil list rejected: %v", err)
	}
}

func TestRegisterWithGin(t *testing.T) {
	if err := RegisterWithGin(); err != nil {
		t.Fatalf("RegisterWithGin() error: %v", err)
	}
}
