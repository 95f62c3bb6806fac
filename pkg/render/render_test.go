package render

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := map[string]any{
		"Name":      `Ana "<b>"`,
		"Code":      "C2C1A2B3C4D5",
		"ValidDays": 30,
		"ExpiresOn": "June 1, 2024",
		"Brand": map[string]string{
			"Name":         "Curry2Cakes",
			"Tagline":      "From Spicy to Sweet!",
			"PortalURL":    "https://curry2cakes.com/invite",
			"SupportEmail": "hello@curry2cakes.com",
		},
	}

	tests := []struct {
		template string
		want     []string
		reject   []string
	}{
		{
			template: "invite_email.html.tmpl",
			want:     []string{"C2C1A2B3C4D5", "valid for 30 days", "June 1, 2024", `href="https://curry2cakes.com/invite"`, "mailto:hello@curry2cakes.com"},
			reject:   []string{"<b>"},
		},
		{
			template: "invite_email.txt.tmpl",
			want:     []string{`Hello Ana "<b>",`, "C2C1A2B3C4D5", "valid for 30 days", "Questions? Write to hello@curry2cakes.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			out, err := engine.Render(tt.template, data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing %q:\n%s", want, out)
				}
			}
			for _, reject := range tt.reject {
				if strings.Contains(out, reject) {
					t.Fatalf("output contains %q:\n%s", reject, out)
				}
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := engine.Render("missing.txt.tmpl", nil); err == nil {
		t.Fatalf("expected unknown template error")
	}

	var nilEngine *Engine
	if _, err := nilEngine.Render("invite_email.txt.tmpl", nil); err == nil {
		t.Fatalf("expected nil engine error")
	}
}
