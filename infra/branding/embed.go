package branding

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed brand.yaml
var brandYAML []byte

// Brand carries the customer-facing identity used in outbound email.
type Brand struct {
	Name         string `yaml:"name"`
	Tagline      string `yaml:"tagline"`
	PortalURL    string `yaml:"portal_url"`
	SupportEmail string `yaml:"support_email"`
}

// Load parses the embedded brand definition.
func Load() (Brand, error) {
	return parse(brandYAML)
}

func parse(data []byte) (Brand, error) {
	var b Brand
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Brand{}, fmt.Errorf("parse brand: %w", err)
	}
	if b.Name == "" {
		return Brand{}, errors.New("brand name is required")
	}
	return b, nil
}
