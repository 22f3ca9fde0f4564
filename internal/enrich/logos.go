package enrich

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// LogoRule maps merchant names containing Match to a logo reference.
type LogoRule struct {
	Match string `yaml:"match"`
	Ref   string `yaml:"ref"`
}

// DefaultLogos returns the built-in known-merchant logo table.
// Longer, more specific matches come first.
func DefaultLogos() []LogoRule {
	return []LogoRule{
		{Match: "youtube", Ref: "youtube.com"},
		{Match: "netflix", Ref: "netflix.com"},
		{Match: "spotify", Ref: "spotify.com"},
		{Match: "hulu", Ref: "hulu.com"},
		{Match: "disney", Ref: "disneyplus.com"},
		{Match: "comcast", Ref: "xfinity.com"},
		{Match: "xfinity", Ref: "xfinity.com"},
		{Match: "verizon", Ref: "verizon.com"},
		{Match: "t-mobile", Ref: "t-mobile.com"},
		{Match: "at&t", Ref: "att.com"},
		{Match: "pg&e", Ref: "pge.com"},
		{Match: "pge", Ref: "pge.com"},
		{Match: "geico", Ref: "geico.com"},
		{Match: "adobe", Ref: "adobe.com"},
		{Match: "dropbox", Ref: "dropbox.com"},
		{Match: "github", Ref: "github.com"},
		{Match: "peloton", Ref: "onepeloton.com"},
		{Match: "amazon", Ref: "amazon.com"},
		{Match: "apple", Ref: "apple.com"},
	}
}

type logoFile struct {
	Logos []LogoRule `yaml:"logos"`
}

// LoadLogos reads a YAML logo table of the form
//
//	logos:
//	  - match: netflix
//	    ref: netflix.com
func LoadLogos(path string) ([]LogoRule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // Path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read logo file: %w", err)
	}

	var doc logoFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse logo file: %w", err)
	}
	return doc.Logos, nil
}
