package cpe

import (
	"errors"
	"testing"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"^5.4", "5.4"},
		{"^18.2.0", "18.2.0"},
		{"~7.5.0", "7.5.0"},
		{">=1.0.0", "1.0.0"},
		{"<=2.0.0", "2.0.0"},
		{">3.0.0", "3.0.0"},
		{"<4.0.0", "4.0.0"},
		{">=^1.0.0", "1.0.0"},
		{"1.25.3-alpine", "1.25.3"},
		{"1.25.3-alpine-slim", "1.25.3"},
		{"15.2-slim", "15.2"},
		{"3.11_buster", "3.11"},
		{"5.4.0", "5.4.0"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeVersion(tt.input); got != tt.expected {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Nginx", "nginx"},
		{"SYMFONY", "symfony"},
		{"My Product", "my_product"},
		{"Some Package Name", "some_package_name"},
		{"vendor/product", "vendor_product"},
		{`vendor\product`, "vendor_product"},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.input); got != tt.expected {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		vendor, product, version string
		expected                 string
	}{
		{"Nginx", "Nginx", "1.25.3", "cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*"},
		{"Symfony", "Console", "^5.4", "cpe:2.3:a:symfony:console:5.4:*:*:*:*:*:*:*"},
		{"Vendor/Sub", "Product Name", "1.0", "cpe:2.3:a:vendor_sub:product_name:1.0:*:*:*:*:*:*:*"},
		{"vendor", "product", "", "cpe:2.3:a:vendor:product::*:*:*:*:*:*:*"},
	}

	for _, tt := range tests {
		if got := Build(tt.vendor, tt.product, tt.version).String(); got != tt.expected {
			t.Errorf("Build(%q, %q, %q) = %q, want %q", tt.vendor, tt.product, tt.version, got, tt.expected)
		}
	}
}

func TestParse(t *testing.T) {
	id, err := Parse("cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id.Part != PartApplication || id.Vendor != "nginx" || id.Product != "nginx" || id.Version != "1.25.3" {
		t.Errorf("unexpected identifier: %+v", id)
	}

	if id.Other != Any {
		t.Errorf("expected trailing attribute %q, got %q", Any, id.Other)
	}

	if got := id.String(); got != "cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*" {
		t.Errorf("round trip mismatch: %s", got)
	}
}

func TestParseEscapedColon(t *testing.T) {
	raw := `cpe:2.3:a:acme:web\:server:2.0:*:*:*:*:*:*:*`

	id, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id.Product != `web\:server` {
		t.Errorf("expected escaped product, got %q", id.Product)
	}

	if id.String() != raw {
		t.Errorf("round trip mismatch: %s", id.String())
	}
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"cpe:2.3:a:nginx",
		"cpe:2.3:a:nginx:nginx:1.25.3",
		"cpe:2.2:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*",
		"foo:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*",
		"cpe:2.3:x:nginx:nginx:1.25.3:*:*:*:*:*:*:*",
		"cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*:extra",
	}

	for _, input := range inputs {
		if _, err := Parse(input); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformed", input, err)
		}
	}
}

func TestWithVersion(t *testing.T) {
	original := Build("nginx", "nginx", "1.25.3")
	updated := original.WithVersion("1.25.4")

	if original.Version != "1.25.3" {
		t.Errorf("original identifier was modified: %s", original.Version)
	}
	if updated.Version != "1.25.4" {
		t.Errorf("expected updated version, got %s", updated.Version)
	}
}

func TestPackageBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      Identifier
		expected string
	}{
		{"composer vendor/product", FromComposer("symfony/console", "^5.4"), "cpe:2.3:a:symfony:console:5.4:*:*:*:*:*:*:*"},
		{"composer tilde", FromComposer("guzzlehttp/guzzle", "~7.5"), "cpe:2.3:a:guzzlehttp:guzzle:7.5:*:*:*:*:*:*:*"},
		{"composer without vendor", FromComposer("somepackage", "1.0.0"), "cpe:2.3:a:somepackage:somepackage:1.0.0:*:*:*:*:*:*:*"},
		{"npm mapped", FromNPM("react", "^18.2.0"), "cpe:2.3:a:facebook:react:18.2.0:*:*:*:*:*:*:*"},
		{"npm scoped", FromNPM("@angular/core", "16.0.0"), "cpe:2.3:a:angular:core:16.0.0:*:*:*:*:*:*:*"},
		{"npm scoped cli", FromNPM("@vue/cli", "~5.0.8"), "cpe:2.3:a:vuejs:cli:5.0.8:*:*:*:*:*:*:*"},
		{"npm unknown", FromNPM("unknown-package", "^1.0.0"), "cpe:2.3:a:npmjs:unknown-package:1.0.0:*:*:*:*:*:*:*"},
		{"docker mapped", FromDocker("postgres", "15.2"), "cpe:2.3:a:postgresql:postgres:15.2:*:*:*:*:*:*:*"},
		{"docker tag suffix", FromDocker("nginx", "1.25.3-alpine"), "cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*"},
		{"docker unknown", FromDocker("unknown-image", "1.0.0"), "cpe:2.3:a:docker:unknown-image:1.0.0:*:*:*:*:*:*:*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got.String(); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestForSource(t *testing.T) {
	id, err := ForSource(SourceNPM, "express", "^4.18.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "cpe:2.3:a:expressjs:express:4.18.2:*:*:*:*:*:*:*" {
		t.Errorf("unexpected identifier %s", id)
	}

	if _, err := ForSource(SourceManual, "express", "1.0"); err == nil {
		t.Error("expected error for manual source")
	}
}
