package cpe

import (
	"fmt"
	"strings"
)

// Package ecosystems an identifier can be generated from
const (
	SourceManual   = "manual"
	SourceComposer = "composer"
	SourceNPM      = "npm"
	SourceDocker   = "docker"
)

const (
	defaultNPMVendor    = "npmjs"
	defaultDockerVendor = "docker"
)

// NPMVendors maps well-known npm package names to their NVD vendor
var NPMVendors = map[string]string{
	"react":         "facebook",
	"react-dom":     "facebook",
	"react-native":  "facebook",
	"vue":           "vuejs",
	"@vue/cli":      "vuejs",
	"angular":       "angular",
	"@angular/core": "angular",
	"express":       "expressjs",
	"next":          "vercel",
	"nuxt":          "nuxtlabs",
	"gatsby":        "gatsbyjs",
	"svelte":        "svelte",
	"ember":         "emberjs",
	"backbone":      "backbonejs",
	"jquery":        "jquery",
	"lodash":        "lodash",
	"axios":         "axios",
	"webpack":       "webpack",
	"vite":          "vitejs",
	"typescript":    "microsoft",
	"eslint":        "eslint",
	"prettier":      "prettier",
}

// DockerVendors maps official image names to their NVD vendor
var DockerVendors = map[string]string{
	"nginx":         "nginx",
	"apache":        "apache",
	"httpd":         "apache",
	"postgres":      "postgresql",
	"postgresql":    "postgresql",
	"mysql":         "mysql",
	"mariadb":       "mariadb",
	"redis":         "redis",
	"memcached":     "memcached",
	"mongodb":       "mongodb",
	"elasticsearch": "elastic",
	"node":          "nodejs",
	"python":        "python",
	"php":           "php",
	"ruby":          "ruby",
	"golang":        "golang",
	"openjdk":       "openjdk",
	"ubuntu":        "canonical",
	"debian":        "debian",
	"alpine":        "alpinelinux",
	"centos":        "centos",
	"fedora":        "fedoraproject",
}

// FromComposer builds an identifier from a composer package such as
// "symfony/console". A name without a slash is used as both vendor and product.
func FromComposer(pkg, version string) Identifier {
	vendor, product, found := strings.Cut(pkg, "/")
	if !found {
		product = pkg
	}
	return Build(vendor, product, version)
}

// FromNPM builds an identifier from an npm package. Scoped packages keep
// only the last path segment as product.
func FromNPM(pkg, version string) Identifier {
	vendor, ok := NPMVendors[pkg]
	if !ok {
		vendor = defaultNPMVendor
	}

	clean := strings.TrimLeft(pkg, "@")
	product := clean[strings.LastIndex(clean, "/")+1:]

	return Build(vendor, product, version)
}

// FromDocker builds an identifier from an image name and tag
func FromDocker(image, tag string) Identifier {
	vendor, ok := DockerVendors[image]
	if !ok {
		vendor = defaultDockerVendor
	}
	return Build(vendor, image, tag)
}

// ForSource dispatches to the builder of the given package ecosystem
func ForSource(source, name, version string) (Identifier, error) {
	switch source {
	case SourceComposer:
		return FromComposer(name, version), nil
	case SourceNPM:
		return FromNPM(name, version), nil
	case SourceDocker:
		return FromDocker(name, version), nil
	default:
		return Identifier{}, fmt.Errorf("no package identifier builder for source %q", source)
	}
}
