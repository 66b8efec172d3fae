package cpe

import "strings"

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// NormalizeName lowercases a vendor or product name and replaces spaces and
// path separators with underscores.
func NormalizeName(name string) string {
	return nameReplacer.Replace(strings.ToLower(name))
}

// NormalizeVersion strips constraint operators (^, ~, >=, <=, <, >) and any
// build or distribution suffix starting at the first '-' or '_'.
//
//	"^5.4"          -> "5.4"
//	">=^1.0.0"      -> "1.0.0"
//	"1.25.3-alpine" -> "1.25.3"
func NormalizeVersion(raw string) string {
	v := strings.TrimLeft(raw, "^~>=<")
	if i := strings.IndexAny(v, "-_"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Build returns an application identifier for a vendor/product/version triple.
// All three values are normalized and the trailing attributes are ANY.
func Build(vendor, product, version string) Identifier {
	return Identifier{
		Part:      PartApplication,
		Vendor:    NormalizeName(vendor),
		Product:   NormalizeName(product),
		Version:   NormalizeVersion(version),
		Update:    Any,
		Edition:   Any,
		Language:  Any,
		SWEdition: Any,
		TargetSW:  Any,
		TargetHW:  Any,
		Other:     Any,
	}
}
