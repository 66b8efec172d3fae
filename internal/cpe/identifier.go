package cpe

import (
	"errors"
	"fmt"
	"strings"
)

// Any is the CPE 2.3 logical value ANY.
const Any = "*"

const (
	scheme      = "cpe"
	specVersion = "2.3"

	// cpe, 2.3 and the eleven attributes
	fieldCount = 13
)

// ErrMalformed is returned when a string is not a well-formed CPE 2.3 formatted string.
var ErrMalformed = errors.New("malformed cpe identifier")

// Part is the CPE part attribute
type Part string

// Known CPE parts
const (
	PartApplication     Part = "a"
	PartOperatingSystem Part = "o"
	PartHardware        Part = "h"
)

// Valid reports whether p is one of the known part values
func (p Part) Valid() bool {
	switch p {
	case PartApplication, PartOperatingSystem, PartHardware:
		return true
	}
	return false
}

// Identifier is a parsed CPE 2.3 formatted string. Values are never mutated
// after construction; use WithVersion to derive a copy.
type Identifier struct {
	Part      Part
	Vendor    string
	Product   string
	Version   string
	Update    string
	Edition   string
	Language  string
	SWEdition string
	TargetSW  string
	TargetHW  string
	Other     string
}

// Parse parses a CPE 2.3 formatted string such as
// cpe:2.3:a:nginx:nginx:1.25.3:*:*:*:*:*:*:*
func Parse(s string) (Identifier, error) {
	fields := splitFields(s)
	if len(fields) != fieldCount {
		return Identifier{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, fieldCount, len(fields))
	}

	if fields[0] != scheme || fields[1] != specVersion {
		return Identifier{}, fmt.Errorf("%w: unsupported prefix %s:%s", ErrMalformed, fields[0], fields[1])
	}

	part := Part(fields[2])
	if !part.Valid() {
		return Identifier{}, fmt.Errorf("%w: unknown part %q", ErrMalformed, fields[2])
	}

	return Identifier{
		Part:      part,
		Vendor:    fields[3],
		Product:   fields[4],
		Version:   fields[5],
		Update:    fields[6],
		Edition:   fields[7],
		Language:  fields[8],
		SWEdition: fields[9],
		TargetSW:  fields[10],
		TargetHW:  fields[11],
		Other:     fields[12],
	}, nil
}

// String returns the CPE 2.3 formatted string
func (id Identifier) String() string {
	return strings.Join([]string{
		scheme, specVersion, string(id.Part),
		id.Vendor, id.Product, id.Version,
		id.Update, id.Edition, id.Language,
		id.SWEdition, id.TargetSW, id.TargetHW,
		id.Other,
	}, ":")
}

// WithVersion returns a copy of id carrying the given version
func (id Identifier) WithVersion(version string) Identifier {
	id.Version = version
	return id
}

// splitFields splits on unescaped colons. A backslash escapes the next
// character and is kept in the resulting field.
func splitFields(s string) []string {
	fields := make([]string, 0, fieldCount)
	var current strings.Builder
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())

	return fields
}
