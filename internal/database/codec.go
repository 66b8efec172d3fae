package database

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

// EncodeRanges serializes version ranges for a JSON column
func EncodeRanges(ranges map[string]types.VersionRange) (string, error) {
	if ranges == nil {
		return "{}", nil
	}

	data, err := json.Marshal(ranges)
	if err != nil {
		return "", fmt.Errorf("failed to marshal version ranges: %w", err)
	}
	return string(data), nil
}

// DecodeRanges parses a stored version range column. A corrupt value is
// logged and treated as "no ranges" so that it can never produce a match.
func DecodeRanges(externalID, raw string) map[string]types.VersionRange {
	if raw == "" {
		return nil
	}

	var ranges map[string]types.VersionRange
	if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
		log.Warn().
			Err(err).
			Str("external_id", externalID).
			Msg("ignoring undecodable version ranges")
		return nil
	}

	if len(ranges) == 0 {
		return nil
	}
	return ranges
}

// EncodeStrings serializes a string list for backends without array columns
func EncodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// DecodeStrings is the lenient counterpart of EncodeStrings
func DecodeStrings(externalID, raw string) []string {
	if raw == "" {
		return []string{}
	}

	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		log.Warn().
			Err(err).
			Str("external_id", externalID).
			Msg("ignoring undecodable identifier list")
		return []string{}
	}
	return values
}

// Paging limits applied when a filter leaves them unset
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ClampPage normalizes paging parameters of a match filter
func ClampPage(filter types.MatchFilter, defaultSize, maxSize int) types.MatchFilter {
	filter.Page, filter.PageSize = ClampPaging(filter.Page, filter.PageSize, defaultSize, maxSize)
	return filter
}

// ClampPaging returns a page number of at least 1 and a page size within
// (0, maxSize], defaulting to defaultSize
func ClampPaging(page, size, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

// PageOffset returns the row offset of a clamped page
func PageOffset(page, size int) int {
	return (page - 1) * size
}
