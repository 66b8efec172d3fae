package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// AssetSource records how an asset entered the inventory
type AssetSource string

// Asset sources
const (
	SourceManual   AssetSource = "manual"
	SourceComposer AssetSource = "composer"
	SourceNPM      AssetSource = "npm"
	SourceDocker   AssetSource = "docker"
)

// Valid reports whether s is a known asset source
func (s AssetSource) Valid() bool {
	switch s {
	case SourceManual, SourceComposer, SourceNPM, SourceDocker:
		return true
	}
	return false
}

// Asset represents one piece of inventory software
type Asset struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Vendor    string      `json:"vendor" db:"vendor"`
	Product   string      `json:"product" db:"product"`
	Version   string      `json:"version" db:"version"`
	CPE       string      `json:"cpe" db:"cpe"`
	Source    AssetSource `json:"source" db:"source"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Severity tiers as published by NVD
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// Advisory sources
const (
	AdvisorySourceNVD = "nvd"
	AdvisorySourceJVN = "jvn"
)

// VersionRange is the affected-version interval declared for one product key.
// A nil bound is absent; a present bound that cannot be parsed never matches.
type VersionRange struct {
	StartIncluding *string `json:"versionStartIncluding,omitempty"`
	StartExcluding *string `json:"versionStartExcluding,omitempty"`
	EndIncluding   *string `json:"versionEndIncluding,omitempty"`
	EndExcluding   *string `json:"versionEndExcluding,omitempty"`
}

// ErrNullVersionRange is returned when a range entry is JSON null. Only an
// explicit empty object declares an unbounded range.
var ErrNullVersionRange = errors.New("version range entry must be an object, not null")

// UnmarshalJSON rejects null entries
func (r *VersionRange) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrNullVersionRange
	}

	type plain VersionRange
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = VersionRange(p)
	return nil
}

// Empty reports whether no bound is set
func (r VersionRange) Empty() bool {
	return r.StartIncluding == nil && r.StartExcluding == nil &&
		r.EndIncluding == nil && r.EndExcluding == nil
}

// Advisory represents one externally sourced vulnerability record
type Advisory struct {
	ExternalID    string                  `json:"external_id" db:"external_id"`
	Title         string                  `json:"title" db:"title"`
	Description   string                  `json:"description" db:"description"`
	CVSSScore     *float64                `json:"cvss_score,omitempty" db:"cvss_score"`
	Severity      string                  `json:"severity,omitempty" db:"severity"`
	Source        string                  `json:"source,omitempty" db:"source"`
	PublishedAt   *time.Time              `json:"published_at,omitempty" db:"published_at"`
	ModifiedAt    *time.Time              `json:"modified_at,omitempty" db:"modified_at"`
	CPEs          []string                `json:"cpes" db:"cpes"`
	VersionRanges map[string]VersionRange `json:"version_ranges,omitempty" db:"version_ranges"`
	CreatedAt     time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at" db:"updated_at"`
}

// MatchKind identifies which matching tier produced a match
type MatchKind string

// Match kinds in priority order. MatchNone means no tier matched.
const (
	MatchNone         MatchKind = ""
	MatchExact        MatchKind = "exact_match"
	MatchVersionRange MatchKind = "version_range"
	MatchWildcard     MatchKind = "wildcard_match"
)

// Match links one asset to one advisory
type Match struct {
	ID         string    `json:"id" db:"id"`
	AssetID    string    `json:"asset_id" db:"asset_id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Kind       MatchKind `json:"match_kind" db:"kind"`
	MatchedAt  time.Time `json:"matched_at" db:"matched_at"`
}

// RunStats summarizes one correlation run
type RunStats struct {
	ID                  string    `json:"id,omitempty"`
	TotalAssets         int       `json:"total_assets"`
	TotalAdvisories     int       `json:"total_advisories"`
	TotalMatches        int       `json:"total_matches"`
	ExactMatches        int       `json:"exact_matches"`
	VersionRangeMatches int       `json:"version_range_matches"`
	WildcardMatches     int       `json:"wildcard_matches"`
	SkippedPairs        int       `json:"skipped_pairs"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	DurationMs          int64     `json:"duration_ms"`
}

// Count adds one match of the given kind
func (s *RunStats) Count(kind MatchKind) {
	switch kind {
	case MatchExact:
		s.ExactMatches++
	case MatchVersionRange:
		s.VersionRangeMatches++
	case MatchWildcard:
		s.WildcardMatches++
	default:
		return
	}
	s.TotalMatches++
}

// IngestResult summarizes an advisory ingestion batch
type IngestResult struct {
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// MatchFilter selects and pages match listings
type MatchFilter struct {
	Severity string
	Source   AssetSource
	Page     int
	PageSize int
}

// Offset returns the row offset of the requested page
func (f MatchFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// AssetFilter selects and pages asset listings
type AssetFilter struct {
	Source   AssetSource
	Page     int
	PageSize int
}

// AssetPage is one page of assets, newest first
type AssetPage struct {
	Items    []Asset `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Advisory sort fields
const (
	SortPublished = "published_date"
	SortModified  = "modified_date"
	SortSeverity  = "severity"
	SortScore     = "cvss_score"
)

// Sort orders
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// AdvisoryFilter searches, sorts and pages advisory listings. Search is a
// case-insensitive substring of the external id or the title.
type AdvisoryFilter struct {
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// AdvisoryPage is one page of advisories
type AdvisoryPage struct {
	Items    []Advisory `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// AssetRank is one row of the most affected assets
type AssetRank struct {
	AssetID            string `json:"asset_id"`
	AssetName          string `json:"asset_name"`
	VulnerabilityCount int    `json:"vulnerability_count"`
	CriticalCount      int    `json:"critical_count"`
	HighCount          int    `json:"high_count"`
}

// SeverityCounts counts advisories per severity tier
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add counts n advisories of the given tier; unknown tiers are ignored
func (c *SeverityCounts) Add(severity string, n int) {
	switch severity {
	case SeverityCritical:
		c.Critical += n
	case SeverityHigh:
		c.High += n
	case SeverityMedium:
		c.Medium += n
	case SeverityLow:
		c.Low += n
	}
}

// MatchDetail is a match joined with its asset and advisory
type MatchDetail struct {
	Match
	AssetName     string      `json:"asset_name"`
	AssetVendor   string      `json:"asset_vendor"`
	AssetProduct  string      `json:"asset_product"`
	AssetVersion  string      `json:"asset_version"`
	AssetSource   AssetSource `json:"asset_source"`
	AdvisoryTitle string      `json:"advisory_title"`
	Severity      string      `json:"severity,omitempty"`
	CVSSScore     *float64    `json:"cvss_score,omitempty"`
}

// MatchPage is one page of match details
type MatchPage struct {
	Items    []MatchDetail `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// AssetVulnerability is one advisory affecting a given asset
type AssetVulnerability struct {
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Severity    string     `json:"severity,omitempty"`
	CVSSScore   *float64   `json:"cvss_score,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Kind        MatchKind  `json:"match_kind"`
	MatchedAt   time.Time  `json:"matched_at"`
}

// DashboardStats aggregates the current correlation state
type DashboardStats struct {
	TotalAssets     int            `json:"total_assets"`
	TotalAdvisories int            `json:"total_advisories"`
	AffectedAssets  int            `json:"affected_assets"`
	TotalMatches    int            `json:"total_matches"`
	BySeverity      map[string]int `json:"by_severity"` // matches per advisory severity
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
}

// HealthStatus represents system health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents a health check result
type CheckResult struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}
