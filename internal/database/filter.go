package database

import (
	"fmt"
	"strings"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

// DefaultRankingLimit is the number of assets in the affected-asset ranking
const DefaultRankingLimit = 10

// advisorySortColumns maps sort fields to SQL expressions shared by both
// backends. Severity sorts by tier, not alphabetically.
var advisorySortColumns = map[string]string{
	types.SortPublished: "published_at",
	types.SortModified:  "modified_at",
	types.SortScore:     "cvss_score",
	types.SortSeverity: `CASE severity
		WHEN 'Critical' THEN 4 WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1
		ELSE NULL END`,
}

// NormalizeAdvisoryFilter applies defaults and paging bounds and validates
// the sort field and order
func NormalizeAdvisoryFilter(filter types.AdvisoryFilter, defaultSize, maxSize int) (types.AdvisoryFilter, error) {
	filter.Search = strings.TrimSpace(filter.Search)

	filter.SortBy = strings.ToLower(strings.TrimSpace(filter.SortBy))
	if filter.SortBy == "" {
		filter.SortBy = types.SortModified
	}
	if _, ok := advisorySortColumns[filter.SortBy]; !ok {
		return filter, fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, filter.SortBy)
	}

	filter.SortOrder = strings.ToLower(strings.TrimSpace(filter.SortOrder))
	if filter.SortOrder == "" {
		filter.SortOrder = types.SortDesc
	}
	if filter.SortOrder != types.SortAsc && filter.SortOrder != types.SortDesc {
		return filter, fmt.Errorf("%w: unknown sort order %q", ErrInvalidFilter, filter.SortOrder)
	}

	filter.Page, filter.PageSize = ClampPaging(filter.Page, filter.PageSize, defaultSize, maxSize)
	return filter, nil
}

// AdvisoryOrderBy builds the ORDER BY clause of a normalized filter. Rows
// without a value sort last in both directions.
func AdvisoryOrderBy(filter types.AdvisoryFilter) string {
	expr := advisorySortColumns[filter.SortBy]
	dir := "DESC"
	if filter.SortOrder == types.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY (%s) IS NULL, %s %s, external_id", expr, expr, dir)
}

// LikePattern turns a search term into a substring LIKE pattern using
// backslash as the escape character
func LikePattern(term string) string {
	if term == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
