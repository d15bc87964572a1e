// Package search holds the query-normalization rule behind the search
// cache key (cache.SearchKey): uppercase, trim, and collapse internal
// whitespace so "  vnm  " and "VNM" hit the same entry.
package search

import "strings"

// Normalize uppercases, trims, and collapses internal whitespace runs in
// a search query.
func Normalize(query string) string {
	fields := strings.Fields(strings.ToUpper(query))
	return strings.Join(fields, " ")
}
