package schema

import "strings"

type keyHint struct {
	// all substrings must occur in the lowercased key
	contains []string
	value    string
}

// hints are checked in order, the first match wins.
var hints = []keyHint{
	{[]string{"email"}, "jane.doe@example.com"},
	{[]string{"iban"}, "GB33BUKB20201555555555"},
	{[]string{"swift"}, "DEUTDEFF"},
	{[]string{"bic"}, "DEUTDEFF"},
	{[]string{"sortcode"}, "231470"},
	{[]string{"abartn"}, "021000021"},
	{[]string{"routing"}, "021000021"},
	{[]string{"account", "number"}, "1234567890"},
	{[]string{"account", "type"}, "CHECKING"},
	{[]string{"legaltype"}, "PRIVATE"},
	{[]string{"phone"}, "+12025550123"},
	{[]string{"date"}, "1990-01-31"},
	{[]string{"postcode"}, "10001"},
	{[]string{"zipcode"}, "10001"},
	{[]string{"country"}, "US"},
	{[]string{"state"}, "NY"},
	{[]string{"city"}, "New York"},
	{[]string{"address", "firstline"}, "123 Main Street"},
	{[]string{"name"}, "Jane Doe"},
}

// heuristic returns a plausible value for a field based on its key alone.
func heuristic(key string) (string, bool) {
	k := strings.ToLower(key)
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	for _, h := range hints {
		if containsAll(k, h.contains) {
			return h.value, true
		}
	}
	return "", false
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
