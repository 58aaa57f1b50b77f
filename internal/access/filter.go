// Package access filters stores, buffers the qualifying ones and joins
// buffer counts and demographic fractions onto regions.
package access

import (
	"strings"

	"github.com/sells-group/accessmap/internal/model"
)

// Rule decides which stores count toward access.
type Rule struct {
	// Keywords are matched as case-sensitive substrings of the store name.
	Keywords   []string
	OpenStatus string
}

// Qualifies reports whether the store name contains any keyword and the
// status equals the open sentinel.
func (r Rule) Qualifies(s model.Store) bool {
	if s.Status != r.OpenStatus {
		return false
	}
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(s.Name, kw) {
			return true
		}
	}
	return false
}

// Filter sets Qualifies on every store and returns how many qualified.
func Filter(stores []model.Store, rule Rule) int {
	var n int
	for i := range stores {
		stores[i].Qualifies = rule.Qualifies(stores[i])
		if stores[i].Qualifies {
			n++
		}
	}
	return n
}
