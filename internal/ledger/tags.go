package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// TagDimensions is the number of accounting dimension slots on every entry.
const TagDimensions = 10

// TagNull is the filter sentinel meaning "this dimension must be empty".
const TagNull = "NULL_TAG"

// Tags holds the accounting dimension values of an entry or detail.
// The empty string means the dimension is not set.
type Tags [TagDimensions]string

// Get returns the value of the 1-based dimension, or "" when out of range.
func (t Tags) Get(dim int) string {
	if dim < 1 || dim > TagDimensions {
		return ""
	}
	return t[dim-1]
}

// Set assigns the value of the 1-based dimension.
func (t *Tags) Set(dim int, value string) {
	if dim < 1 || dim > TagDimensions {
		return
	}
	t[dim-1] = value
}

// IsZero reports whether no dimension is set.
func (t Tags) IsZero() bool {
	for _, v := range t {
		if v != "" {
			return false
		}
	}
	return true
}

// TagFilter selects details by exact dimension match. Keys are 1-based
// dimension indexes; the value TagNull requires the dimension to be empty.
type TagFilter map[int]string

// Matches reports whether the tags satisfy every filter condition.
func (f TagFilter) Matches(t Tags) bool {
	for dim, want := range f {
		got := t.Get(dim)
		if want == TagNull {
			if got != "" {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

// Key renders the filter as a canonical cache key fragment.
func (f TagFilter) Key() string {
	if len(f) == 0 {
		return "any"
	}
	dims := make([]int, 0, len(f))
	for dim := range f {
		dims = append(dims, dim)
	}
	sort.Ints(dims)
	parts := make([]string, 0, len(dims))
	for _, dim := range dims {
		parts = append(parts, fmt.Sprintf("d%d=%s", dim, f[dim]))
	}
	return strings.Join(parts, ";")
}
