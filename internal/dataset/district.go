package dataset

import "strings"

// FindDistrict returns the first district whose name contains q.
//
// Only the given slice is scanned. Sub-districts are never visited, so a
// search over the top-level index matches provinces only.
func FindDistrict(districts []District, q string) (District, bool) {
	for _, d := range districts {
		if strings.Contains(d.Name, q) {
			return d, true
		}
	}
	return District{}, false
}
