// Package capacity estimates how many bytes a value occupies in the
// persistence format and checks sizes against a capacity budget.
package capacity

import (
	"encoding/json"
	"math"
)

// EstimateSize returns the number of bytes v occupies once serialized to
// JSON. Strings are measured in UTF-8, so encoded images count at their
// encoded length. A value that cannot be serialized reports -1.
func EstimateSize(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return -1
	}
	return int64(len(data))
}

// Limit returns the usable portion of capacity once the headroom fraction is
// reserved. Limit(5 MiB, 0.10) leaves 4.5 MiB.
func Limit(capacity int64, headroom float64) int64 {
	return int64(math.Floor(float64(capacity) * (1 - headroom)))
}

// Fits reports whether size stays within capacity minus headroom.
func Fits(size, capacity int64, headroom float64) bool {
	return size >= 0 && size <= Limit(capacity, headroom)
}
