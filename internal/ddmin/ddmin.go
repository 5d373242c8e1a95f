// Package ddmin implements chunked delta-debugging reduction over an
// ordered sequence. It knows nothing about HTTP; callers supply a
// predicate that reports whether the remainder after removing a chunk
// still satisfies the property of interest.
package ddmin

import "math"

// NoLimit disables the test budget.
const NoLimit = math.MaxInt

// Predicate reports whether the property still holds for the remainder.
// Each invocation consumes one budget unit.
type Predicate[T any] func(remainder []T) bool

// Reduce returns a subsequence of items such that, subject to budget, no
// attempted single-chunk removal further succeeds, along with the number
// of predicate calls consumed. An empty input returns unchanged with zero
// tests; a non-positive budget returns the input unchanged, letting a
// caller disable reduction by exhausting budget upstream.
//
// Reduction proceeds in rounds over contiguous chunks of adaptive
// granularity n, starting at 2: the first chunk whose removal keeps the
// predicate true is committed and n decreases by one (floor 2); a full
// pass with no removal doubles n, stopping once n reaches the collection
// size. Budget exhaustion mid-round returns the current collection
// immediately, keeping partial progress.
func Reduce[T any](items []T, test Predicate[T], budget int) ([]T, int) {
	collection := make([]T, len(items))
	copy(collection, items)
	if len(collection) == 0 {
		return collection, 0
	}
	if budget <= 0 {
		return collection, 0
	}

	n := 2
	tests := 0
	for len(collection) >= 1 {
		chunkSize := (len(collection) + n - 1) / n
		removed := false
		for start := 0; start < len(collection); start += chunkSize {
			if tests >= budget {
				return collection, tests
			}
			end := start + chunkSize
			if end > len(collection) {
				end = len(collection)
			}
			remainder := make([]T, 0, len(collection)-(end-start))
			remainder = append(remainder, collection[:start]...)
			remainder = append(remainder, collection[end:]...)
			tests++
			if test(remainder) {
				collection = remainder
				if n--; n < 2 {
					n = 2
				}
				removed = true
				break
			}
		}
		if !removed {
			if n >= len(collection) {
				break
			}
			n *= 2
			if n > len(collection) {
				n = len(collection)
			}
		}
	}
	return collection, tests
}
