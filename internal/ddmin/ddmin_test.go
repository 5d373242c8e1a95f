package ddmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduceEmptyInput(t *testing.T) {
	got, tests := Reduce(nil, func([]int) bool { return true }, NoLimit)
	assert.Empty(t, got)
	assert.Zero(t, tests)
}

func TestReduceNonPositiveBudget(t *testing.T) {
	items := []int{1, 2, 3, 4}

	got, tests := Reduce(items, func([]int) bool { return true }, 0)
	assert.Equal(t, items, got)
	assert.Zero(t, tests)

	got, tests = Reduce(items, func([]int) bool { return true }, -5)
	assert.Equal(t, items, got)
	assert.Zero(t, tests)
}

func TestReduceAlwaysTrue(t *testing.T) {
	// Every removal is accepted, so the sequence reduces to nothing.
	for _, size := range []int{1, 2, 3, 5, 8, 16, 37} {
		items := make([]int, size)
		for i := range items {
			items[i] = i
		}
		got, tests := Reduce(items, func([]int) bool { return true }, NoLimit)
		assert.Empty(t, got, "size %d", size)
		// Every test succeeds immediately, so the call count stays linear.
		assert.LessOrEqual(t, tests, 2*size, "size %d", size)
	}
}

func TestReduceAlwaysFalse(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got, tests := Reduce(items, func([]int) bool { return false }, NoLimit)
	assert.Equal(t, items, got)
	// Exhausts granularities 2, 4, 8 over 8 elements: 2+4+8 probes.
	assert.Equal(t, 14, tests)
}

func TestReduceBudgetExhaustionKeepsPartialProgress(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	// Only element 8 is load-bearing.
	keep := func(remainder []int) bool {
		for _, v := range remainder {
			if v == 8 {
				return true
			}
		}
		return false
	}

	full, fullTests := Reduce(items, keep, NoLimit)
	assert.Equal(t, []int{8}, full)

	// A budget of one allows exactly the first probe: removing the first
	// half succeeds, and the rest of the search is cut off.
	got, tests := Reduce(items, keep, 1)
	assert.Equal(t, 1, tests)
	assert.Equal(t, []int{5, 6, 7, 8}, got)
	assert.Greater(t, fullTests, tests)
}

func TestReduceSingleNecessaryElement(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	got, _ := Reduce(items, func(remainder []string) bool {
		for _, v := range remainder {
			if v == "c" {
				return true
			}
		}
		return false
	}, NoLimit)
	assert.Equal(t, []string{"c"}, got)
}

func TestReduceIdempotent(t *testing.T) {
	items := []int{10, 20, 30}
	necessary := map[int]bool{10: true, 20: true, 30: true}
	all := func(remainder []int) bool {
		seen := make(map[int]bool, len(remainder))
		for _, v := range remainder {
			seen[v] = true
		}
		for v := range necessary {
			if !seen[v] {
				return false
			}
		}
		return true
	}

	got, _ := Reduce(items, all, NoLimit)
	assert.Equal(t, items, got, "already-minimal input performs no removals")

	again, _ := Reduce(got, all, NoLimit)
	assert.Equal(t, got, again)
}

func TestReducePairDependency(t *testing.T) {
	// Elements 2 and 5 are jointly required; everything else is noise.
	items := []int{1, 2, 3, 4, 5, 6}
	got, _ := Reduce(items, func(remainder []int) bool {
		has2, has5 := false, false
		for _, v := range remainder {
			has2 = has2 || v == 2
			has5 = has5 || v == 5
		}
		return has2 && has5
	}, NoLimit)
	assert.Equal(t, []int{2, 5}, got)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	items := []int{1, 2, 3, 4}
	orig := []int{1, 2, 3, 4}
	_, _ = Reduce(items, func(r []int) bool { return len(r) > 2 }, NoLimit)
	assert.Equal(t, orig, items)
}
