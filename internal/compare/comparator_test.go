package compare

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/pkg/har"
)

func snapshot(status int, body string) *har.ResponseSnapshot {
	return &har.ResponseSnapshot{
		Status:  &status,
		Body:    &body,
		Elapsed: 10 * time.Millisecond,
	}
}

func failedSnapshot(msg string) *har.ResponseSnapshot {
	return &har.ResponseSnapshot{Error: msg}
}

func TestEquivalentUnhealthySnapshots(t *testing.T) {
	c, err := New(config.Compare{StatusCode: true})
	require.NoError(t, err)

	ok := snapshot(200, "body")
	bad := failedSnapshot("connection refused")

	assert.False(t, c.Equivalent(bad, ok))
	assert.False(t, c.Equivalent(ok, bad))
	assert.False(t, c.Equivalent(bad, bad))
}

func TestEquivalentReflexive(t *testing.T) {
	s := snapshot(200, `{"status":"ok"}`)

	withSignals, err := New(config.Compare{
		StatusCode:      true,
		LengthCheck:     true,
		LengthTolerance: 0.1,
		NeedAll:         []string{"ok"},
	})
	require.NoError(t, err)
	assert.True(t, withSignals.Equivalent(s, s))

	// Zero signals enabled: any healthy candidate is accepted.
	vacuous, err := New(config.Compare{})
	require.NoError(t, err)
	assert.True(t, vacuous.Equivalent(s, snapshot(500, "totally different")))
	assert.False(t, vacuous.Equivalent(s, failedSnapshot("timeout")))
}

func TestStatusSignal(t *testing.T) {
	c, err := New(config.Compare{StatusCode: true})
	require.NoError(t, err)

	assert.True(t, c.Equivalent(snapshot(200, "a"), snapshot(200, "b")))
	assert.False(t, c.Equivalent(snapshot(200, "a"), snapshot(404, "a")))
}

func TestLengthToleranceBoundary(t *testing.T) {
	c, err := New(config.Compare{LengthCheck: true, LengthTolerance: 0.1})
	require.NoError(t, err)

	base := snapshot(200, strings.Repeat("x", 100))
	assert.True(t, c.Equivalent(base, snapshot(200, strings.Repeat("y", 110))), "delta 0.10 passes")
	assert.False(t, c.Equivalent(base, snapshot(200, strings.Repeat("y", 111))), "delta 0.11 fails")
	assert.True(t, c.Equivalent(base, snapshot(200, strings.Repeat("y", 90))))
}

func TestLengthEmptyBaseline(t *testing.T) {
	c, err := New(config.Compare{LengthCheck: true, LengthTolerance: 0.5})
	require.NoError(t, err)

	assert.True(t, c.Equivalent(snapshot(200, ""), snapshot(200, "")))
	assert.False(t, c.Equivalent(snapshot(200, ""), snapshot(200, "x")))
}

func TestNeedAllAndNeedAny(t *testing.T) {
	all, err := New(config.Compare{NeedAll: []string{"alpha", "beta"}})
	require.NoError(t, err)
	assert.True(t, all.Equivalent(snapshot(200, "x"), snapshot(200, "alpha beta gamma")))
	assert.False(t, all.Equivalent(snapshot(200, "x"), snapshot(200, "alpha gamma")))
	assert.False(t, all.Equivalent(snapshot(200, "x"), &har.ResponseSnapshot{Status: intp(200)}), "absent body fails")

	anyOf, err := New(config.Compare{NeedAny: []string{"alpha", "beta"}})
	require.NoError(t, err)
	assert.True(t, anyOf.Equivalent(snapshot(200, "x"), snapshot(200, "only beta")))
	assert.False(t, anyOf.Equivalent(snapshot(200, "x"), snapshot(200, "gamma")))
}

func TestRegexSignal(t *testing.T) {
	c, err := New(config.Compare{Regex: []string{`"id":\s*\d+`, `^ok`}})
	require.NoError(t, err)

	assert.True(t, c.Equivalent(snapshot(200, "x"), snapshot(200, "ok\n{\"id\": 42}")))
	assert.False(t, c.Equivalent(snapshot(200, "x"), snapshot(200, "{\"id\": 42}")))

	_, err = New(config.Compare{Regex: []string{"("}})
	assert.Error(t, err)
}

func TestJQSignal(t *testing.T) {
	c, err := New(config.Compare{NeedJQ: []string{`.status == "ok"`, `.items | length > 0`}})
	require.NoError(t, err)

	assert.True(t, c.Equivalent(snapshot(200, "x"), snapshot(200, `{"status":"ok","items":[1]}`)))
	assert.False(t, c.Equivalent(snapshot(200, "x"), snapshot(200, `{"status":"ok","items":[]}`)))
	assert.False(t, c.Equivalent(snapshot(200, "x"), snapshot(200, `not json`)), "undecodable body fails")

	_, err = New(config.Compare{NeedJQ: []string{".foo |"}})
	assert.Error(t, err)
}

func TestLogicCombination(t *testing.T) {
	// Status differs but the substring holds: AND rejects, OR accepts.
	base := snapshot(200, "hello ok")
	cand := snapshot(500, "still ok")

	and, err := New(config.Compare{StatusCode: true, NeedAll: []string{"ok"}, Logic: "AND"})
	require.NoError(t, err)
	assert.False(t, and.Equivalent(base, cand))

	or, err := New(config.Compare{StatusCode: true, NeedAll: []string{"ok"}, Logic: "OR"})
	require.NoError(t, err)
	assert.True(t, or.Equivalent(base, cand))

	// Logic defaults to AND when unset.
	def, err := New(config.Compare{StatusCode: true, NeedAll: []string{"ok"}})
	require.NoError(t, err)
	assert.False(t, def.Equivalent(base, cand))
}

func intp(v int) *int { return &v }
