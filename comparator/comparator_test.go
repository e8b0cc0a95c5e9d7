package comparator

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLexicographic(t *testing.T) {
	assert.True(t, Default.Compare([]byte("A"), []byte("B")) < 0)
	assert.Equal(t, 0, Default.Compare([]byte("A"), []byte("A")))
	assert.Equal(t, DefaultName, Default.Name())
}

func TestReverseComparator(t *testing.T) {
	rev := New("reverse", func(a, b []byte) int { return Default.Compare(b, a) })
	assert.True(t, rev.Compare([]byte("A"), []byte("B")) > 0)
	assert.Equal(t, "reverse", rev.Name())
}

// TestComparatorCapturedState mirrors the original's sentinel-state comparator test
// fixture (spec §9): a comparator closure that captures and mutates state
// across calls, grounding the "owned state, Send+Sync" requirement.
func TestComparatorCapturedState(t *testing.T) {
	var invocations int32
	counting := New("counting", func(a, b []byte) int {
		atomic.AddInt32(&invocations, 1)
		return Default.Compare(a, b)
	})

	counting.Compare([]byte("x"), []byte("y"))
	counting.Compare([]byte("y"), []byte("x"))

	assert.EqualValues(t, 2, atomic.LoadInt32(&invocations))
}
