package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntersection(t *testing.T) {
	a := From([]string{"a", "b", "b", "c"})
	b := From([]string{"c", "b", "d"})

	assert.ElementsMatch(t, []string{"b", "c"}, a.Intersection(b).Slice())
	assert.ElementsMatch(t, []string{"b", "c"}, b.Intersection(a).Slice())
	assert.Empty(t, a.Intersection(Set[string]{}))
}

func TestFromDeduplicates(t *testing.T) {
	s := From([]int{1, 1, 2})
	assert.Len(t, s, 2)
	assert.True(t, s.Contains(1))
	assert.False(t, s.Contains(3))
}
