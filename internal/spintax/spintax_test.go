package spintax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEmpty(t *testing.T) {
	assert.Equal(t, "", Expand(""))
}

func TestExpandSingleOptionIsDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		assert.Equal(t, "Hello there", Expand("{Hello} there"))
	}
}

func TestExpandObservesAllOptions(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		seen[Expand("{a|b|c|d}")] = true
	}
	assert.Len(t, seen, 4)
	for _, o := range []string{"a", "b", "c", "d"} {
		assert.True(t, seen[o], "option %q never chosen", o)
	}
}

func TestExpandGroupsIndependently(t *testing.T) {
	out := Expand("{Hi|Hey}, {friend|buddy}! {See you|Bye}.")
	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, "}")
	assert.NotContains(t, out, "|")
}

func TestExpandLeavesMalformedGroups(t *testing.T) {
	assert.Equal(t, "price {a|b", Expand("price {a|b"))
	assert.Equal(t, "x } y", Expand("x } y"))
	assert.Equal(t, "empty {} stays", Expand("empty {} stays"))
}

func TestExpandKeepsEmptyOption(t *testing.T) {
	for i := 0; i < 100; i++ {
		out := Expand("a{|!}")
		assert.True(t, out == "a" || out == "a!", out)
	}
}

func TestExpandNoDelimitersRemain(t *testing.T) {
	inputs := []string{"plain", "{x|y}{z}", "start {one|two} mid {three} end", strings.Repeat("{p|q}", 20)}
	for _, in := range inputs {
		out := Expand(in)
		assert.NotContains(t, out, "{", in)
		assert.NotContains(t, out, "}", in)
	}
}
