// Package spintax expands {a|b|c} text variants.
package spintax

import (
	"math/rand/v2"
	"regexp"
	"strings"
)

// group matches one innermost brace group with at least one character inside.
var group = regexp.MustCompile(`\{([^{}]+)\}`)

// Expand replaces every {a|b|...} group with one option chosen uniformly at random.
// Groups are resolved independently on each call. Unbalanced braces are left untouched.
func Expand(text string) string {
	if text == "" {
		return ""
	}
	return group.ReplaceAllStringFunc(text, func(m string) string {
		options := strings.Split(m[1:len(m)-1], "|")
		return options[rand.IntN(len(options))]
	})
}
