package campaign

import (
	"errors"
	"regexp"
	"strings"

	"wablast/internal/spintax"
)

var errInvalidNumber = errors.New("invalid phone number")

// Addresser turns raw contact numbers into channel addresses.
type Addresser struct {
	CountryCode string // prepended to bare 10-digit numbers
	Server      string // address suffix, e.g. s.whatsapp.net
}

// Address strips every non-digit, prefixes the country code when the result is
// a bare 10-digit number, then appends the server suffix. It also returns the
// cleaned digits.
func (a Addresser) Address(raw string) (addr, digits string, err error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits = b.String()
	if digits == "" {
		return "", "", errInvalidNumber
	}
	if len(digits) == 10 && a.CountryCode != "" && !strings.HasPrefix(digits, a.CountryCode) {
		digits = a.CountryCode + digits
	}
	return digits + "@" + a.Server, digits, nil
}

const namePlaceholder = "{name}"

// nameMark stands in for the placeholder while spintax is expanded so that
// {name} is never read as a one-option group.
const nameMark = "\x00name\x00"

var blankName = regexp.MustCompile(` ?` + regexp.QuoteMeta(nameMark) + `,?`)

// personalize expands spintax and fills the name placeholder. With a blank
// name the placeholder is dropped together with a leading space and a trailing comma.
func personalize(message, name string) string {
	text := spintax.Expand(strings.ReplaceAll(message, namePlaceholder, nameMark))
	name = strings.TrimSpace(name)
	if name == "" {
		return strings.TrimSpace(blankName.ReplaceAllString(text, ""))
	}
	return strings.ReplaceAll(text, nameMark, name)
}
