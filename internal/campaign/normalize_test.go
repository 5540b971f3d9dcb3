package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	a := Addresser{CountryCode: "91", Server: "s.whatsapp.net"}
	cases := []struct {
		raw, addr, digits string
	}{
		{"(555) 123-4567", "915551234567@s.whatsapp.net", "915551234567"},
		{"+91 98765 43210", "919876543210@s.whatsapp.net", "919876543210"},
		{"9112345678", "9112345678@s.whatsapp.net", "9112345678"},
		{"1 415 555 0100", "14155550100@s.whatsapp.net", "14155550100"},
	}
	for _, tc := range cases {
		addr, digits, err := a.Address(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.addr, addr)
		assert.Equal(t, tc.digits, digits)
	}

	_, _, err := a.Address("n/a")
	assert.ErrorIs(t, err, errInvalidNumber)
}

func TestPersonalize(t *testing.T) {
	assert.Equal(t, "Hi Ann, welcome", personalize("Hi {name}, welcome", "Ann"))
	assert.Equal(t, "Hi welcome", personalize("Hi {name}, welcome", ""))
	assert.Equal(t, "hello", personalize("{name}, hello", "  "))
	assert.Equal(t, "Hey Bob", personalize("{Hey|Hey} {name}", "Bob"))
	assert.Equal(t, "Hi {a|b}", personalize("Hi {name}", "{a|b}"))
	assert.Equal(t, "", personalize("", "Ann"))
}

func TestTypingDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, typingDelay("0123456789", 0, time.Second))
	assert.Equal(t, 500*time.Millisecond, typingDelay("hi", 500*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, typingDelay(string(make([]byte, 100)), 0, time.Second))
}

func TestBetween(t *testing.T) {
	assert.Equal(t, time.Second, between(time.Second, time.Second))
	assert.Equal(t, time.Second, between(time.Second, 0))
	for i := 0; i < 100; i++ {
		d := between(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
}
