package triggers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello WORLD", "hello world"},
		{"strips punctuation", "well, that's... great!", "well that s great"},
		{"collapses whitespace", "  too   many\tspaces\n", "too many spaces"},
		{"drops obfuscation chars", "s*h*i*t happens", "shit happens"},
		{"drops underscores", "re_fund please", "refund please"},
		{"keeps digits", "call me at 5pm", "call me at 5pm"},
		{"unicode letters survive", "очень Дорого", "очень дорого"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"s*h*i*t",
		"  mixed   CASE with 123 ",
		"уже нормализовано",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}
