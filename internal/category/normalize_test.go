package category_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-engine/internal/category"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain lowercase", in: "support", want: "support"},
		{name: "uppercase", in: "SUPPORT", want: "support"},
		{name: "mixed case with spaces", in: "  Support   Tickets ", want: "support tickets"},
		{name: "pictograph prefix", in: "🎫 Support", want: "support"},
		{name: "bullet separator", in: "• Billing", want: "billing"},
		{name: "keycap digits", in: "1️⃣ reports", want: "1 reports"},
		{name: "currency symbol", in: "$ payments", want: "payments"},
		{name: "empty", in: "", want: ""},
		{name: "only glyphs", in: "✨🎫", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, category.Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"🎫 Support Tickets", "• BILLING •", "Replaces", "1️⃣ help desk"}
	for _, in := range inputs {
		once := category.Normalize(in)
		assert.Equal(t, once, category.Normalize(once), "normalizing %q twice must be stable", in)
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"support", "tickets"}, category.Words("support tickets"))
	assert.Equal(t, []string{"reports"}, category.Words("1 reports"), "short tokens are dropped")
	assert.Empty(t, category.Words("a an it"))
}
