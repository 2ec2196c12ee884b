package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	assert.True(t, changed)
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		assert.Contains(t, out, marker)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	out, changed := RedactPII("Call Mom")
	assert.False(t, changed)
	assert.Equal(t, "Call Mom", out)
}

func TestRedactPIICardBeforePhone(t *testing.T) {
	out, _ := RedactPII("card 4111 1111 1111 1111")
	assert.Equal(t, "card [REDACTED_CARD]", out)
}
