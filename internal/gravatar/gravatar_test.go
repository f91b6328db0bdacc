package gravatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	t.Run("empty email", func(t *testing.T) {
		assert.Empty(t, URL("", 64))
		assert.Empty(t, URL("   ", 64))
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		assert.Equal(t, URL("user@example.com", 64), URL("  User@Example.COM  ", 64))
	})

	t.Run("includes size and default image", func(t *testing.T) {
		u := URL("user@example.com", 80)
		assert.Contains(t, u, "https://www.gravatar.com/avatar/")
		assert.Contains(t, u, "s=80")
		assert.Contains(t, u, "d=identicon")
	})

	t.Run("omits size when zero", func(t *testing.T) {
		assert.NotContains(t, URL("user@example.com", 0), "s=")
	})
}
