// Package gravatar builds avatar URLs for user email addresses.
package gravatar

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// URL returns the Gravatar URL for the given email address, or an empty
// string when the email is empty. Unknown addresses fall back to an
// auto-generated identicon.
func URL(email string, size int) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(email))

	params := url.Values{}
	params.Set("d", "identicon")
	if size > 0 {
		params.Set("s", fmt.Sprintf("%d", size))
	}

	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?%s", hash, params.Encode())
}
