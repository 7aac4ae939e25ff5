package scanning

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

const maxUsernameLength = 64

// NormalizeUsername trims and NFKC-normalizes a raw username so visually
// identical inputs map to the same scan. Rejects empty input, control
// characters, embedded whitespace, and anything past maxUsernameLength.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", fmt.Errorf("%w: empty username", models.ErrInvalidInput)
	}

	username = norm.NFKC.String(username)
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("%w: username longer than %d bytes", models.ErrInvalidInput, maxUsernameLength)
	}

	for _, r := range username {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: username contains control characters", models.ErrInvalidInput)
		}
		if unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: username contains whitespace", models.ErrInvalidInput)
		}
	}
	return username, nil
}
