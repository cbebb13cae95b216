// Package ids allocates the opaque 128-bit hex identifiers used for
// submissions and jobs.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a 32-character lowercase hex string with no separators,
// drawing its entropy from uuid.New() rather than reimplementing random
// id generation on top of crypto/rand directly.
func New() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
