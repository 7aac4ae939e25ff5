package scanning

import (
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// NewScanID derives a fixed-length identifier from the username and the
// submission instant. Two scans of the same username get distinct IDs as
// long as they start in different nanoseconds.
func NewScanID(username string, at time.Time) string {
	seed := username + "|" + at.Format(time.RFC3339Nano)
	return fmt.Sprintf("scan_%016x", xxh3.Hash([]byte(seed)))
}
