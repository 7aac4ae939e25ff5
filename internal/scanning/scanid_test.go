package scanning_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bl4ck0w1/profilynx/internal/scanning"
)

func TestNewScanID(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC)

	id := scanning.NewScanID("alice", at)
	assert.True(t, strings.HasPrefix(id, "scan_"))
	assert.Len(t, id, len("scan_")+16)
	assert.Equal(t, id, scanning.NewScanID("alice", at), "same inputs must derive the same id")

	assert.NotEqual(t, id, scanning.NewScanID("bob", at))
	assert.NotEqual(t, id, scanning.NewScanID("alice", at.Add(time.Nanosecond)))

	for _, r := range id[len("scan_"):] {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}
