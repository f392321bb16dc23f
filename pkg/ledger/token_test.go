package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQRCode(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	seen := make(map[string]struct{}, 100)

	for range 100 {
		code, err := newQRCode(now)
		require.NoError(t, err)
		assert.Regexp(t, `^QR-1700000000123-[0-9A-Z]{9}$`, code)

		seen[code] = struct{}{}
	}

	assert.Greater(t, len(seen), 95)
}
