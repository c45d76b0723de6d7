package firestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
)

func TestDecodeEntry(t *testing.T) {
	e, err := decodeEntry(entryDoc{
		ID:         "e1",
		Type:       "SMS",
		Amount:     -0.05,
		Date:       "2026-03-01T10:00:00Z",
		MessageSID: "SM1",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.EntrySMS, e.Type)
	assert.Equal(t, "-0.05", e.Amount.StringFixed(2))
	assert.Equal(t, 2026, e.Date.Year())
	assert.Equal(t, "SM1", e.MessageSID)
}

func TestDecodeEntry_CorruptDate(t *testing.T) {
	// GIVEN: A stored entry whose date is not RFC 3339
	// WHEN: It is decoded
	// THEN: An error names the entry and the bad value

	_, err := decodeEntry(entryDoc{ID: "e-bad", Type: "TOPUP", Amount: 1, Date: "yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "e-bad")
	assert.Contains(t, err.Error(), `"yesterday"`)
}
