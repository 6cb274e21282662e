package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTable(t *testing.T) {
	table := newHandleTable("inv_test")
	released := map[HandleID]bool{}

	timer, err := table.add(handleTimer, func() { released[1] = true })
	require.NoError(t, err)
	body, err := table.add(handleBody, func() { released[2] = true })
	require.NoError(t, err)
	assert.NotEqual(t, timer, body)
	assert.Equal(t, 2, table.live())

	_, ok := table.take(timer, handleBody)
	assert.False(t, ok, "kind must match")

	h, ok := table.take(timer, handleTimer)
	require.True(t, ok)
	assert.Equal(t, handleTimer, h.kind)

	_, ok = table.take(timer, handleTimer)
	assert.False(t, ok, "handles are single use")

	table.revokeAll()
	assert.Equal(t, map[HandleID]bool{2: true}, released)
	assert.Equal(t, 0, table.live())
	assert.Equal(t, HandleStats{Created: 2, Consumed: 1, Revoked: 1}, table.snapshot())

	_, err = table.add(handleTimer, nil)
	assert.ErrorIs(t, err, ErrHandleRevoked)
	_, ok = table.take(body, handleBody)
	assert.False(t, ok)

	table.revokeAll()
	assert.Equal(t, HandleStats{Created: 2, Consumed: 1, Revoked: 1}, table.snapshot())
}

func TestHandleKindString(t *testing.T) {
	assert.Equal(t, "timer", handleTimer.String())
	assert.Equal(t, "body", handleBody.String())
	assert.Equal(t, "unknown", handleKind(0).String())
}
