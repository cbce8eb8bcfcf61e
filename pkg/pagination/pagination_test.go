package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	at time.Time
	id uuid.UUID
}

func rowKey(r row) (time.Time, uuid.UUID) { return r.at, r.id }

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestTrimReturnsCursorOnlyWhenMoreRowsExist(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []row{
		{base.Add(3 * time.Minute), uuid.New()},
		{base.Add(2 * time.Minute), uuid.New()},
		{base.Add(time.Minute), uuid.New()},
	}

	page, next := Trim(rows, 2, rowKey)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1].id, next.ID)
	assert.True(t, rows[1].at.Equal(next.CreatedAt))

	page, next = Trim(rows[:2], 2, rowKey)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600)), ID: uuid.New()}

	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, raw := range []string{"%%%", "bm90IGpzb24", EncodeCursor(Cursor{})} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}
