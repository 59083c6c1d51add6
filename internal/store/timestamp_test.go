package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMillisCodec(t *testing.T) {
	v, err := encodeMillis(ms(1_600_000_000_123))
	require.NoError(t, err)
	assert.Equal(t, int64(1_600_000_000_123), v)

	got, err := decodeMillis(v)
	require.NoError(t, err)
	assert.Equal(t, int64(1_600_000_000_123), got.UnixMilli())
	assert.Equal(t, time.UTC, got.Location())

	v, err = encodeMillis(time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestMillisCodec_Rejects(t *testing.T) {
	_, err := encodeMillis(time.Unix(0, 0).Add(-time.Millisecond))
	assert.ErrorIs(t, err, ErrTimestampOutOfRange)

	_, err = encodeMillis(time.Unix(math.MaxInt64/1000+1, 0))
	assert.ErrorIs(t, err, ErrTimestampOutOfRange)

	_, err = decodeMillis(-1)
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
	assert.True(t, IsIntegrityError(err))
}

func TestSecondsCodec(t *testing.T) {
	v, err := encodeSeconds(time.Unix(1_700_000_000, 999_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), v)

	got, err := decodeSeconds(v)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), got.Unix())
}

func TestSecondsCodec_Rejects(t *testing.T) {
	_, err := encodeSeconds(time.Unix(-1, 0))
	assert.ErrorIs(t, err, ErrTimestampOutOfRange)

	_, err = decodeSeconds(-1)
	assert.ErrorIs(t, err, ErrMalformedTimestamp)

	_, err = decodeSeconds(math.MaxInt64)
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
}

func TestIsIntegrityError(t *testing.T) {
	assert.False(t, IsIntegrityError(errors.New("disk I/O error")))
	assert.False(t, IsIntegrityError(ErrPoolTimeout))
}

func TestStoredInt(t *testing.T) {
	n, err := storedInt(int64(42), "ms")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	for _, v := range []any{"42", 42.0, []byte("42"), nil, 42} {
		_, err := storedInt(v, "ms")
		assert.ErrorIs(t, err, ErrMalformedTimestamp, "%T", v)
	}
}
