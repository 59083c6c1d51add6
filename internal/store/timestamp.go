package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/namehist/internal/history"
)

var (
	// ErrMalformedTimestamp marks a stored instant that cannot be a valid
	// time since the epoch.
	ErrMalformedTimestamp = errors.New("malformed stored timestamp")

	// ErrTimestampOutOfRange marks an instant that the storage encoding
	// cannot represent (before the epoch or past the integer range).
	ErrTimestampOutOfRange = errors.New("timestamp out of storable range")
)

// Seconds between year 1 and 1970; time.Unix overflows for larger inputs.
const unixToInternal int64 = 62135596800

var (
	epoch         = time.Unix(0, 0).UTC()
	maxMillisTime = time.UnixMilli(math.MaxInt64)
)

// IsIntegrityError reports whether err means persisted data is corrupt,
// as opposed to the database being unreachable.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrMalformedTimestamp)
}

func encodeMillis(t time.Time) (int64, error) {
	if t.Before(epoch) || t.After(maxMillisTime) {
		return 0, fmt.Errorf("%w: %s", ErrTimestampOutOfRange, t.Format(time.RFC3339Nano))
	}
	return t.UnixMilli(), nil
}

// storedInt returns the integer held by a timestamp cell. Timestamp columns
// have INTEGER affinity, so any other storage class (TEXT, REAL, BLOB, NULL)
// is corrupt data.
func storedInt(v any, unit string) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %T %v %s", ErrMalformedTimestamp, v, v, unit)
	}
	return n, nil
}

func decodeMillis(v int64) (time.Time, error) {
	if v < 0 {
		return time.Time{}, fmt.Errorf("%w: %d ms", ErrMalformedTimestamp, v)
	}
	return time.UnixMilli(v).UTC(), nil
}

func encodeSeconds(t time.Time) (int64, error) {
	if t.Before(epoch) {
		return 0, fmt.Errorf("%w: %s", ErrTimestampOutOfRange, t.Format(time.RFC3339Nano))
	}
	u := t.Unix()
	if u < 0 || u > math.MaxInt64-unixToInternal {
		return 0, fmt.Errorf("%w: %s", ErrTimestampOutOfRange, t.Format(time.RFC3339Nano))
	}
	return u, nil
}

func decodeSeconds(v int64) (time.Time, error) {
	if v < 0 || v > math.MaxInt64-unixToInternal {
		return time.Time{}, fmt.Errorf("%w: %d s", ErrMalformedTimestamp, v)
	}
	return time.Unix(v, 0).UTC(), nil
}

// storageErr wraps err as a storage failure unless it already is one.
func storageErr(message string, err error) error {
	var he *history.Error
	if errors.As(err, &he) {
		return err
	}
	return history.NewStorage(message, err)
}
