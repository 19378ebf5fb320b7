// retry.go
// Purpose: Retries journal writes that lose a race for the SQLite lock
// after busy_timeout has already run out.
package elevjournal

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// A journal write is a single small INSERT or UPDATE, so a few short
// retries are enough.
var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  20 * time.Millisecond,
	maxDelay:   250 * time.Millisecond,
}

// isTransient reports whether err is a lock conflict or a short read that
// may succeed if the write is tried again.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return transientCode(se.Code())
	}
	// Errors that were flattened to text on the way up.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// transientCode takes a primary or extended result code.
func transientCode(code int) bool {
	if code == sqlite3.SQLITE_IOERR_SHORT_READ {
		return true
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// retryOp runs fn until it succeeds, fails permanently, or has been retried
// maxRetries times. The last error is returned.
func retryOp(cfg retryConfig, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isTransient(err) || attempt == cfg.maxRetries {
			return err
		}
		time.Sleep(backoffDelay(cfg, attempt))
	}
}

// backoffDelay doubles from baseDelay up to maxDelay, plus up to one
// baseDelay of jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := min(cfg.baseDelay<<uint(attempt), cfg.maxDelay)
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
