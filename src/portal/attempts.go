package portal

import (
	"fmt"
	"time"

	"github.com/pythagoras-dev/pythagoras/src/cas"
	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

const attemptsNamespace = "attempts"

// Attempt is one entry in the append-only attempt log: when an execution was
// started and a snapshot of where.
type Attempt struct {
	Time  time.Time
	Node  string
	Pid   int
	Token string
}

// AttemptLog records execution attempts per signature key. It only feeds
// backoff and eligibility decisions; it is best-effort, not authoritative
// for correctness.
type AttemptLog struct {
	backend keyval.Backend
}

// NewAttemptLog ...
func NewAttemptLog(backend keyval.Backend) *AttemptLog {
	return &AttemptLog{
		backend: backend,
	}
}

func attemptPrefix(key string) string {
	return keyval.JoinKey(attemptsNamespace, key) + keyval.KeySeparator
}

func attemptKey(key string, seq int) string {
	return fmt.Sprintf("%s%09d", attemptPrefix(key), seq)
}

// Append adds an attempt entry for key. Two racing appenders may both
// observe the same sequence number; the loser simply claims the next slot.
func (l *AttemptLog) Append(key string, attempt Attempt) error {
	blob, err := cas.Marshal(attempt)
	if err != nil {
		return err
	}

	seq, err := l.Count(key)
	if err != nil {
		return err
	}

	for {
		written, err := l.backend.SetIfAbsent(attemptKey(key, seq), blob)
		if err != nil {
			return err
		}
		if written {
			return nil
		}
		seq++
	}
}

// Count returns the number of attempts recorded for key.
func (l *AttemptLog) Count(key string) (int, error) {
	keys, err := l.backend.Keys(attemptPrefix(key))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Last returns the most recent attempt for key and the backend write time of
// its record, which is what backoff computations are based on.
func (l *AttemptLog) Last(key string) (Attempt, time.Time, error) {
	count, err := l.Count(key)
	if err != nil {
		return Attempt{}, time.Time{}, err
	}
	if count == 0 {
		return Attempt{}, time.Time{}, cm.NewErr("AttemptLog", cm.NotFound, key)
	}

	k := attemptKey(key, count-1)

	blob, err := l.backend.Get(k)
	if err != nil {
		return Attempt{}, time.Time{}, err
	}

	var attempt Attempt
	if err := cas.Unmarshal(blob, &attempt); err != nil {
		return Attempt{}, time.Time{}, err
	}

	ts, err := l.backend.Timestamp(k)
	if err != nil {
		// fall back to the embedded time when the backend cannot answer
		ts = attempt.Time
		err = nil
	}

	return attempt, ts, nil
}
