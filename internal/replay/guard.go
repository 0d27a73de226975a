package replay

import "errors"

var (
	ErrFuture = errors.New("payload timestamp is in the future")
	ErrStale  = errors.New("payload timestamp is outside the replay window")
)

// Guard bounds the age of a client-stamped payload. The window is inclusive:
// a payload exactly Window seconds old is still accepted.
//
// There is no used-payload set, so a captured ciphertext can be replayed
// until its window elapses.
type Guard struct {
	Window int64
}

func (g Guard) Validate(ts, now int64) error {
	age := now - ts
	if age < 0 {
		return ErrFuture
	}
	if age > g.Window {
		return ErrStale
	}
	return nil
}
