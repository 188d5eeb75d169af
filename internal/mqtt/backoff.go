package mqtt

import "time"

// backoff produces reconnect delays that double up to a cap. Reset is
// called after a sustained connected period.
type backoff struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, current: min}
}

// Next returns the delay to wait before the next attempt and advances the
// sequence. The returned delay never exceeds the configured maximum.
func (b *backoff) Next() time.Duration {
	d := b.current

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	return d
}

func (b *backoff) Reset() {
	b.current = b.min
}
