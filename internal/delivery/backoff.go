package delivery

import (
	"math/rand"
	"time"
)

// backoffFor returns the delay before retry number attempt (1-based count of
// attempts already made). The curve is exponential from the base, capped,
// with ±50% jitter so a burst of same-issue failures does not come due as a
// thundering herd.
func (p Policy) backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	capped := p.BackoffCap
	if capped <= 0 {
		capped = time.Minute
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= capped {
			d = capped
			break
		}
	}
	if d > capped {
		d = capped
	}
	// jitter in [0.5d, 1.5d), with the cap as a hard ceiling
	j := d/2 + time.Duration(rand.Int63n(int64(d)))
	if j > capped {
		j = capped
	}
	return j
}
