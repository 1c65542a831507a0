package suggestions

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CooldownError is returned by Submit when the user submitted too recently.
// It matches ErrCooldown with errors.Is.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("submit cooldown, retry after %s", e.RetryAfter)
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// Seconds is RetryAfter rounded up to whole seconds.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// maxIdleLimiters is how many limiters are kept before refilled ones are pruned.
const maxIdleLimiters = 1024

// cooldowns allows each user one submission per interval.
type cooldowns struct {
	mu       sync.Mutex
	interval time.Duration
	users    map[string]*rate.Limiter
}

func newCooldowns(interval time.Duration) *cooldowns {
	return &cooldowns{interval: interval, users: make(map[string]*rate.Limiter)}
}

// take consumes userID's token at now. It returns how long to wait when none is left.
func (c *cooldowns) take(userID string, now time.Time) (time.Duration, bool) {
	if c.interval <= 0 {
		return 0, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.users[userID]
	if !ok {
		if len(c.users) >= maxIdleLimiters {
			c.prune(now)
		}
		l = rate.NewLimiter(rate.Every(c.interval), 1)
		c.users[userID] = l
	}
	r := l.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d, false
	}
	return 0, true
}

// refund gives back the token of a submission that did not go through.
// Limiters hold a single token, so a fresh one restores the state before take.
func (c *cooldowns) refund(userID string) {
	if c.interval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
}

func (c *cooldowns) prune(now time.Time) {
	for id, l := range c.users {
		if l.TokensAt(now) >= 1 {
			delete(c.users, id)
		}
	}
}
