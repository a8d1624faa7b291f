package controller

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a user's bucket is kept after their last
// request. A bucket idle this long has refilled, so dropping it loses nothing.
const limiterIdleTTL = 10 * time.Minute

// UserRateLimiter throttles requests per authenticated user with a token
// bucket. It must run after RequireAuth.
type UserRateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per user, with bursts of up
// to perMinute. perMinute <= 0 disables limiting.
func NewUserRateLimiter(perMinute int) *UserRateLimiter {
	if perMinute <= 0 {
		return &UserRateLimiter{limit: rate.Inf}
	}
	return &UserRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idleTTL:  limiterIdleTTL,
		now:      time.Now,
		limiters: make(map[string]*userLimiter),
	}
}

func (l *UserRateLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.evictIdle(now)
		l.lastSweep = now
	}
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.lim.AllowN(now, 1)
}

// evictIdle must be called with mu held.
func (l *UserRateLimiter) evictIdle(now time.Time) {
	for id, ul := range l.limiters {
		if now.Sub(ul.lastSeen) >= l.idleTTL {
			delete(l.limiters, id)
		}
	}
}

func (l *UserRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware is a no-op on a nil limiter.
func (l *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.limit == rate.Inf {
			c.Next()
			return
		}
		if !l.allow(c.GetString(ContextUserID)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many questions, slow down"})
			return
		}
		c.Next()
	}
}
