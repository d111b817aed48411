package waitercall

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callLimiter は席ごとの呼び出し頻度を制限する。
// 同じテーブルの連打でスタッフ通知が溢れるのを防ぐ。
type callLimiter struct {
	// mu は limiters マップへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// limiters は席IDごとのレートリミッター。
	limiters map[string]*rate.Limiter
	// interval はトークン補充の間隔。
	interval time.Duration
	// burst は連続で許可する呼び出し数。
	burst int
}

// newCallLimiter は新しいcallLimiterを生成する。
func newCallLimiter(interval time.Duration, burst int) *callLimiter {
	return &callLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

// Allow は席からの呼び出しを許可するかどうかを返す。
func (l *callLimiter) Allow(locationID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[locationID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.limiters[locationID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
