package clock

import (
	"sync"
	"time"
)

// Clock 时间来源，投票的开启/关闭状态都由它判定
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System 返回墙上时钟
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Fake 可手动推进的时钟，用于测试
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake 创建从start开始的假时钟
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 向前推进d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set 直接设置当前时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
