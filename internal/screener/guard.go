package screener

import "sync/atomic"

// Guard 保证同一时刻最多只有一个筛选会话在运行。
type Guard interface {
	TryAcquire() bool
	Release()
	Running() bool
}

// AtomicGuard 用 CAS 实现 Guard，零值可用。
type AtomicGuard struct {
	running atomic.Bool
}

func (g *AtomicGuard) TryAcquire() bool { return g.running.CompareAndSwap(false, true) }

func (g *AtomicGuard) Release() { g.running.Store(false) }

func (g *AtomicGuard) Running() bool { return g.running.Load() }
