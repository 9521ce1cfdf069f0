// Package scheduler 驱动周期任务：z-score 提醒巡检与定时重新筛选。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"pairlab/internal/logger"
)

var log = logger.Component("scheduler")

// Task 在每个周期被同步调用；耗时超过周期时下一轮顺延。
type Task func(ctx context.Context)

// Scheduler 按固定间隔执行任务。Align=true 时对齐到 UTC 的整周期边界（再加 Offset），
// 例如 1d 周期在每天 00:00 UTC 之后 Offset 执行，适合日线收盘后的重新筛选。
type Scheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool

	nowFn func() time.Time
}

func New(name string, interval time.Duration) *Scheduler {
	return &Scheduler{Name: name, Interval: interval, nowFn: time.Now}
}

// Run 阻塞直到 ctx 结束，返回 ctx.Err()。
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("scheduler %s: task is nil", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler %s: invalid interval=%s", s.Name, s.Interval)
	}
	if s.Offset < 0 {
		log.Warnf("%s: negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	log.Infof("%s: started interval=%s offset=%s align=%v run_immediately=%v",
		s.Name, s.Interval, s.Offset, s.Align, s.RunImmediately)

	if s.RunImmediately {
		task(ctx)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wakeAt, wait := s.next(s.nowFn())
		log.Debugf("%s: 下一次执行=%s (in %s)", s.Name, wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Infof("%s: ctx done, exit", s.Name)
			return ctx.Err()
		case <-timer.C:
		}
		task(ctx)
	}
}

func (s *Scheduler) next(now time.Time) (wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	if !s.Align {
		return now.Add(s.Interval), s.Interval
	}
	wakeAt = now.Truncate(s.Interval).Add(s.Offset)
	if !wakeAt.After(now) {
		wakeAt = wakeAt.Add(s.Interval)
	}
	return wakeAt, wakeAt.Sub(now)
}
