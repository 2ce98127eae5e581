// Package streak 根据打卡日期计算连续打卡天数。
//
// 状态只由“日期”驱动而不是时间戳：同一天多次打卡不累加，
// 间隔一天递增，间隔两天及以上重置为 1。日期统一按业务时区取日，
// 再以 UTC 零点保存，避免夏令时影响天数差。
package streak

import (
	"time"
)

// State 单个用户的连续打卡状态
type State struct {
	Current  int
	Longest  int
	LastDate *time.Time
}

// Day 把时间戳换算成业务时区下的日历日，返回该日的 UTC 零点
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween 两个 Day 之间相差的天数
func daysBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Advance 处理一次打卡，返回新状态以及状态是否发生变化
//
//   - 没有历史打卡：Current = 1
//   - 上次打卡是昨天：Current + 1
//   - 上次打卡是今天：不变
//   - 事件日期早于上次打卡（乱序补传）：不变
//   - 间隔两天及以上：Current = 1
//
// 每次变化后 Longest = max(Longest, Current)
func Advance(s State, at time.Time, loc *time.Location) (State, bool) {
	day := Day(at, loc)
	if s.Current < 0 {
		s.Current = 0
	}

	next := s
	if s.LastDate == nil {
		next.Current = 1
	} else {
		switch diff := daysBetween(*s.LastDate, day); {
		case diff <= 0:
			return s, false
		case diff == 1:
			next.Current = s.Current + 1
		default:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastDate = &day
	return next, true
}

// Effective 返回查询时刻仍然有效的连续天数
// 上次打卡早于昨天说明连续已经中断，读出 0；存储值在下一次打卡时才会被重置
func Effective(s State, now time.Time, loc *time.Location) int {
	if s.LastDate == nil || s.Current <= 0 {
		return 0
	}
	if daysBetween(*s.LastDate, Day(now, loc)) > 1 {
		return 0
	}
	return s.Current
}

// ReachedMilestone 判断本次递增是否正好达到 interval 的整数倍
func ReachedMilestone(prev, next State, interval int) bool {
	if interval <= 0 || next.Current == prev.Current {
		return false
	}
	return next.Current > 0 && next.Current%interval == 0
}
