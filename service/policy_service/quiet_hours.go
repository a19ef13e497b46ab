package policy_service

import (
	"fmt"
	"sync"
	"time"

	"helper-push-service/models"
)

const minutesPerDay = 24 * 60

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	locMu.RLock()
	loc, ok := locCache[name]
	locMu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locMu.Lock()
	locCache[name] = loc
	locMu.Unlock()
	return loc, nil
}

// ValidateQuietHours 校验免打扰配置
func ValidateQuietHours(qh *models.QuietHours) error {
	if qh.StartMinute < 0 || qh.StartMinute >= minutesPerDay || qh.EndMinute < 0 || qh.EndMinute >= minutesPerDay {
		return fmt.Errorf("quiet hours minutes must be within [0,%d)", minutesPerDay)
	}
	if _, err := loadLocation(qh.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", qh.Timezone, err)
	}
	return nil
}

// QuietHoursActive 判断 now 是否落在用户免打扰时段内
// 区间为 [Start, End)，Start > End 表示跨零点，Start == End 视为未设置
func QuietHoursActive(qh *models.QuietHours, now time.Time) bool {
	if qh == nil || !qh.Enabled || qh.StartMinute == qh.EndMinute {
		return false
	}
	loc, err := loadLocation(qh.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if qh.StartMinute < qh.EndMinute {
		return minute >= qh.StartMinute && minute < qh.EndMinute
	}
	return minute >= qh.StartMinute || minute < qh.EndMinute
}

// ParseClock 解析 "22:30" 形式的时间为当天分钟数
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
