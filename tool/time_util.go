package tool

import (
	"time"
)

func MakeTimestamp() int64 {
	return time.Now().UnixMilli()
}

func MakeDate(timestamp int64) string {
	timeFormat := "2006-01-02 15:04:05(UTC)"
	return time.UnixMilli(timestamp).UTC().Format(timeFormat)
}

// TimestampFresh 毫秒时间戳与 now 的偏差是否在 maxAge 以内（前后都算）
func TimestampFresh(timestamp int64, now time.Time, maxAge time.Duration) bool {
	diff := now.Sub(time.UnixMilli(timestamp))
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxAge
}
