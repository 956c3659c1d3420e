package session

import (
	"math"
	"time"
)

// ElapsedHours 计算两个时间点之间的小时数：整天数*24 + 秒数/3600。
// 秒以下的零头被丢弃，负区间按 0 处理。
func ElapsedHours(enter, departure time.Time) float64 {
	d := departure.Sub(enter)
	if d <= 0 {
		return 0
	}
	days := int64(d / (24 * time.Hour))
	secs := int64((d % (24 * time.Hour)) / time.Second)
	return float64(days)*24 + float64(secs)/3600
}

// Round2 四舍五入到两位小数。
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// BillableAmount 按“先舍入时长、再舍入金额”的两段式舍入计费。
// 两段各自舍入，和一次性舍入的结果不完全一致，账单兼容性依赖这一点，不要合并。
func BillableAmount(enter, departure time.Time, rate float64) (hours, amount float64) {
	hours = Round2(ElapsedHours(enter, departure))
	amount = Round2(hours * rate)
	return hours, amount
}
