package session

import (
	"testing"
	"time"
)

func TestElapsedHours(t *testing.T) {
	enter := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	if got := ElapsedHours(enter, enter.Add(90*time.Minute)); got != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", got)
	}
	// 整天数走 days*24
	if got := ElapsedHours(enter, enter.Add(26*time.Hour)); got != 26 {
		t.Fatalf("expected 26 hours, got %v", got)
	}
	// 秒以下零头被丢弃
	if got := ElapsedHours(enter, enter.Add(time.Hour+500*time.Millisecond)); got != 1 {
		t.Fatalf("expected 1 hour, got %v", got)
	}
	// 负区间按 0 处理
	if got := ElapsedHours(enter, enter.Add(-time.Hour)); got != 0 {
		t.Fatalf("expected 0 hours, got %v", got)
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(1.005); got != 1.0 && got != 1.01 {
		t.Fatalf("unexpected rounding: %v", got)
	}
	if got := Round2(9.8967); got != 9.9 {
		t.Fatalf("expected 9.9, got %v", got)
	}
	if got := Round2(1.5); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}

func TestBillableAmountTwoStageRounding(t *testing.T) {
	enter := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	// 标准场景：1.5 小时 * 30/时 = 45.00
	hours, amount := BillableAmount(enter, enter.Add(90*time.Minute), 30)
	if hours != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", hours)
	}
	if amount != 45.0 {
		t.Fatalf("expected 45.00, got %v", amount)
	}

	// 两段式舍入与一次性舍入不同：
	// 1200s -> 0.33333h，先舍入成 0.33，再乘 29.99 -> 9.8967 -> 9.9
	// 一次性舍入会得到 round2(0.33333*29.99) = 10.0
	hours, amount = BillableAmount(enter, enter.Add(1200*time.Second), 29.99)
	if hours != 0.33 {
		t.Fatalf("expected 0.33 hours, got %v", hours)
	}
	if amount != 9.9 {
		t.Fatalf("expected 9.9 (two-stage rounding), got %v", amount)
	}
}
