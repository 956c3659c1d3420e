package session

import (
	"context"

	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
)

// Event 会话事件的通知载荷（入场/出账时推给通知方）。
type Event struct {
	Session    *ParkingSession
	TariffName string
	Rate       float64
	OwnerEmail string // 未注册车辆为空
}

// Notifier 通知协作方接口。投递本身（邮件/模板）由外部服务实现；
// 这里的调用是 fire-and-forget：通知失败不回滚任何会话状态。
type Notifier interface {
	SessionOpened(ctx context.Context, e Event) error
	SessionInvoiced(ctx context.Context, e Event) error
}

// LogNotifier 把通知事件落日志的默认实现（未接入真实通知服务时使用）。
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SessionOpened(ctx context.Context, e Event) error {
	if n == nil || n.log == nil || e.Session == nil {
		return nil
	}
	n.log.WithFields(map[string]interface{}{
		"session_id": e.Session.ID,
		"plate":      e.Session.Plate,
		"tariff":     e.TariffName,
		"rate":       e.Rate,
		"email":      e.OwnerEmail,
	}).Info("session opened")
	return nil
}

func (n *LogNotifier) SessionInvoiced(ctx context.Context, e Event) error {
	if n == nil || n.log == nil || e.Session == nil {
		return nil
	}
	fields := map[string]interface{}{
		"session_id": e.Session.ID,
		"plate":      e.Session.Plate,
		"tariff":     e.TariffName,
		"rate":       e.Rate,
		"email":      e.OwnerEmail,
	}
	if e.Session.DurationHours != nil {
		fields["duration_hours"] = *e.Session.DurationHours
	}
	if e.Session.AmountDue != nil {
		fields["amount_due"] = *e.Session.AmountDue
	}
	n.log.WithFields(fields).Info("session invoiced")
	return nil
}
