package sweep

import (
	"context"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
	"github.com/SmartParkGate/SmartParkGate/internal/session"
	"github.com/SmartParkGate/SmartParkGate/internal/tariff"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
	"gorm.io/gorm"
)

// Sweeper 费用超限巡检：周期扫描在场（active）会话，
// 对注册车主按当前时刻推算累计费用，超过策略上限时发观测告警。
// 只读不改：既不终止会话也不代为确认，处置归运营侧。
type Sweeper struct {
	sessions *session.Repo
	vehicles *vehicle.Repo
	tariffs  *tariff.Repo
	interval time.Duration
	loc      *time.Location
	log      logger.Logger
}

func New(db *gorm.DB, vehicles *vehicle.Repo, tariffs *tariff.Repo, interval time.Duration, loc *time.Location, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Sweeper{
		sessions: session.NewRepo(db),
		vehicles: vehicles,
		tariffs:  tariffs,
		interval: interval,
		loc:      loc,
		log:      log,
	}
}

// Run 启动巡检循环，ctx 取消后停止接收新一轮扫描（在途的一轮会跑完）。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.log != nil {
		s.log.Infof("overage sweep started, interval=%s", s.interval)
	}

	for {
		select {
		case <-ctx.Done():
			if s.log != nil {
				s.log.Info("overage sweep stopped")
			}
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce 扫描一轮。单个会话失败只记日志，不中断整轮。
func (s *Sweeper) sweepOnce(ctx context.Context) {
	ceiling, err := s.tariffs.Ceiling(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("sweep: failed to load cost ceiling: %v", err)
		}
		return
	}

	active, err := s.sessions.ListByState(ctx, session.StateActive)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("sweep: failed to list active sessions: %v", err)
		}
		return
	}

	now := time.Now().In(s.loc)
	flagged := 0
	for i := range active {
		sess := &active[i]

		bc, err := s.vehicles.ResolveBillingContext(ctx, sess.Plate)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("sweep: resolve billing context plate=%s: %v", sess.Plate, err)
			}
			continue
		}
		if !bc.Registered {
			continue
		}

		// 只是只读投影，不落库
		_, cost := session.BillableAmount(sess.EnterTime, now, bc.Rate)
		if cost <= ceiling {
			continue
		}

		flagged++
		if s.log != nil {
			s.log.WithFields(map[string]interface{}{
				"session_id":   sess.ID,
				"plate":        sess.Plate,
				"owner_email":  bc.OwnerEmail,
				"tariff":       bc.TariffName,
				"running_cost": cost,
				"ceiling":      ceiling,
				"enter_time":   sess.EnterTime,
			}).Warn("parking cost ceiling exceeded")
		}
	}

	if s.log != nil {
		s.log.Debugf("sweep cycle done: active=%d flagged=%d", len(active), flagged)
	}
}
