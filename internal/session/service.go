package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/capacity"
	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotParked 车牌没有在场会话，无法出场。
	ErrNotParked = errors.New("vehicle is not parked")
	// ErrSessionNotFound 会话不存在。
	ErrSessionNotFound = errors.New("parking session not found")
	// ErrNotInvoiced 会话还没出账，不能确认缴费。
	ErrNotInvoiced = errors.New("parking session not invoiced")
	// ErrInvalidTimestamp 查询时间格式不合法。
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrVehicleBanned 车辆被封禁，闸机拒绝放行。
	ErrVehicleBanned = errors.New("vehicle is banned")

	// errDuplicateOpen 同车牌并发入场撞了 open_plate 唯一索引（内部哨兵）。
	errDuplicateOpen = errors.New("duplicate open session")
)

// TimeLayout 点位查询的时间文本格式。
const TimeLayout = "2006.01.02 15:04"

// Service 封装停车会话领域的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	pool     *capacity.SlotPool
	vehicles *vehicle.Repo
	notifier Notifier
	loc      *time.Location
	log      logger.Logger
}

func NewService(db *gorm.DB, pool *capacity.SlotPool, vehicles *vehicle.Repo, notifier Notifier, loc *time.Location, log logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		db:       db,
		repo:     NewRepo(db),
		pool:     pool,
		vehicles: vehicles,
		notifier: notifier,
		loc:      loc,
		log:      log,
	}
}

// CheckInResult 入场结果。AlreadyParked 表示该车牌已有在场会话（冲突，不是错误）。
type CheckInResult struct {
	Session       *ParkingSession
	AlreadyParked bool
	TariffName    string
	Rate          float64
}

// Invoice 出场账单。AlreadyInvoiced 表示会话此前已出账，本次原样返回、不重新计费。
type Invoice struct {
	Session         *ParkingSession
	AlreadyInvoiced bool
	TariffName      string
	Rate            float64
}

// CheckIn 车辆入场：
// - 首次过闸的车牌自动落库；封禁车辆直接拒绝
// - 已有在场会话 -> 返回该会话（AlreadyParked），不报错
// - 车位已满 -> capacity.ErrCapacityExceeded，不落任何会话
// - 占位 + 建会话在同一事务里：回滚时车位许可一并退还
func (s *Service) CheckIn(ctx context.Context, plate string) (*CheckInResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	plate = vehicle.NormalizePlate(plate)
	if plate == "" {
		return nil, fmt.Errorf("plate is empty")
	}

	v, err := s.vehicles.EnsureVehicle(ctx, plate)
	if err != nil {
		return nil, err
	}
	if v.Banned {
		return nil, ErrVehicleBanned
	}

	bc, err := s.vehicles.ResolveBillingContext(ctx, plate)
	if err != nil {
		return nil, err
	}

	var out CheckInResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)

		open, err := repo.FindOpenByPlate(ctx, plate)
		if err != nil {
			return err
		}
		if open != nil {
			out = CheckInResult{Session: open, AlreadyParked: true, TariffName: bc.TariffName, Rate: bc.Rate}
			return nil
		}

		ok, err := s.pool.TryReserve(ctx, tx)
		if err != nil {
			return err
		}
		if !ok {
			return capacity.ErrCapacityExceeded
		}

		openPlate := plate
		sess := &ParkingSession{
			ID:        uuid.NewString(),
			Plate:     plate,
			OpenPlate: &openPlate,
			State:     StateActive,
			EnterTime: time.Now().In(s.loc),
		}
		if err := repo.Create(ctx, sess); err != nil {
			if isDuplicateKeyErr(err) {
				return errDuplicateOpen
			}
			return err
		}
		out = CheckInResult{Session: sess, TariffName: bc.TariffName, Rate: bc.Rate}
		return nil
	})
	if errors.Is(err, errDuplicateOpen) {
		// 同车牌并发入场：事务已回滚（占位随之退还），回查赢家的会话按冲突返回
		open, ferr := s.repo.FindOpenByPlate(ctx, plate)
		if ferr != nil {
			return nil, ferr
		}
		if open == nil {
			return nil, fmt.Errorf("open session vanished for plate %s", plate)
		}
		return &CheckInResult{Session: open, AlreadyParked: true, TariffName: bc.TariffName, Rate: bc.Rate}, nil
	}
	if err != nil {
		return nil, err
	}

	if !out.AlreadyParked {
		s.fireNotify(func(n Notifier, nctx context.Context) error {
			return n.SessionOpened(nctx, Event{Session: out.Session, TariffName: bc.TariffName, Rate: bc.Rate, OwnerEmail: bc.OwnerEmail})
		})
	}
	return &out, nil
}

// CheckOut 车辆出场并开账单：
// - 没有在场会话 -> ErrNotParked
// - 已出账的会话原样返回，不用新的“现在”重算账单
// - 时长与金额按两段式舍入各自保留两位小数
func (s *Service) CheckOut(ctx context.Context, plate string) (*Invoice, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	plate = vehicle.NormalizePlate(plate)
	if plate == "" {
		return nil, fmt.Errorf("plate is empty")
	}

	bc, err := s.vehicles.ResolveBillingContext(ctx, plate)
	if err != nil {
		return nil, err
	}

	var out Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)

		open, err := repo.FindOpenByPlate(ctx, plate)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNotParked
		}
		if open.State == StateInvoiced {
			out = Invoice{Session: open, AlreadyInvoiced: true, TariffName: bc.TariffName, Rate: bc.Rate}
			return nil
		}

		departure := time.Now().In(s.loc)
		hours, amount := BillableAmount(open.EnterTime, departure, bc.Rate)

		updated, err := repo.MarkInvoiced(ctx, open.ID, departure, hours, amount)
		if err != nil {
			return err
		}
		if !updated {
			// 并发出场：对方已出账，按已出账路径返回
			cur, err := repo.GetByID(ctx, open.ID)
			if err != nil {
				return err
			}
			out = Invoice{Session: cur, AlreadyInvoiced: true, TariffName: bc.TariffName, Rate: bc.Rate}
			return nil
		}

		open.State = StateInvoiced
		open.DepartureTime = &departure
		open.DurationHours = &hours
		open.AmountDue = &amount
		out = Invoice{Session: open, TariffName: bc.TariffName, Rate: bc.Rate}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.AlreadyInvoiced {
		s.fireNotify(func(n Notifier, nctx context.Context) error {
			return n.SessionInvoiced(nctx, Event{Session: out.Session, TariffName: bc.TariffName, Rate: bc.Rate, OwnerEmail: bc.OwnerEmail})
		})
	}
	return &out, nil
}

// ConfirmPayment 确认缴费：invoiced -> confirmed，并在同一事务里释放车位。
// - 会话不存在 -> ErrSessionNotFound
// - 还没出账 -> ErrNotInvoiced
// - 已确认的会话原样返回（不会二次释放车位）
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string) (*ParkingSession, error) {
	return s.confirm(ctx, sessionID)
}

// ConfirmPaymentUnregistered 散客（未注册车辆）在缴费机上的确认。
// 状态流转与 ConfirmPayment 完全一致，只是不解析车主计费上下文。
func (s *Service) ConfirmPaymentUnregistered(ctx context.Context, sessionID string) (*ParkingSession, error) {
	return s.confirm(ctx, sessionID)
}

func (s *Service) confirm(ctx context.Context, sessionID string) (*ParkingSession, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is empty")
	}

	var out *ParkingSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)

		sess, err := repo.GetByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		switch sess.State {
		case StateConfirmed:
			out = sess
			return nil
		case StateActive:
			return ErrNotInvoiced
		}

		now := time.Now().In(s.loc)
		updated, err := repo.MarkConfirmed(ctx, sess.ID, now)
		if err != nil {
			return err
		}
		if !updated {
			// 并发确认：对方已经走完，读回终态即可，车位只释放一次
			cur, err := repo.GetByID(ctx, sess.ID)
			if err != nil {
				return err
			}
			out = cur
			return nil
		}

		if err := s.pool.Release(ctx, tx); err != nil {
			return err
		}

		if err := ApplyTransition(sess, StateConfirmed, now); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetOpenSession 查车牌当前在场会话，没有返回 nil。
func (s *Service) GetOpenSession(ctx context.Context, plate string) (*ParkingSession, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.FindOpenByPlate(ctx, vehicle.NormalizePlate(plate))
}

// OccupiedAt 点位占用查询：统计给定时刻物理在场的会话数。
// 入参格式固定为 "YYYY.MM.DD HH:MM"，按场地时区解析；
// 结果与车位计数器的“预约占用”可能不一致（invoiced 未确认的会话只算在后者里）。
func (s *Service) OccupiedAt(ctx context.Context, timestampText string) (int64, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("service not initialized")
	}
	t, err := time.ParseInLocation(TimeLayout, timestampText, s.loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestampText)
	}
	return s.repo.CountPresentAt(ctx, t)
}

// fireNotify 异步触发通知：不阻塞调用方事务，失败只记日志。
func (s *Service) fireNotify(fn func(n Notifier, ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	n := s.notifier
	log := s.log
	go func() {
		defer func() {
			if r := recover(); r != nil && log != nil {
				log.Errorf("panic in notifier: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(n, ctx); err != nil && log != nil {
			log.Warnf("notify failed: %v", err)
		}
	}()
}
