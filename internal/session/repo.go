package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, s *ParkingSession) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(s).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*ParkingSession, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var s ParkingSession
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenByPlate 查车牌当前的在场会话（active/invoiced），没有返回 nil。
func (r *Repo) FindOpenByPlate(ctx context.Context, plate string) (*ParkingSession, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var s ParkingSession
	err := db.Where("open_plate = ?", plate).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByState 按状态列出会话（巡检用）。
func (r *Repo) ListByState(ctx context.Context, state State) ([]ParkingSession, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var sessions []ParkingSession
	if err := db.Where("state = ?", state).Order("enter_time asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkInvoiced 带守卫地把 active 会话置为 invoiced 并写入账单字段。
// 返回是否真的更新了（0 行表示会话已被并发地开过账单或确认）。
func (r *Repo) MarkInvoiced(ctx context.Context, id string, departure time.Time, hours, amount float64) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&ParkingSession{}).
		Where("id = ? AND state = ?", id, StateActive).
		Updates(map[string]interface{}{
			"state":          StateInvoiced,
			"departure_time": departure,
			"duration_hours": hours,
			"amount_due":     amount,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkConfirmed 带守卫地把 invoiced 会话置为 confirmed，并清空 open_plate 占位。
func (r *Repo) MarkConfirmed(ctx context.Context, id string, now time.Time) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&ParkingSession{}).
		Where("id = ? AND state = ?", id, StateInvoiced).
		Updates(map[string]interface{}{
			"state":        StateConfirmed,
			"confirmed_at": now,
			"open_plate":   nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountPresentAt 统计时间点 t 在场的会话数（半开区间 [enter, departure)）。
// 这是按记录时间推断的“物理在场”，与车位计数的“预约占用”语义不同：
// 会话 invoiced 未确认时计数器仍占着车位，而这里因为 departure_time 已写入会排除它。
// 两者的分歧是刻意保留的，调用方自行取舍，不要在这里悄悄对齐。
func (r *Repo) CountPresentAt(ctx context.Context, t time.Time) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var count int64
	err := db.Model(&ParkingSession{}).
		Where("enter_time <= ? AND (departure_time IS NULL OR departure_time > ?)", t, t).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// isDuplicateKeyErr 识别唯一索引冲突（MySQL / SQLite 文案不同，gorm 不一定翻译）。
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
