package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrCapacityExceeded 场内已满，没有可用车位。
var ErrCapacityExceeded = errors.New("parking capacity exceeded")

// ParkingCounter 车位占用计数（单行）。
// reserved 统计的是 active/invoiced 会话数：车位从入场一直占到缴费确认，而不是到车辆离场。
type ParkingCounter struct {
	ID            int64     `gorm:"primaryKey"`
	TotalCapacity int       `gorm:"not null"`
	Reserved      int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

const counterID = 1

// SlotPool 车位许可池。
// 只暴露 TryReserve / Release，调用方拿不到裸的读改写路径。
type SlotPool struct {
	db *gorm.DB
}

func NewSlotPool(db *gorm.DB) *SlotPool {
	return &SlotPool{db: db}
}

// EnsureCounter 初始化/校准计数行：首次创建，之后只同步容量配置。
func (p *SlotPool) EnsureCounter(ctx context.Context, totalCapacity int) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("pool db is nil")
	}
	if totalCapacity <= 0 {
		return fmt.Errorf("total capacity must be positive")
	}
	db := p.db.WithContext(ctx)

	var c ParkingCounter
	err := db.Where("id = ?", counterID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&ParkingCounter{ID: counterID, TotalCapacity: totalCapacity}).Error
	}
	if err != nil {
		return err
	}
	if c.TotalCapacity != totalCapacity {
		return db.Model(&ParkingCounter{}).
			Where("id = ?", counterID).
			Update("total_capacity", totalCapacity).Error
	}
	return nil
}

// TryReserve 尝试占一个车位。
// 检查与自增是同一条带守卫的 UPDATE，数据库层面保证原子性：
// 并发抢最后一个车位时只会有一个调用方成功，不会超卖。
func (p *SlotPool) TryReserve(ctx context.Context, tx *gorm.DB) (bool, error) {
	db := p.pick(ctx, tx)
	if db == nil {
		return false, fmt.Errorf("pool db is nil")
	}
	res := db.Model(&ParkingCounter{}).
		Where("id = ? AND reserved < total_capacity", counterID).
		UpdateColumn("reserved", gorm.Expr("reserved + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release 释放一个车位，下限为 0。
func (p *SlotPool) Release(ctx context.Context, tx *gorm.DB) error {
	db := p.pick(ctx, tx)
	if db == nil {
		return fmt.Errorf("pool db is nil")
	}
	return db.Model(&ParkingCounter{}).
		Where("id = ? AND reserved > 0", counterID).
		UpdateColumn("reserved", gorm.Expr("reserved - 1")).Error
}

// Snapshot 读取当前计数（监控/测试用，不参与业务判断）。
func (p *SlotPool) Snapshot(ctx context.Context) (*ParkingCounter, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("pool db is nil")
	}
	var c ParkingCounter
	if err := p.db.WithContext(ctx).Where("id = ?", counterID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// pick 业务传了事务就在事务里执行，否则用自己的连接。
func (p *SlotPool) pick(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.WithContext(ctx)
}
