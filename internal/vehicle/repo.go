package vehicle

import (
	"context"
	"errors"
	"fmt"

	"github.com/SmartParkGate/SmartParkGate/internal/tariff"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db      *gorm.DB
	tariffs *tariff.Repo
}

func NewRepo(db *gorm.DB, tariffs *tariff.Repo) *Repo {
	return &Repo{db: db, tariffs: tariffs}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// FindByPlate 按规范化车牌查车辆，不存在返回 nil。
func (r *Repo) FindByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("plate = ?", NormalizePlate(plate)).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// EnsureVehicle 按车牌取车辆，不存在则创建（首次过闸落库）。
func (r *Repo) EnsureVehicle(ctx context.Context, plate string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	plate = NormalizePlate(plate)
	if plate == "" {
		return nil, fmt.Errorf("plate is empty")
	}

	v := Vehicle{ID: uuid.NewString(), Plate: plate}
	// 并发下两个请求同时首次见到同一车牌：靠 plate 唯一索引兜底，冲突后回查
	if err := db.Where("plate = ?", plate).FirstOrCreate(&v).Error; err != nil {
		var existing Vehicle
		if err2 := db.Where("plate = ?", plate).First(&existing).Error; err2 == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &v, nil
}

// SetBanned 更新车辆封禁状态（管理端操作）。
func (r *Repo) SetBanned(ctx context.Context, plate string, banned bool) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Vehicle{}).Where("plate = ?", NormalizePlate(plate)).Update("banned", banned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindAccountByPlate 查车牌绑定的账号（外部身份服务的表，只读），没有返回 nil。
func (r *Repo) FindAccountByPlate(ctx context.Context, plate string) (*Account, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var a Account
	if err := db.Where("license_plate = ?", NormalizePlate(plate)).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// BillingContext 一次停车的计费上下文。
// 注册/未注册车辆的分支只在这里出现一次，入场、出场、通知、巡检统一消费它。
type BillingContext struct {
	Plate      string
	Registered bool
	TariffName string
	Rate       float64 // 货币/小时
	OwnerEmail string  // 未注册车辆为空
}

// ResolveBillingContext 解析车牌的计费上下文：
// - 有绑定账号且账号配了费率 -> 账号费率
// - 其余情况 -> STANDARD 兜底费率
func (r *Repo) ResolveBillingContext(ctx context.Context, plate string) (*BillingContext, error) {
	if r == nil || r.tariffs == nil {
		return nil, fmt.Errorf("repo not initialized")
	}
	plate = NormalizePlate(plate)

	acct, err := r.FindAccountByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}

	var tariffID *int64
	if acct != nil {
		tariffID = acct.TariffID
	}
	t, err := r.tariffs.ResolveRate(ctx, tariffID)
	if err != nil {
		return nil, err
	}

	bc := &BillingContext{
		Plate:      plate,
		TariffName: t.Name,
		Rate:       t.Rate,
	}
	if acct != nil {
		bc.Registered = true
		bc.OwnerEmail = acct.Email
	}
	return bc, nil
}
