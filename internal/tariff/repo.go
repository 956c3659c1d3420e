package tariff

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotSeeded 费率表/策略上限还没有初始化。
// 属于部署配置问题：服务启动时就应该发现并拒绝对外服务，而不是在请求里反复报错。
var ErrNotSeeded = errors.New("tariff catalog not seeded")

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

// GetByID 按 ID 查费率。
func (r *Repo) GetByID(ctx context.Context, id int64) (*Tariff, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t Tariff
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotSeeded
		}
		return nil, err
	}
	return &t, nil
}

// GetByName 按名称查费率。
func (r *Repo) GetByName(ctx context.Context, name string) (*Tariff, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t Tariff
	if err := db.Where("name = ?", name).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotSeeded
		}
		return nil, err
	}
	return &t, nil
}

// ResolveRate 为一个可能为空的 tariff_id 解析费率：
// - tariffID 非空且存在 -> 该费率
// - 否则 -> STANDARD 兜底费率
func (r *Repo) ResolveRate(ctx context.Context, tariffID *int64) (*Tariff, error) {
	if tariffID != nil {
		t, err := r.GetByID(ctx, *tariffID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNotSeeded) {
			return nil, err
		}
		// 账号挂了一个不存在的 tariff_id，按未配置处理，走兜底费率
	}
	return r.GetByName(ctx, NameStandard)
}

// Ceiling 返回单次停车费用上限（绝对金额）。
func (r *Repo) Ceiling(ctx context.Context) (float64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var p PolicyLimit
	if err := db.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotSeeded
		}
		return 0, err
	}
	return p.MaxSessionCost, nil
}

// SeedInput 初始化费率表的入参。
type SeedInput struct {
	StandardRate   float64
	AuthorizedRate float64
	MaxSessionCost float64
}

// EnsureSeeded 幂等初始化费率表与策略上限。
// 已存在的行不会被覆盖（运营侧可能手工调过价）。
func (r *Repo) EnsureSeeded(ctx context.Context, in SeedInput) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if in.StandardRate < 0 || in.AuthorizedRate < 0 || in.MaxSessionCost < 0 {
		return fmt.Errorf("seed rates must be non-negative")
	}

	rows := []Tariff{
		{ID: StandardID, Name: NameStandard, Rate: in.StandardRate},
		{ID: AuthorizedID, Name: NameAuthorized, Rate: in.AuthorizedRate},
	}
	for i := range rows {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows[i]).Error; err != nil {
			return fmt.Errorf("failed to seed tariff %s: %w", rows[i].Name, err)
		}
	}

	limit := PolicyLimit{ID: 1, MaxSessionCost: in.MaxSessionCost}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&limit).Error; err != nil {
		return fmt.Errorf("failed to seed policy limit: %w", err)
	}
	return nil
}
