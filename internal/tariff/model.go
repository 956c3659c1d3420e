package tariff

import "time"

// 预置费率名称。STANDARD 是未注册车辆的兜底费率。
const (
	NameStandard   = "STANDARD"
	NameAuthorized = "AUTHORIZED"
)

const (
	StandardID   int64 = 1
	AuthorizedID int64 = 2
)

// Tariff 费率 GORM 模型：一个命名的小时费率。
// 费用上限不再塞在费率表里，见 PolicyLimit。
type Tariff struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:30;not null"`
	Rate      float64   `gorm:"not null;default:0"` // 货币/小时，非负
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// PolicyLimit 运营策略上限（单行）。
// MaxSessionCost 是单次停车的费用上限（绝对金额，不是费率），超限仅触发告警。
type PolicyLimit struct {
	ID             int64     `gorm:"primaryKey"`
	MaxSessionCost float64   `gorm:"not null;default:0"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
