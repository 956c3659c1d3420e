package vehicle

import (
	"strings"
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 车牌是唯一且不可变的业务身份；车辆在闸机第一次出现时落库，本服务不删除。
type Vehicle struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Plate     string    `gorm:"uniqueIndex;size:32;not null"` // 规范化后的车牌（大写）
	Banned    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Account 是外部身份服务的账号表（只读映射）。
// 本服务只用它解析车主与费率，任何账号变更都走外部管理端。
type Account struct {
	ID       int64   `gorm:"primaryKey"`
	Email    string  `gorm:"size:100"`
	Plate    *string `gorm:"column:license_plate;uniqueIndex;size:32"` // 一个账号至多绑定一个车牌
	TariffID *int64  `gorm:"column:tariff_id"`
	Banned   bool    `gorm:"not null;default:false"`
}

func (Account) TableName() string {
	return "accounts"
}

// NormalizePlate 车牌规范化：去空白、统一大写。
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}
