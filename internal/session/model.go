package session

import "time"

// State 停车会话状态枚举（持久化为字符串）。
type State string

const (
	StateActive    State = "active"    // 车在场内，费用累计中
	StateInvoiced  State = "invoiced"  // 已出场并开出账单，待缴费确认
	StateConfirmed State = "confirmed" // 缴费已确认，历史记录（终态）
)

// ParkingSession 停车会话 GORM 模型：一次从入场到缴费确认的完整停车。
//
// OpenPlate 在 active/invoiced 期间等于 Plate，确认后清空；
// 它上面的唯一索引在数据库层保证“同一车牌至多一个在场会话”。
type ParkingSession struct {
	ID        string  `gorm:"primaryKey;size:36"`
	Plate     string  `gorm:"index;size:32;not null"`
	OpenPlate *string `gorm:"uniqueIndex;size:32"`
	State     State   `gorm:"type:varchar(16);index;not null"`

	// 计费信息。出场时一次性写入，两位小数
	EnterTime     time.Time  `gorm:"not null"`
	DepartureTime *time.Time
	DurationHours *float64
	AmountDue     *float64

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	ConfirmedAt *time.Time
}

// Open 会话是否仍占用车位（未走完缴费确认）。
func (s *ParkingSession) Open() bool {
	if s == nil {
		return false
	}
	return s.State == StateActive || s.State == StateInvoiced
}
