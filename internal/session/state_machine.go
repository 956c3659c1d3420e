package session

import (
	"fmt"
	"time"
)

// AllowTransition 定义会话状态机的允许流转关系。
// confirmed 是终态：同一车牌再次入场开的是新会话。
var AllowTransition = map[State][]State{
	StateActive:    {StateInvoiced},
	StateInvoiced:  {StateConfirmed},
	StateConfirmed: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对会话应用状态变更，并维护关键字段。
// 仅在 CanTransition 返回 true 时生效。
func ApplyTransition(s *ParkingSession, to State, now time.Time) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	from := s.State
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid session state transition: %s -> %s", from, to)
	}

	s.State = to

	switch to {
	case StateInvoiced:
		if s.DepartureTime == nil {
			t := now
			s.DepartureTime = &t
		}
	case StateConfirmed:
		if s.ConfirmedAt == nil {
			t := now
			s.ConfirmedAt = &t
		}
		// 确认后不再占用车位，释放唯一索引占位
		s.OpenPlate = nil
	}
	return nil
}
