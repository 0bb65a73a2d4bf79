package model

import (
	"PPChat/tools/errs"
)

// MessageStatus 消息状态：sent -> delivered -> seen，只能前进
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// Rank 非法状态返回 0
func (s MessageStatus) Rank() int { return statusRank[s] }

func (s MessageStatus) Valid() bool { return s.Rank() > 0 }

// Before 严格先于 o
func (s MessageStatus) Before(o MessageStatus) bool {
	return s.Valid() && o.Valid() && s.Rank() < o.Rank()
}

// StatusesBefore 返回严格先于 s 的全部状态
func (s MessageStatus) StatusesBefore() []MessageStatus {
	out := make([]MessageStatus, 0, 2)
	for _, st := range []MessageStatus{StatusSent, StatusDelivered, StatusSeen} {
		if st.Before(s) {
			out = append(out, st)
		}
	}
	return out
}

func ParseMessageStatus(s string) (MessageStatus, error) {
	st := MessageStatus(s)
	if !st.Valid() {
		return "", errs.ErrProtocol.WrapMsg("invalid message status", "status", s)
	}
	return st, nil
}
