package db

import (
	"encoding/json"
	"time"
)

// 联系消息状态
const (
	ContactStatusNew      = "new"
	ContactStatusRead     = "read"
	ContactStatusReplied  = "replied"
	ContactStatusArchived = "archived"
)

// ContactMessage 保存访客通过联系表单提交的留言。
type ContactMessage struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IP        string    `json:"ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// ValidContactStatus 判断状态值是否合法。
func ValidContactStatus(status string) bool {
	switch status {
	case ContactStatusNew, ContactStatusRead, ContactStatusReplied, ContactStatusArchived:
		return true
	default:
		return false
	}
}

// UnmarshalJSON 兼容旧版留言文件中无时区的时间戳。
func (m *ContactMessage) UnmarshalJSON(data []byte) error {
	type plain ContactMessage
	var raw struct {
		plain
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := decodeTimestamp(raw.Timestamp, "")
	if err != nil {
		return err
	}

	*m = ContactMessage(raw.plain)
	m.Timestamp = ts
	if m.Status == "" {
		m.Status = ContactStatusNew
	}
	return nil
}
