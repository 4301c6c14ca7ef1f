package models

import "time"

// Session is the persisted form of an authenticated device session. The session id is the
// primary key so uniqueness is global across users.
type Session struct {
	SessionID  string    `gorm:"primaryKey;size:128" json:"session_id"`
	UserID     string    `gorm:"size:255;not null;index:idx_sessions_user_created,priority:1" json:"user_id"`
	DeviceInfo string    `gorm:"size:512" json:"device_info"`
	CreatedAt  time.Time `gorm:"not null;index:idx_sessions_user_created,priority:2;index" json:"created_at"`
}

// TableName pins the table name independent of gorm naming strategy.
func (Session) TableName() string {
	return "sessions"
}

// SessionUserLock holds one row per user. Admission locks it (SELECT ... FOR UPDATE) to
// serialise concurrent logins for the same user.
type SessionUserLock struct {
	UserID    string    `gorm:"primaryKey;size:255"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SessionUserLock) TableName() string {
	return "session_user_locks"
}
