package model

import "time"

// Deadline DDL 表 — 对应 deadlines
type Deadline struct {
	DeadlineID  int64     `gorm:"primaryKey;autoIncrement"   json:"deadline_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	EndTime     time.Time `gorm:"type:timestamptz;not null;index" json:"end_time"`
	Description string    `gorm:"type:text"                  json:"description"`
	Flag        int       `gorm:"not null;default:0"         json:"flag"`
	BaseModel
}

// TableName 指定表名
func (Deadline) TableName() string { return "deadlines" }
