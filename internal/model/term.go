package model

import "time"

// Term 学期表 — 对应 terms（单用户应用只保留一行）
type Term struct {
	TermID    int       `gorm:"primaryKey"            json:"term_id"`
	StartTime time.Time `gorm:"type:timestamptz;not null" json:"start_time"` // 第 0 周周一 00:00
	BaseModel
}

// TableName 指定表名
func (Term) TableName() string { return "terms" }
