package model

import "time"

// Course 课程表 — 对应 courses
type Course struct {
	CourseID    string    `gorm:"type:uuid;primaryKey"          json:"course_id"`
	Name        string    `gorm:"type:varchar(100);not null"    json:"name"`
	Location    string    `gorm:"type:varchar(100)"             json:"location"`
	Description string    `gorm:"type:text"                     json:"description"`
	StartTime   time.Time `gorm:"type:timestamptz;not null"     json:"start_time"` // 有效期 [start, end)
	EndTime     time.Time `gorm:"type:timestamptz;not null"     json:"end_time"`
	Position    int       `gorm:"not null;default:0"            json:"position"` // 注册顺序
	BaseModel

	// 关联
	Slots []CourseSlot `gorm:"foreignKey:CourseID;references:CourseID;constraint:OnDelete:CASCADE" json:"slots,omitempty"`
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }

// CourseSlot 课程时间模板表 — 对应 course_slots
type CourseSlot struct {
	SlotID    string `gorm:"type:uuid;primaryKey"  json:"slot_id"`
	CourseID  string `gorm:"type:uuid;not null"    json:"course_id"`
	DayColumn int    `gorm:"type:smallint;not null" json:"day_column"` // 0=周一 … 6=周日
	StartSlot int    `gorm:"type:smallint;not null" json:"start_slot"`
	EndSlot   int    `gorm:"type:smallint;not null" json:"end_slot"`
	Period    int    `gorm:"type:smallint;not null;default:1" json:"period"`
	Position  int    `gorm:"not null;default:0"    json:"position"` // 课程内顺序
	BaseModel
}

// TableName 指定表名
func (CourseSlot) TableName() string { return "course_slots" }
