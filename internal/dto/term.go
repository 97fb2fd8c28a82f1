package dto

// ── 学期 ──

// TermResponse 学期信息与课表规模
type TermResponse struct {
	StartTime   string `json:"start_time"` // RFC3339，第 0 周周一 00:00
	CurrentWeek int    `json:"current_week"`
	Courses     int    `json:"courses"`
	Templates   int    `json:"templates"`
	Deadlines   int    `json:"deadlines"`
	Revision    uint64 `json:"revision"`
}

// UpdateTermRequest 修改学期起始时间
type UpdateTermRequest struct {
	StartTime string `json:"start_time" binding:"required,rfc3339"`
	// Force 为 true 时丢弃在新学期起点下冲突的课程；否则有冲突即整体放弃
	Force bool `json:"force"`
}

// UpdateTermResponse 修改学期结果
type UpdateTermResponse struct {
	Term     TermResponse     `json:"term"`
	Rejected []CourseResponse `json:"rejected"`
}

// LoadResponse 启动加载结果
type LoadResponse struct {
	Source    string   `json:"source"` // database | config | test_data
	Courses   int      `json:"courses"`
	Templates int      `json:"templates"`
	Deadlines int      `json:"deadlines"`
	Rejected  []string `json:"rejected,omitempty"` // 加载时因冲突被拒绝的课程名
}
