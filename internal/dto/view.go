package dto

// ── 单元格查询 ──

// CellQuery 单元格查询：给出 at（RFC3339 时间点），或同时给出 column、slot、week
type CellQuery struct {
	At     string `form:"at"     binding:"omitempty,rfc3339"`
	Column *int   `form:"column" binding:"omitempty,min=0,max=6"`
	Slot   *int   `form:"slot"   binding:"omitempty,min=0,max=47"`
	Week   *int   `form:"week"`
}

// CellResponse 单元格查询结果；该格无课时 template 为空
type CellResponse struct {
	Week     int               `json:"week"`
	Column   int               `json:"column"`
	Slot     int               `json:"slot"`
	Template *TemplateResponse `json:"template"`
}

// ── 周视图 ──

// WeekCell 周视图中的一段连续课程
type WeekCell struct {
	Column     int    `json:"column"`
	StartSlot  int    `json:"start_slot"`
	EndSlot    int    `json:"end_slot"`
	StartLabel string `json:"start_label"`
	EndLabel   string `json:"end_label"`
	TemplateID string `json:"template_id"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Location   string `json:"location"`
}

// WeekViewResponse 某一周的渲染数据
type WeekViewResponse struct {
	Week      int                `json:"week"`
	WeekStart string             `json:"week_start"`
	Cells     []WeekCell         `json:"cells"`
	Deadlines []DeadlineResponse `json:"deadlines"`
}

// ── ICS 导入 ──

// ImportICSRequest URL 方式导入
type ImportICSRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// ImportSkipped 未能导入的事件
type ImportSkipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportICSResponse ICS 导入结果
type ImportICSResponse struct {
	ImportedCount     int              `json:"imported_count"`
	Imported          []CourseResponse `json:"imported"`
	DeadlinesImported int              `json:"deadlines_imported"` // 零时长事件按 DDL 导入
	Skipped           []ImportSkipped  `json:"skipped"`
}

// ExportQuery Excel 导出参数；week 为空时导出整个学期
type ExportQuery struct {
	Week *int `form:"week" binding:"omitempty,min=0"`
}
