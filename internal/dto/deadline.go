package dto

// ── DDL ──

// DeadlineRequest 新增或删除 DDL；删除时四个字段需与已有记录完全一致
type DeadlineRequest struct {
	Title       string `json:"title"       binding:"required,max=200"`
	EndTime     string `json:"end_time"    binding:"required,rfc3339"`
	Description string `json:"description" binding:"omitempty,max=2000"`
	Flag        int    `json:"flag"`
}

// DeadlineQuery DDL 查询区间 [from, to)；留空表示不限
type DeadlineQuery struct {
	From string `form:"from" binding:"omitempty,rfc3339"`
	To   string `form:"to"   binding:"omitempty,rfc3339"`
}

// DeadlineResponse DDL 信息
type DeadlineResponse struct {
	Title       string `json:"title"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
	Flag        int    `json:"flag"`
	Week        int    `json:"week"`
}
