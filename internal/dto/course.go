package dto

// ── 课程 ──

// SlotRequest 课程时间模板（列 × 时间格区间 × 周期）
type SlotRequest struct {
	Column    int `json:"column"     binding:"min=0,max=6"`
	StartSlot int `json:"start_slot" binding:"min=0,max=47"`
	EndSlot   int `json:"end_slot"   binding:"min=1,max=48"`
	Period    int `json:"period"     binding:"omitempty,min=1"` // 缺省为 1（每周）
}

// CourseRequest 新建或整体替换课程
type CourseRequest struct {
	Name        string        `json:"name"        binding:"required,max=100"`
	Location    string        `json:"location"    binding:"omitempty,max=100"`
	Description string        `json:"description" binding:"omitempty,max=2000"`
	StartTime   string        `json:"start_time"  binding:"required,rfc3339"`
	EndTime     string        `json:"end_time"    binding:"required,rfc3339"` // 不含
	Slots       []SlotRequest `json:"slots"       binding:"omitempty,dive"`
}

// 编辑命令类型
const (
	EditOpSetName        = "set_name"
	EditOpSetLocation    = "set_location"
	EditOpSetDescription = "set_description"
	EditOpSetWindow      = "set_window"
	EditOpAddSlot        = "add_slot"
	EditOpRemoveSlot     = "remove_slot"
	EditOpSetSlotStart   = "set_slot_start"
	EditOpSetSlotEnd     = "set_slot_end"
	EditOpSetColumn      = "set_column"
	EditOpSetPeriod      = "set_period"
)

// EditCommandRequest 单条编辑命令
//
// 字段按 op 取用：
//   - set_name / set_location / set_description: value
//   - set_window: start_time, end_time
//   - add_slot: slot
//   - remove_slot: index
//   - set_slot_start / set_slot_end / set_column / set_period: index, int_value
type EditCommandRequest struct {
	Op        string       `json:"op" binding:"required,oneof=set_name set_location set_description set_window add_slot remove_slot set_slot_start set_slot_end set_column set_period"`
	Value     string       `json:"value"      binding:"max=2000"`
	StartTime string       `json:"start_time" binding:"omitempty,rfc3339"`
	EndTime   string       `json:"end_time"   binding:"omitempty,rfc3339"`
	Index     int          `json:"index"`
	IntValue  int          `json:"int_value"`
	Slot      *SlotRequest `json:"slot"`
}

// EditCourseRequest 对已有课程按顺序应用一组编辑命令，全部成功后一次提交
type EditCourseRequest struct {
	Commands []EditCommandRequest `json:"commands" binding:"required,min=1,dive"`
}

// CourseResponse 课程信息
type CourseResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Location    string             `json:"location"`
	Description string             `json:"description"`
	StartTime   string             `json:"start_time"`
	EndTime     string             `json:"end_time"`
	Templates   []TemplateResponse `json:"templates"`
}

// ── 时间模板 ──

// CreateTemplateRequest 为已有课程追加一个时间模板
type CreateTemplateRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	SlotRequest
}

// TemplateResponse 时间模板信息
type TemplateResponse struct {
	ID         string `json:"id"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Location   string `json:"location"`
	Column     int    `json:"column"`
	StartSlot  int    `json:"start_slot"`
	EndSlot    int    `json:"end_slot"`
	StartLabel string `json:"start_label"` // HH:MM
	EndLabel   string `json:"end_label"`
	Period     int    `json:"period"`
	StartWeek  int    `json:"start_week"`
	EndWeek    int    `json:"end_week"` // 不含
}

// TemplateQuery 时间模板列表查询；column 为空时返回全部列
type TemplateQuery struct {
	Column *int `form:"column" binding:"omitempty,min=0,max=6"`
}
