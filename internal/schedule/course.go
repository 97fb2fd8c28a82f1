package schedule

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	pkgerrors "timetable/backend/pkg/errors"
)

// 文本字段长度上限（按字符计），与数据库 VARCHAR 列宽一致；描述为 TEXT，不限
const (
	MaxNameLen     = 100
	MaxLocationLen = 100
	MaxDDlTitleLen = 200
)

// checkLen 超过 max 个字符时返回描述信息
func checkLen(field, value string, max int) string {
	if n := utf8.RuneCountInString(value); n > max {
		return fmt.Sprintf("%s长度 %d 超过上限 %d", field, n, max)
	}
	return ""
}

// CourseInfo 课程：有效期 [start, end) 限定其时间模板在哪些周生效。
// 有效期构造后不可修改；名称、地点、描述属于展示信息，可直接修改。
type CourseInfo struct {
	Name        string
	Location    string
	Description string

	id        string
	start     time.Time
	end       time.Time
	templates []*CourseTemplate
}

// NewCourse 创建课程，start 必须早于 end
func NewCourse(name string, start, end time.Time, location, description string) (*CourseInfo, error) {
	return newCourseWithID(uuid.NewString(), name, start, end, location, description)
}

// RestoreCourse 以已有 ID 重建课程（持久化加载使用）
func RestoreCourse(id, name string, start, end time.Time, location, description string) (*CourseInfo, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return newCourseWithID(id, name, start, end, location, description)
}

func newCourseWithID(id, name string, start, end time.Time, location, description string) (*CourseInfo, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: 有效期 %s >= %s", pkgerrors.ErrInvalidCourse,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	for _, msg := range []string{
		checkLen("名称", name, MaxNameLen),
		checkLen("地点", location, MaxLocationLen),
	} {
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidCourse, msg)
		}
	}
	return &CourseInfo{
		Name:        name,
		Location:    location,
		Description: description,
		id:          id,
		start:       start,
		end:         end,
	}, nil
}

func (c *CourseInfo) ID() string { return c.id }
func (c *CourseInfo) StartTime() time.Time { return c.start }
func (c *CourseInfo) EndTime() time.Time { return c.end }

// Templates 返回课程时间模板的副本
func (c *CourseInfo) Templates() []*CourseTemplate {
	out := make([]*CourseTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

// AddSlot 创建时间模板并挂到课程上（尚未写入任何索引）
func (c *CourseInfo) AddSlot(column, startSlot, endSlot, period int) (*CourseTemplate, error) {
	t, err := NewCourseTemplate(c, column, startSlot, endSlot, period)
	if err != nil {
		return nil, err
	}
	c.attach(t)
	return t, nil
}

// RestoreSlot 以已有 ID 重建时间模板并挂到课程上
func (c *CourseInfo) RestoreSlot(id string, column, startSlot, endSlot, period int) (*CourseTemplate, error) {
	t, err := RestoreCourseTemplate(id, c, column, startSlot, endSlot, period)
	if err != nil {
		return nil, err
	}
	c.attach(t)
	return t, nil
}

// attach 幂等追加
func (c *CourseInfo) attach(t *CourseTemplate) {
	for _, existing := range c.templates {
		if existing == t {
			return
		}
	}
	c.templates = append(c.templates, t)
}

func (c *CourseInfo) detach(t *CourseTemplate) {
	for i, existing := range c.templates {
		if existing == t {
			c.templates = append(c.templates[:i], c.templates[i+1:]...)
			return
		}
	}
}

// CourseTemplate 每周重复的时间模板。
// course 为非拥有引用，仅用于读取有效期与课程信息。
type CourseTemplate struct {
	id        string
	column    int
	startSlot int
	endSlot   int
	period    int
	course    *CourseInfo
}

// NewCourseTemplate 创建时间模板，不挂到课程上。
// 约束：column ∈ [0,6]，0 <= startSlot < endSlot <= SlotsPerDay，period >= 1。
func NewCourseTemplate(course *CourseInfo, column, startSlot, endSlot, period int) (*CourseTemplate, error) {
	return RestoreCourseTemplate("", course, column, startSlot, endSlot, period)
}

// RestoreCourseTemplate 以已有 ID 重建时间模板
func RestoreCourseTemplate(id string, course *CourseInfo, column, startSlot, endSlot, period int) (*CourseTemplate, error) {
	switch {
	case course == nil:
		return nil, fmt.Errorf("%w: 缺少所属课程", pkgerrors.ErrInvalidTemplate)
	case column < 0 || column >= DaysPerWeek:
		return nil, fmt.Errorf("%w: 列 %d 超出 0-6", pkgerrors.ErrInvalidTemplate, column)
	case startSlot < 0 || endSlot > SlotsPerDay || startSlot >= endSlot:
		return nil, fmt.Errorf("%w: 时间格 [%d,%d) 非法", pkgerrors.ErrInvalidTemplate, startSlot, endSlot)
	case period < 1:
		return nil, fmt.Errorf("%w: 周期 %d 必须 >= 1", pkgerrors.ErrInvalidTemplate, period)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &CourseTemplate{
		id:        id,
		column:    column,
		startSlot: startSlot,
		endSlot:   endSlot,
		period:    period,
		course:    course,
	}, nil
}

func (t *CourseTemplate) ID() string { return t.id }
func (t *CourseTemplate) Column() int { return t.column }
func (t *CourseTemplate) StartSlot() int { return t.startSlot }
func (t *CourseTemplate) EndSlot() int { return t.endSlot }
func (t *CourseTemplate) Period() int { return t.period }
func (t *CourseTemplate) Course() *CourseInfo { return t.course }

// StartWeek 所属课程有效期起始周
func (t *CourseTemplate) StartWeek(termStart time.Time) int {
	return WeekOf(termStart, t.course.start)
}

// EndWeek 所属课程有效期结束周（不含）
func (t *CourseTemplate) EndWeek(termStart time.Time) int {
	return WeekOf(termStart, t.course.end)
}

// OccursIn 模板是否在第 week 周出现
func (t *CourseTemplate) OccursIn(termStart time.Time, week int) bool {
	startWeek := t.StartWeek(termStart)
	if week < startWeek || week >= t.EndWeek(termStart) {
		return false
	}
	return (week-startWeek)%t.period == 0
}

// DDlInfo 一次性截止事项（DDL）。值类型，四个字段全部相等视为同一条。
type DDlInfo struct {
	Title       string    `json:"title"`
	EndTime     time.Time `json:"end_time"`
	Description string    `json:"description"`
	Flag        int       `json:"flag"`
}

// Validate 检查标题长度
func (d DDlInfo) Validate() error {
	if msg := checkLen("标题", d.Title, MaxDDlTitleLen); msg != "" {
		return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidDDl, msg)
	}
	return nil
}

// Equal 值相等（时间按 time.Equal 比较）
func (d DDlInfo) Equal(other DDlInfo) bool {
	return d.Title == other.Title &&
		d.EndTime.Equal(other.EndTime) &&
		d.Description == other.Description &&
		d.Flag == other.Flag
}
