package schedule

import (
	"time"
)

// ── Schedule 课表引擎 ──────────────────────────────────────
//
// 职责：
//   - 持有 7 个星期列的模板索引、DDL 索引以及已注册课程集合
//   - 课程级增删保证原子性：先整体校验，再整体写入
//   - 以学期起始时间为基准完成绝对时间 → (周, 列, 格) 的换算
//
// 引擎为单线程同步模型，不做任何加锁；并发场景由上层（service）串行化。
// ─────────────────────────────────────────────────────────────

// Schedule 课表引擎
type Schedule struct {
	termStart time.Time
	days      [DaysPerWeek]*slotIndex
	ddls      *ddlIndex
	courses   []*CourseInfo // 注册顺序
	coincide  CoincidenceFunc
}

// Option 引擎选项
type Option func(*Schedule)

// WithCoincidence 替换周次重合判定（默认 BruteForceCoincidence）
func WithCoincidence(f CoincidenceFunc) Option {
	return func(s *Schedule) {
		if f != nil {
			s.coincide = f
		}
	}
}

// New 创建空课表
func New(termStart time.Time, opts ...Option) *Schedule {
	s := &Schedule{
		termStart: termStart,
		ddls:      newDDlIndex(),
		coincide:  BruteForceCoincidence,
	}
	for i := range s.days {
		s.days[i] = newSlotIndex(s)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TermStart 学期起始时间（第 0 周）
func (s *Schedule) TermStart() time.Time { return s.termStart }

// Week 返回 t 所在周次
func (s *Schedule) Week(t time.Time) int { return WeekOf(s.termStart, t) }

// ── 冲突判定 ──

// conflicts 两个模板冲突当且仅当：同列、时间格重叠、有效期重叠、且至少有一周同时出现
func (s *Schedule) conflicts(t1, t2 *CourseTemplate) bool {
	if t1.column != t2.column {
		return false
	}
	if max(t1.startSlot, t2.startSlot) >= min(t1.endSlot, t2.endSlot) {
		return false
	}
	c1, c2 := t1.course, t2.course
	latestStart := c1.start
	if c2.start.After(latestStart) {
		latestStart = c2.start
	}
	earliestEnd := c1.end
	if c2.end.Before(earliestEnd) {
		earliestEnd = c2.end
	}
	if !latestStart.Before(earliestEnd) {
		return false
	}

	later, other := t2, t1
	if c1.start.After(c2.start) {
		later, other = t1, t2
	}
	endWeek := min(t1.EndWeek(s.termStart), t2.EndWeek(s.termStart))
	return s.coincide(later.StartWeek(s.termStart), later.period,
		other.StartWeek(s.termStart), other.period, endWeek)
}

// Conflicts 对外暴露的两两冲突判定
func (s *Schedule) Conflicts(t1, t2 *CourseTemplate) bool { return s.conflicts(t1, t2) }

// ConflictCheck 模板是否与已存储的模板冲突（不修改状态）
func (s *Schedule) ConflictCheck(t *CourseTemplate) bool {
	return s.days[t.column].conflictCheck(t)
}

// ── 模板级操作（非原子，供增量编辑使用） ──

// AddTemplate 冲突时返回 false 且不修改任何状态
func (s *Schedule) AddTemplate(t *CourseTemplate) bool {
	return s.days[t.column].addTemplate(t, true)
}

// RemoveTemplate 从索引和所属课程中移除模板
func (s *Schedule) RemoveTemplate(t *CourseTemplate) {
	s.days[t.column].removeTemplate(t)
}

// ── 课程级操作 ──

// AddCourse 原子地注册课程：任一模板冲突（包括与本课程其他模板冲突）则整体放弃并返回 false。
// 已注册的课程只补入尚未进入索引的模板（例如注册后通过 CourseInfo.AddSlot 新增的），规则相同。
func (s *Schedule) AddCourse(c *CourseInfo) bool {
	var pending []*CourseTemplate
	for _, t := range c.templates {
		if !s.days[t.column].contains(t) {
			pending = append(pending, t)
		}
	}
	for i, t := range pending {
		if s.days[t.column].conflictCheck(t) {
			return false
		}
		for _, prev := range pending[:i] {
			if s.conflicts(prev, t) {
				return false
			}
		}
	}
	for _, t := range pending {
		s.days[t.column].addTemplate(t, false)
	}
	if !s.hasCourse(c) {
		s.courses = append(s.courses, c)
	}
	return true
}

// RemoveCourse 注销课程并从索引中移除其全部模板；未注册的课程为空操作。
// 课程自身的模板列表保持不变，便于撤销后重新 AddCourse。
func (s *Schedule) RemoveCourse(c *CourseInfo) {
	for _, t := range c.templates {
		s.days[t.column].unindex(t)
	}
	for i, existing := range s.courses {
		if existing == c {
			s.courses = append(s.courses[:i], s.courses[i+1:]...)
			break
		}
	}
}

// ReplaceCourse 用 next 替换 old；next 冲突时恢复 old 并返回 false
func (s *Schedule) ReplaceCourse(old, next *CourseInfo) bool {
	registered := s.hasCourse(old)
	s.RemoveCourse(old)
	if s.AddCourse(next) {
		return true
	}
	if registered {
		s.AddCourse(old)
	}
	return false
}

func (s *Schedule) hasCourse(c *CourseInfo) bool {
	for _, existing := range s.courses {
		if existing == c {
			return true
		}
	}
	return false
}

// Courses 按注册顺序返回全部课程
func (s *Schedule) Courses() []*CourseInfo {
	out := make([]*CourseInfo, len(s.courses))
	copy(out, s.courses)
	return out
}

// Course 按 ID 查找已注册课程
func (s *Schedule) Course(id string) *CourseInfo {
	for _, c := range s.courses {
		if c.id == id {
			return c
		}
	}
	return nil
}

// Template 按 ID 查找已写入索引的模板
func (s *Schedule) Template(id string) *CourseTemplate {
	for _, day := range s.days {
		for _, t := range day.templates() {
			if t.id == id {
				return t
			}
		}
	}
	return nil
}

// Templates 返回某一列的全部模板（按起始格升序）
func (s *Schedule) Templates(column int) []*CourseTemplate {
	if column < 0 || column >= DaysPerWeek {
		return nil
	}
	return s.days[column].templates()
}

// ── 查询 ──

// TemplateAt 第 week 周、第 column 列、第 slot 格的模板，没有则返回 nil
func (s *Schedule) TemplateAt(column, slot, week int) *CourseTemplate {
	if column < 0 || column >= DaysPerWeek || slot < 0 || slot >= SlotsPerDay {
		return nil
	}
	return s.days[column].getTemplate(slot, week)
}

// TemplateAtTime 绝对时间点上的模板
func (s *Schedule) TemplateAtTime(t time.Time) *CourseTemplate {
	week, day, slot := Locate(s.termStart, t)
	return s.TemplateAt(day, slot, week)
}

// ── DDL ──

// AddDDl 完全相同的 DDL 已存在时返回 false
func (s *Schedule) AddDDl(d DDlInfo) bool { return s.ddls.add(d) }

// RemoveDDl 移除 DDL，返回是否确实删除
func (s *Schedule) RemoveDDl(d DDlInfo) bool { return s.ddls.remove(d) }

// DDls 截止时间在 [from, to) 内的 DDL
func (s *Schedule) DDls(from, to time.Time) []DDlInfo { return s.ddls.between(from, to) }

// AllDDls 全部 DDL，按截止时间升序
func (s *Schedule) AllDDls() []DDlInfo { return s.ddls.all() }

// ── 重建与快照 ──

// Snapshot 持久化视图：索引属于派生缓存，不参与持久化
type Snapshot struct {
	TermStart time.Time
	Courses   []*CourseInfo
	DDls      []DDlInfo
}

// Snapshot 导出当前状态
func (s *Schedule) Snapshot() Snapshot {
	return Snapshot{
		TermStart: s.termStart,
		Courses:   s.Courses(),
		DDls:      s.AllDDls(),
	}
}

// Rebuild 清空并以新的学期起始时间重建索引。
// 每门课程都经 AddCourse 重新写入，返回因冲突被拒绝的课程。
func (s *Schedule) Rebuild(termStart time.Time, courses []*CourseInfo, ddls []DDlInfo) []*CourseInfo {
	s.termStart = termStart
	for i := range s.days {
		s.days[i] = newSlotIndex(s)
	}
	s.ddls = newDDlIndex()
	s.courses = nil

	var rejected []*CourseInfo
	for _, c := range courses {
		if !s.AddCourse(c) {
			rejected = append(rejected, c)
		}
	}
	for _, d := range ddls {
		s.ddls.add(d)
	}
	return rejected
}

// Stats 索引规模
type Stats struct {
	Courses   int
	Templates int
	DDls      int
}

// Stats 返回当前索引规模
func (s *Schedule) Stats() Stats {
	st := Stats{Courses: len(s.courses), DDls: s.ddls.len()}
	for _, day := range s.days {
		st.Templates += day.len()
	}
	return st
}
