package schedule

import (
	"fmt"
	"time"

	pkgerrors "timetable/backend/pkg/errors"
)

// ── 课程编辑会话 ──────────────────────────────────────────
//
// 编辑界面持有一个 EditSession 值，逐条应用类型化的编辑命令，
// 最后通过 Schedule.CommitCourse 提交。引擎本身不保存任何编辑中间状态。
// ─────────────────────────────────────────────────────────────

// SlotDraft 编辑中的时间段（尚未校验）
type SlotDraft struct {
	Column int
	Start  int
	End    int
	Period int
}

// EditSession 课程编辑会话
type EditSession struct {
	CourseID    string // 编辑已有课程时非空
	Name        string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	Slots       []SlotDraft
}

// NewEditSession 新建课程的编辑会话
func NewEditSession(start, end time.Time) *EditSession {
	return &EditSession{Start: start, End: end}
}

// EditSessionFrom 以已有课程为初始值的编辑会话
func EditSessionFrom(c *CourseInfo) *EditSession {
	sess := &EditSession{
		CourseID:    c.id,
		Name:        c.Name,
		Location:    c.Location,
		Description: c.Description,
		Start:       c.start,
		End:         c.end,
	}
	for _, t := range c.templates {
		sess.Slots = append(sess.Slots, SlotDraft{
			Column: t.column,
			Start:  t.startSlot,
			End:    t.endSlot,
			Period: t.period,
		})
	}
	return sess
}

// EditCommand 编辑命令
type EditCommand interface {
	apply(*EditSession) error
}

type (
	SetName        struct{ Value string }
	SetLocation    struct{ Value string }
	SetDescription struct{ Value string }
	SetWindow      struct{ Start, End time.Time }
	AddSlot        struct{ Slot SlotDraft }
	RemoveSlot     struct{ Index int }
	SetSlotStart   struct{ Index, Value int }
	SetSlotEnd     struct{ Index, Value int }
	SetColumn      struct{ Index, Value int }
	SetPeriod      struct{ Index, Value int }
)

func (c SetName) apply(s *EditSession) error { s.Name = c.Value; return nil }
func (c SetLocation) apply(s *EditSession) error { s.Location = c.Value; return nil }
func (c SetDescription) apply(s *EditSession) error { s.Description = c.Value; return nil }

func (c SetWindow) apply(s *EditSession) error {
	s.Start, s.End = c.Start, c.End
	return nil
}

func (c AddSlot) apply(s *EditSession) error {
	slot := c.Slot
	if slot.Period == 0 {
		slot.Period = 1
	}
	s.Slots = append(s.Slots, slot)
	return nil
}

func (c RemoveSlot) apply(s *EditSession) error {
	if err := s.checkIndex(c.Index); err != nil {
		return err
	}
	s.Slots = append(s.Slots[:c.Index], s.Slots[c.Index+1:]...)
	return nil
}

func (c SetSlotStart) apply(s *EditSession) error {
	if err := s.checkIndex(c.Index); err != nil {
		return err
	}
	s.Slots[c.Index].Start = c.Value
	return nil
}

func (c SetSlotEnd) apply(s *EditSession) error {
	if err := s.checkIndex(c.Index); err != nil {
		return err
	}
	s.Slots[c.Index].End = c.Value
	return nil
}

func (c SetColumn) apply(s *EditSession) error {
	if err := s.checkIndex(c.Index); err != nil {
		return err
	}
	s.Slots[c.Index].Column = c.Value
	return nil
}

func (c SetPeriod) apply(s *EditSession) error {
	if err := s.checkIndex(c.Index); err != nil {
		return err
	}
	s.Slots[c.Index].Period = c.Value
	return nil
}

func (s *EditSession) checkIndex(i int) error {
	if i < 0 || i >= len(s.Slots) {
		return fmt.Errorf("%w: %d（共 %d 个）", pkgerrors.ErrSlotIndex, i, len(s.Slots))
	}
	return nil
}

// Apply 依次应用命令，遇到第一个错误即停止
func (s *EditSession) Apply(cmds ...EditCommand) error {
	for _, cmd := range cmds {
		if err := cmd.apply(s); err != nil {
			return err
		}
	}
	return nil
}

// Build 校验并构造课程。编辑已有课程时沿用其 ID。
func (s *EditSession) Build() (*CourseInfo, error) {
	c, err := RestoreCourse(s.CourseID, s.Name, s.Start, s.End, s.Location, s.Description)
	if err != nil {
		return nil, err
	}
	for i, d := range s.Slots {
		if _, err := c.AddSlot(d.Column, d.Start, d.End, d.Period); err != nil {
			return nil, fmt.Errorf("时间段 %d: %w", i, err)
		}
	}
	return c, nil
}

// CommitCourse 构造会话中的课程并注册。
// 若会话编辑的是已注册课程，则原子替换；冲突时返回 ErrConflict，原课程保持不变。
func (s *Schedule) CommitCourse(sess *EditSession) (*CourseInfo, error) {
	c, err := sess.Build()
	if err != nil {
		return nil, err
	}
	if sess.CourseID != "" {
		if old := s.Course(sess.CourseID); old != nil {
			if !s.ReplaceCourse(old, c) {
				return nil, pkgerrors.ErrConflict
			}
			return c, nil
		}
	}
	if !s.AddCourse(c) {
		return nil, pkgerrors.ErrConflict
	}
	return c, nil
}
