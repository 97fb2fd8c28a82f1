package service

import (
	"fmt"
	"time"

	"timetable/backend/internal/dto"
	"timetable/backend/internal/model"
	"timetable/backend/internal/schedule"
)

// ── 持久化记录 ↔ 引擎类型 ──

// snapshotToModels 将引擎快照转换为待写入的记录；Position 记录注册顺序与课程内模板顺序
func snapshotToModels(snap schedule.Snapshot) (model.Term, []model.Course, []model.Deadline) {
	term := model.Term{StartTime: snap.TermStart}

	courses := make([]model.Course, 0, len(snap.Courses))
	for i, c := range snap.Courses {
		rec := model.Course{
			CourseID:    c.ID(),
			Name:        c.Name,
			Location:    c.Location,
			Description: c.Description,
			StartTime:   c.StartTime(),
			EndTime:     c.EndTime(),
			Position:    i,
		}
		for j, t := range c.Templates() {
			rec.Slots = append(rec.Slots, model.CourseSlot{
				SlotID:    t.ID(),
				CourseID:  c.ID(),
				DayColumn: t.Column(),
				StartSlot: t.StartSlot(),
				EndSlot:   t.EndSlot(),
				Period:    t.Period(),
				Position:  j,
			})
		}
		courses = append(courses, rec)
	}

	deadlines := make([]model.Deadline, 0, len(snap.DDls))
	for _, d := range snap.DDls {
		deadlines = append(deadlines, model.Deadline{
			Title:       d.Title,
			EndTime:     d.EndTime,
			Description: d.Description,
			Flag:        d.Flag,
		})
	}
	return term, courses, deadlines
}

// courseFromModel 以记录中的 ID 重建课程及其时间模板（不写入索引）
func courseFromModel(rec model.Course) (*schedule.CourseInfo, error) {
	c, err := schedule.RestoreCourse(rec.CourseID, rec.Name, rec.StartTime, rec.EndTime, rec.Location, rec.Description)
	if err != nil {
		return nil, err
	}
	for _, slot := range rec.Slots {
		if _, err := c.RestoreSlot(slot.SlotID, slot.DayColumn, slot.StartSlot, slot.EndSlot, slot.Period); err != nil {
			return nil, fmt.Errorf("时间模板 %s: %w", slot.SlotID, err)
		}
	}
	return c, nil
}

func deadlineFromModel(rec model.Deadline) schedule.DDlInfo {
	return schedule.DDlInfo{
		Title:       rec.Title,
		EndTime:     rec.EndTime,
		Description: rec.Description,
		Flag:        rec.Flag,
	}
}

// ── 引擎类型 → 响应 ──

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// parseTime 解析 RFC3339 时间并截断到微秒（TIMESTAMPTZ 的精度），
// 保证保存、重新加载后的时间与内存中的值仍然 Equal
func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidTime, field, value)
	}
	return t.Truncate(time.Microsecond), nil
}

func toTemplateResponse(t *schedule.CourseTemplate, termStart time.Time) dto.TemplateResponse {
	c := t.Course()
	return dto.TemplateResponse{
		ID:         t.ID(),
		CourseID:   c.ID(),
		CourseName: c.Name,
		Location:   c.Location,
		Column:     t.Column(),
		StartSlot:  t.StartSlot(),
		EndSlot:    t.EndSlot(),
		StartLabel: schedule.SlotLabel(t.StartSlot()),
		EndLabel:   schedule.SlotLabel(t.EndSlot()),
		Period:     t.Period(),
		StartWeek:  t.StartWeek(termStart),
		EndWeek:    t.EndWeek(termStart),
	}
}

func toCourseResponse(c *schedule.CourseInfo, termStart time.Time) dto.CourseResponse {
	resp := dto.CourseResponse{
		ID:          c.ID(),
		Name:        c.Name,
		Location:    c.Location,
		Description: c.Description,
		StartTime:   formatTime(c.StartTime()),
		EndTime:     formatTime(c.EndTime()),
		Templates:   []dto.TemplateResponse{},
	}
	for _, t := range c.Templates() {
		resp.Templates = append(resp.Templates, toTemplateResponse(t, termStart))
	}
	return resp
}

func toCourseResponses(courses []*schedule.CourseInfo, termStart time.Time) []dto.CourseResponse {
	out := make([]dto.CourseResponse, 0, len(courses))
	for _, c := range courses {
		out = append(out, toCourseResponse(c, termStart))
	}
	return out
}

func toDeadlineResponse(d schedule.DDlInfo, termStart time.Time) dto.DeadlineResponse {
	return dto.DeadlineResponse{
		Title:       d.Title,
		EndTime:     formatTime(d.EndTime),
		Description: d.Description,
		Flag:        d.Flag,
		Week:        schedule.WeekOf(termStart, d.EndTime),
	}
}

func toDeadlineResponses(ddls []schedule.DDlInfo, termStart time.Time) []dto.DeadlineResponse {
	out := make([]dto.DeadlineResponse, 0, len(ddls))
	for _, d := range ddls {
		out = append(out, toDeadlineResponse(d, termStart))
	}
	return out
}

func toWeekViewResponse(v schedule.WeekView, termStart time.Time) dto.WeekViewResponse {
	resp := dto.WeekViewResponse{
		Week:      v.Week,
		WeekStart: formatTime(v.WeekStart),
		Cells:     make([]dto.WeekCell, 0, len(v.Cells)),
		Deadlines: toDeadlineResponses(v.DDls, termStart),
	}
	for _, cell := range v.Cells {
		c := cell.Template.Course()
		resp.Cells = append(resp.Cells, dto.WeekCell{
			Column:     cell.Column,
			StartSlot:  cell.StartSlot,
			EndSlot:    cell.EndSlot,
			StartLabel: schedule.SlotLabel(cell.StartSlot),
			EndLabel:   schedule.SlotLabel(cell.EndSlot),
			TemplateID: cell.Template.ID(),
			CourseID:   c.ID(),
			CourseName: c.Name,
			Location:   c.Location,
		})
	}
	return resp
}

// ── 请求 → 编辑命令 ──

func slotDraft(req dto.SlotRequest) schedule.SlotDraft {
	return schedule.SlotDraft{Column: req.Column, Start: req.StartSlot, End: req.EndSlot, Period: req.Period}
}

// courseCommands 将整体课程请求展开为编辑命令序列
func courseCommands(req *dto.CourseRequest) ([]schedule.EditCommand, error) {
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		return nil, err
	}
	cmds := []schedule.EditCommand{
		schedule.SetName{Value: req.Name},
		schedule.SetLocation{Value: req.Location},
		schedule.SetDescription{Value: req.Description},
		schedule.SetWindow{Start: start, End: end},
	}
	for _, slot := range req.Slots {
		cmds = append(cmds, schedule.AddSlot{Slot: slotDraft(slot)})
	}
	return cmds, nil
}

func editCommand(req dto.EditCommandRequest) (schedule.EditCommand, error) {
	switch req.Op {
	case dto.EditOpSetName:
		return schedule.SetName{Value: req.Value}, nil
	case dto.EditOpSetLocation:
		return schedule.SetLocation{Value: req.Value}, nil
	case dto.EditOpSetDescription:
		return schedule.SetDescription{Value: req.Value}, nil
	case dto.EditOpSetWindow:
		start, err := parseTime("start_time", req.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := parseTime("end_time", req.EndTime)
		if err != nil {
			return nil, err
		}
		return schedule.SetWindow{Start: start, End: end}, nil
	case dto.EditOpAddSlot:
		if req.Slot == nil {
			return nil, fmt.Errorf("%w: add_slot 缺少 slot", ErrInvalidEditCommand)
		}
		return schedule.AddSlot{Slot: slotDraft(*req.Slot)}, nil
	case dto.EditOpRemoveSlot:
		return schedule.RemoveSlot{Index: req.Index}, nil
	case dto.EditOpSetSlotStart:
		return schedule.SetSlotStart{Index: req.Index, Value: req.IntValue}, nil
	case dto.EditOpSetSlotEnd:
		return schedule.SetSlotEnd{Index: req.Index, Value: req.IntValue}, nil
	case dto.EditOpSetColumn:
		return schedule.SetColumn{Index: req.Index, Value: req.IntValue}, nil
	case dto.EditOpSetPeriod:
		return schedule.SetPeriod{Index: req.Index, Value: req.IntValue}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidEditCommand, req.Op)
}
