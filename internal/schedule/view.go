package schedule

import "time"

// Cell 周视图中的一段连续课程（同一模板覆盖的连续时间格合并为一个 Cell）
type Cell struct {
	Column    int
	StartSlot int
	EndSlot   int
	Template  *CourseTemplate
}

// WeekView 某一周的渲染数据
type WeekView struct {
	Week      int
	WeekStart time.Time
	Cells     []Cell
	DDls      []DDlInfo
}

// WeekView 逐列逐格调用 TemplateAt 组装第 week 周的视图
func (s *Schedule) WeekView(week int) WeekView {
	start := SlotStart(s.termStart, week, 0, 0)
	view := WeekView{
		Week:      week,
		WeekStart: start,
		DDls:      s.DDls(start, start.Add(WeekLength)),
	}
	for col := 0; col < DaysPerWeek; col++ {
		var cur *Cell
		for slot := 0; slot < SlotsPerDay; slot++ {
			t := s.TemplateAt(col, slot, week)
			if cur != nil && cur.Template == t {
				cur.EndSlot = slot + 1
				continue
			}
			if cur != nil {
				view.Cells = append(view.Cells, *cur)
				cur = nil
			}
			if t != nil {
				cur = &Cell{Column: col, StartSlot: slot, EndSlot: slot + 1, Template: t}
			}
		}
		if cur != nil {
			view.Cells = append(view.Cells, *cur)
		}
	}
	return view
}
