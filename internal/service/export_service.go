package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"timetable/backend/internal/schedule"
)

// ── 导出模块业务错误 ──

var (
	ErrExportInvalidWeek  = errors.New("周次超出学期范围")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - Excel 格式：每周一个 Sheet，时间格为行、周一 ~ 周日为列；另有一个 DDL Sheet
type ExportService interface {
	// ExportSchedule 导出课表为 Excel；week 为空时导出整个学期
	ExportSchedule(ctx context.Context, week *int) (*bytes.Buffer, string, error)
}

type exportService struct {
	eng       *engine
	termWeeks int
	logger    *zap.Logger
}

func newExportService(eng *engine, termWeeks int, logger *zap.Logger) *exportService {
	return &exportService{eng: eng, termWeeks: termWeeks, logger: logger}
}

var dayNames = [schedule.DaysPerWeek]string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

const deadlineSheet = "DDL"

// weekSheetName 周次从 0 开始，展示时从 1 开始
func weekSheetName(week int) string {
	return fmt.Sprintf("第%d周", week+1)
}

// ═══════════════════════════════════════════════════════════
// ExportSchedule 导出课表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "第1周" / "第2周" ...
//   - 行头：时间格（00:00-00:30 ... 23:30-24:00）
//   - 列头：周一 ~ 周日
//   - 单元格：课程名 (地点)，同一模板的连续时间格纵向合并
//   - Sheet "DDL"：导出范围内的全部 DDL
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportSchedule(_ context.Context, week *int) (*bytes.Buffer, string, error) {
	weeks := make([]int, 0, s.termWeeks)
	filename := "课表.xlsx"
	if week != nil {
		if *week < 0 || *week >= s.termWeeks {
			return nil, "", fmt.Errorf("%w: %d", ErrExportInvalidWeek, *week)
		}
		weeks = append(weeks, *week)
		filename = fmt.Sprintf("课表_%s.xlsx", weekSheetName(*week))
	} else {
		for w := 0; w < s.termWeeks; w++ {
			weeks = append(weeks, w)
		}
	}

	// 1. 在读锁内取出各周视图
	var (
		views     []schedule.WeekView
		ddls      []schedule.DDlInfo
		termStart time.Time
	)
	_ = s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		termStart = sched.TermStart()
		for _, w := range weeks {
			v := sched.WeekView(w)
			views = append(views, v)
			ddls = append(ddls, v.DDls...)
		}
		return nil
	})

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	courseStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})

	for i, v := range views {
		sheetName := weekSheetName(v.Week)
		idx, err := f.NewSheet(sheetName)
		if err != nil {
			s.logger.Error("创建 Sheet 失败", zap.String("sheet", sheetName), zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		writeWeekSheet(f, sheetName, v, headerStyle, courseStyle)
	}

	if err := writeDeadlineSheet(f, ddls, termStart, headerStyle); err != nil {
		s.logger.Error("创建 Sheet 失败", zap.String("sheet", deadlineSheet), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	// 3. 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	s.logger.Info("Excel 导出完成", zap.Int("weeks", len(views)), zap.Int("deadlines", len(ddls)))
	return buf, filename, nil
}

// writeWeekSheet 写入一周的课表网格
func writeWeekSheet(f *excelize.File, sheetName string, v schedule.WeekView, headerStyle, courseStyle int) {
	f.SetColWidth(sheetName, "A", "A", 14)
	f.SetColWidth(sheetName, "B", colName(schedule.DaysPerWeek), 20)

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s（%s 起）", sheetName, v.WeekStart.Format("2006-01-02")))
	f.MergeCell(sheetName, "A1", cell(colName(schedule.DaysPerWeek), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	f.SetCellValue(sheetName, cell("A", row), "时间")
	for col, name := range dayNames {
		f.SetCellValue(sheetName, cell(colName(col+1), row), name)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(schedule.DaysPerWeek), row), headerStyle)

	// 时间格行：第 slot 格位于第 slot+3 行
	for slot := 0; slot < schedule.SlotsPerDay; slot++ {
		f.SetCellValue(sheetName, cell("A", slot+3),
			fmt.Sprintf("%s-%s", schedule.SlotLabel(slot), schedule.SlotLabel(slot+1)))
	}

	// 课程单元格
	for _, c := range v.Cells {
		course := c.Template.Course()
		text := course.Name
		if course.Location != "" {
			text += " (" + course.Location + ")"
		}
		col := colName(c.Column + 1)
		top, bottom := cell(col, c.StartSlot+3), cell(col, c.EndSlot+2)
		f.SetCellValue(sheetName, top, text)
		if bottom != top {
			f.MergeCell(sheetName, top, bottom)
		}
		f.SetCellStyle(sheetName, top, bottom, courseStyle)
	}
}

// writeDeadlineSheet 写入 DDL 列表
func writeDeadlineSheet(f *excelize.File, ddls []schedule.DDlInfo, termStart time.Time, headerStyle int) error {
	if _, err := f.NewSheet(deadlineSheet); err != nil {
		return err
	}
	f.SetColWidth(deadlineSheet, "A", "A", 24)
	f.SetColWidth(deadlineSheet, "B", "B", 20)
	f.SetColWidth(deadlineSheet, "C", "C", 8)
	f.SetColWidth(deadlineSheet, "D", "D", 36)
	f.SetColWidth(deadlineSheet, "E", "E", 8)

	for i, h := range []string{"标题", "截止时间", "周次", "说明", "标记"} {
		f.SetCellValue(deadlineSheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(deadlineSheet, "A1", "E1", headerStyle)

	for i, d := range ddls {
		row := i + 2
		f.SetCellValue(deadlineSheet, cell("A", row), d.Title)
		f.SetCellValue(deadlineSheet, cell("B", row), d.EndTime.In(termStart.Location()).Format("2006-01-02 15:04"))
		f.SetCellValue(deadlineSheet, cell("C", row), schedule.WeekOf(termStart, d.EndTime)+1)
		f.SetCellValue(deadlineSheet, cell("D", row), d.Description)
		f.SetCellValue(deadlineSheet, cell("E", row), d.Flag)
	}
	return nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
