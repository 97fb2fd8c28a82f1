package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"timetable/backend/config"
	"timetable/backend/internal/dto"
	"timetable/backend/internal/repository"
	"timetable/backend/internal/schedule"
	pkgerrors "timetable/backend/pkg/errors"
)

// ── 测试辅助 ──

// 2025-02-24 为周一
var testTermStart = time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Term:     config.TermConfig{StartDate: "2025-02-24T00:00:00Z"},
		Schedule: config.ScheduleConfig{Autosave: true, TermWeeks: 20},
	}
}

// testServices 共享同一个 engine 的三个服务
type testServices struct {
	sched    *scheduleService
	calendar *calendarService
	export   *exportService
	eng      *engine
}

// setupTestServices repo 或 cache 为 nil 时对应功能关闭；返回前已执行 Load
func setupTestServices(t *testing.T, cfg *config.Config, repo *mockScheduleRepo, cache *mockWeekViewCache) *testServices {
	t.Helper()
	termStart, err := cfg.Term.StartTime()
	if err != nil {
		t.Fatalf("学期起点非法: %v", err)
	}

	var agg *repository.Repository
	if repo != nil {
		agg = &repository.Repository{Schedule: repo}
	}
	var c WeekViewCache
	if cache != nil {
		c = cache
	}

	logger := zap.NewNop()
	eng := newEngine(schedule.New(termStart), agg, cfg.Schedule.Autosave, logger)
	ts := &testServices{
		sched:    newScheduleService(cfg, eng, agg, c, logger),
		calendar: newCalendarService(eng, cfg.Schedule.TermWeeks, logger),
		export:   newExportService(eng, cfg.Schedule.TermWeeks, logger),
		eng:      eng,
	}
	ts.sched.now = func() time.Time { return testTermStart.Add(3 * schedule.WeekLength) }
	ts.calendar.now = ts.sched.now

	if _, err := ts.sched.Load(context.Background()); err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	return ts
}

func weekTime(w int) time.Time {
	return testTermStart.Add(time.Duration(w) * schedule.WeekLength)
}

func slot(column, start, end, period int) dto.SlotRequest {
	return dto.SlotRequest{Column: column, StartSlot: start, EndSlot: end, Period: period}
}

// courseReq 有效期为 [start, end) 的课程请求
func courseReq(name string, start, end time.Time, slots ...dto.SlotRequest) *dto.CourseRequest {
	return &dto.CourseRequest{
		Name:      name,
		Location:  "A101",
		StartTime: formatTime(start),
		EndTime:   formatTime(end),
		Slots:     slots,
	}
}

func mustCreate(t *testing.T, svc ScheduleService, req *dto.CourseRequest) *dto.CourseResponse {
	t.Helper()
	resp, err := svc.CreateCourse(context.Background(), req)
	if err != nil {
		t.Fatalf("创建课程 %s 失败: %v", req.Name, err)
	}
	return resp
}

// ── CreateCourse 测试 ──

func TestScheduleService_CreateCourse_Success(t *testing.T) {
	repo := newMockScheduleRepo()
	ts := setupTestServices(t, testConfig(), repo, nil)

	resp := mustCreate(t, ts.sched, courseReq("高等数学", weekTime(0), weekTime(16), slot(0, 16, 19, 0)))

	if resp.ID == "" {
		t.Error("课程 ID 不应为空")
	}
	if len(resp.Templates) != 1 {
		t.Fatalf("期望 1 个时间模板，实际: %d", len(resp.Templates))
	}
	tpl := resp.Templates[0]
	if tpl.Period != 1 {
		t.Errorf("缺省周期应为 1，实际: %d", tpl.Period)
	}
	if tpl.StartWeek != 0 || tpl.EndWeek != 16 {
		t.Errorf("期望周次 [0, 16)，实际: [%d, %d)", tpl.StartWeek, tpl.EndWeek)
	}
	if tpl.StartLabel != "08:00" || tpl.EndLabel != "09:30" {
		t.Errorf("时间标签错误: %s-%s", tpl.StartLabel, tpl.EndLabel)
	}
	if repo.saveCount != 1 {
		t.Errorf("开启自动保存时应落库 1 次，实际: %d", repo.saveCount)
	}
	if len(repo.courses) != 1 || len(repo.courses[0].Slots) != 1 {
		t.Errorf("落库内容不正确: %+v", repo.courses)
	}
}

func TestScheduleService_CreateCourse_Conflict(t *testing.T) {
	repo := newMockScheduleRepo()
	ts := setupTestServices(t, testConfig(), repo, nil)
	ctx := context.Background()

	mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
	_, err := ts.sched.CreateCourse(ctx, courseReq("B", weekTime(0), weekTime(10), slot(0, 3, 5, 1)))
	if !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("期望 ErrConflict，实际: %v", err)
	}

	courses, _ := ts.sched.ListCourses(ctx)
	if len(courses) != 1 {
		t.Errorf("冲突课程不应注册，实际课程数: %d", len(courses))
	}
	if repo.saveCount != 1 {
		t.Errorf("失败的修改不应落库，实际保存次数: %d", repo.saveCount)
	}
}

func TestScheduleService_CreateCourse_AlternatingWeeks(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)

	mustCreate(t, ts.sched, courseReq("单周", weekTime(0), weekTime(10), slot(0, 2, 4, 2)))
	mustCreate(t, ts.sched, courseReq("双周", weekTime(1), weekTime(10), slot(0, 2, 4, 2)))

	courses, _ := ts.sched.ListCourses(context.Background())
	if len(courses) != 2 {
		t.Errorf("单双周交替的课程应共存，实际课程数: %d", len(courses))
	}
}

func TestScheduleService_CreateCourse_InvalidInput(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *dto.CourseRequest
		want error
	}{
		{
			name: "时间格式错误",
			req:  &dto.CourseRequest{Name: "A", StartTime: "2025-02-24", EndTime: formatTime(weekTime(1))},
			want: ErrInvalidTime,
		},
		{
			name: "有效期为空",
			req:  courseReq("A", weekTime(2), weekTime(2), slot(0, 2, 4, 1)),
			want: pkgerrors.ErrInvalidCourse,
		},
		{
			name: "时间格区间为空",
			req:  courseReq("A", weekTime(0), weekTime(2), slot(0, 4, 4, 1)),
			want: pkgerrors.ErrInvalidTemplate,
		},
		{
			name: "课程内部模板互相冲突",
			req:  courseReq("A", weekTime(0), weekTime(2), slot(0, 2, 4, 1), slot(0, 3, 6, 1)),
			want: pkgerrors.ErrConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.sched.CreateCourse(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}

// ── Update / Edit / Delete 测试 ──

func TestScheduleService_UpdateCourse_KeepsID(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	created := mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
	updated, err := ts.sched.UpdateCourse(ctx, created.ID, courseReq("A2", weekTime(0), weekTime(8), slot(3, 10, 12, 1)))
	if err != nil {
		t.Fatalf("UpdateCourse 失败: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("修改后课程 ID 应保持不变: %s != %s", updated.ID, created.ID)
	}
	if updated.Name != "A2" || updated.Templates[0].Column != 3 {
		t.Errorf("修改未生效: %+v", updated)
	}

	cell, _ := ts.sched.GetCell(ctx, &dto.CellQuery{Column: intPtr(0), Slot: intPtr(2), Week: intPtr(1)})
	if cell.Template != nil {
		t.Error("原时间段应已释放")
	}
}

func TestScheduleService_EditCourse(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
	b := mustCreate(t, ts.sched, courseReq("B", weekTime(0), weekTime(10), slot(1, 2, 4, 1)))

	t.Run("修改名称与周期", func(t *testing.T) {
		resp, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpSetName, Value: "B2"},
			{Op: dto.EditOpSetPeriod, Index: 0, IntValue: 2},
			{Op: dto.EditOpAddSlot, Slot: &dto.SlotRequest{Column: 4, StartSlot: 20, EndSlot: 22}},
		}})
		if err != nil {
			t.Fatalf("EditCourse 失败: %v", err)
		}
		if resp.Name != "B2" || len(resp.Templates) != 2 || resp.Templates[0].Period != 2 {
			t.Errorf("编辑结果不正确: %+v", resp)
		}
	})

	t.Run("冲突时保留原课程", func(t *testing.T) {
		_, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpSetColumn, Index: 0, IntValue: 0},
			{Op: dto.EditOpSetPeriod, Index: 0, IntValue: 1},
		}})
		if !errors.Is(err, pkgerrors.ErrConflict) {
			t.Fatalf("期望 ErrConflict，实际: %v", err)
		}
		got, err := ts.sched.GetCourse(ctx, b.ID)
		if err != nil {
			t.Fatalf("原课程应仍然存在: %v", err)
		}
		if got.Name != "B2" || got.Templates[0].Column != 1 {
			t.Errorf("原课程不应被修改: %+v", got)
		}
	})

	t.Run("下标越界", func(t *testing.T) {
		_, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpRemoveSlot, Index: 5},
		}})
		if !errors.Is(err, pkgerrors.ErrSlotIndex) {
			t.Errorf("期望 ErrSlotIndex，实际: %v", err)
		}
	})

	t.Run("add_slot 缺少 slot", func(t *testing.T) {
		_, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpAddSlot},
		}})
		if !errors.Is(err, ErrInvalidEditCommand) {
			t.Errorf("期望 ErrInvalidEditCommand，实际: %v", err)
		}
	})

	t.Run("名称超出列宽", func(t *testing.T) {
		_, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpSetName, Value: strings.Repeat("课", schedule.MaxNameLen+1)},
		}})
		if !errors.Is(err, pkgerrors.ErrInvalidCourse) {
			t.Fatalf("期望 ErrInvalidCourse，实际: %v", err)
		}
		got, _ := ts.sched.GetCourse(ctx, b.ID)
		if got.Name != "B2" {
			t.Errorf("失败的编辑不应修改名称: %q", got.Name)
		}

		// 按字符计数，100 个汉字不超限
		resp, err := ts.sched.EditCourse(ctx, b.ID, &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpSetName, Value: strings.Repeat("课", schedule.MaxNameLen)},
		}})
		if err != nil {
			t.Fatalf("100 个字符的名称应允许: %v", err)
		}
		if utf8.RuneCountInString(resp.Name) != schedule.MaxNameLen {
			t.Errorf("名称长度不正确: %d", utf8.RuneCountInString(resp.Name))
		}
	})

	t.Run("课程不存在", func(t *testing.T) {
		_, err := ts.sched.EditCourse(ctx, "missing", &dto.EditCourseRequest{Commands: []dto.EditCommandRequest{
			{Op: dto.EditOpSetName, Value: "x"},
		}})
		if !errors.Is(err, ErrCourseNotFound) {
			t.Errorf("期望 ErrCourseNotFound，实际: %v", err)
		}
	})
}

func TestScheduleService_DeleteCourse(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	c := mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
	if err := ts.sched.DeleteCourse(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCourse 失败: %v", err)
	}
	if _, err := ts.sched.GetCourse(ctx, c.ID); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("删除后应查不到课程，实际: %v", err)
	}
	if err := ts.sched.DeleteCourse(ctx, c.ID); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("重复删除应返回 ErrCourseNotFound，实际: %v", err)
	}

	// 释放的时间段可以再次使用
	mustCreate(t, ts.sched, courseReq("B", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
}

// ── Template 测试 ──

func TestScheduleService_Templates(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	a := mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))

	tpl, err := ts.sched.AddTemplate(ctx, &dto.CreateTemplateRequest{CourseID: a.ID, SlotRequest: slot(2, 6, 8, 0)})
	if err != nil {
		t.Fatalf("AddTemplate 失败: %v", err)
	}
	if tpl.Period != 1 || tpl.CourseName != "A" {
		t.Errorf("模板信息不正确: %+v", tpl)
	}

	if _, err := ts.sched.AddTemplate(ctx, &dto.CreateTemplateRequest{CourseID: a.ID, SlotRequest: slot(2, 7, 9, 1)}); !errors.Is(err, pkgerrors.ErrConflict) {
		t.Errorf("期望 ErrConflict，实际: %v", err)
	}
	if _, err := ts.sched.AddTemplate(ctx, &dto.CreateTemplateRequest{CourseID: "missing", SlotRequest: slot(5, 7, 9, 1)}); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("期望 ErrCourseNotFound，实际: %v", err)
	}

	all, _ := ts.sched.ListTemplates(ctx, nil)
	if len(all) != 2 {
		t.Errorf("期望 2 个模板，实际: %d", len(all))
	}
	col2, _ := ts.sched.ListTemplates(ctx, intPtr(2))
	if len(col2) != 1 || col2[0].ID != tpl.ID {
		t.Errorf("按列过滤结果不正确: %+v", col2)
	}

	if err := ts.sched.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate 失败: %v", err)
	}
	got, _ := ts.sched.GetCourse(ctx, a.ID)
	if len(got.Templates) != 1 {
		t.Errorf("删除模板后课程应只剩 1 个模板，实际: %d", len(got.Templates))
	}
	if err := ts.sched.DeleteTemplate(ctx, tpl.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("期望 ErrTemplateNotFound，实际: %v", err)
	}
}

// ── Query 测试 ──

func intPtr(v int) *int { return &v }

func TestScheduleService_GetCell(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	a := mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(2, 16, 19, 2)))

	tests := []struct {
		name   string
		q      *dto.CellQuery
		wantID string
	}{
		{"按坐标命中", &dto.CellQuery{Column: intPtr(2), Slot: intPtr(18), Week: intPtr(4)}, a.ID},
		{"非上课周", &dto.CellQuery{Column: intPtr(2), Slot: intPtr(18), Week: intPtr(3)}, ""},
		{"结束格不含", &dto.CellQuery{Column: intPtr(2), Slot: intPtr(19), Week: intPtr(4)}, ""},
		{"按时间点命中", &dto.CellQuery{At: formatTime(schedule.SlotStart(testTermStart, 2, 2, 17))}, a.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ts.sched.GetCell(ctx, tt.q)
			if err != nil {
				t.Fatalf("GetCell 失败: %v", err)
			}
			got := ""
			if resp.Template != nil {
				got = resp.Template.CourseID
			}
			if got != tt.wantID {
				t.Errorf("期望课程 %q，实际 %q", tt.wantID, got)
			}
		})
	}

	if _, err := ts.sched.GetCell(ctx, &dto.CellQuery{Column: intPtr(2)}); !errors.Is(err, ErrInvalidCellQuery) {
		t.Errorf("期望 ErrInvalidCellQuery，实际: %v", err)
	}
}

func TestScheduleService_GetWeekView_Cache(t *testing.T) {
	cache := newMockWeekViewCache()
	ts := setupTestServices(t, testConfig(), nil, cache)
	ctx := context.Background()

	mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))

	first, err := ts.sched.GetWeekView(ctx, 1)
	if err != nil {
		t.Fatalf("GetWeekView 失败: %v", err)
	}
	if len(first.Cells) != 1 || first.Cells[0].StartSlot != 2 || first.Cells[0].EndSlot != 4 {
		t.Fatalf("周视图内容不正确: %+v", first.Cells)
	}
	if _, err := ts.sched.GetWeekView(ctx, 1); err != nil {
		t.Fatalf("GetWeekView 失败: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("第二次查询应命中缓存，实际命中 %d 次", cache.hits)
	}

	// 修改后修订号变化，旧缓存不再命中
	mustCreate(t, ts.sched, courseReq("B", weekTime(0), weekTime(10), slot(1, 2, 4, 1)))
	view, _ := ts.sched.GetWeekView(ctx, 1)
	if cache.hits != 1 {
		t.Errorf("修改后不应命中旧缓存，实际命中 %d 次", cache.hits)
	}
	if len(view.Cells) != 2 {
		t.Errorf("修改后周视图应有 2 段课程，实际: %d", len(view.Cells))
	}
}

// 两个实例（如重启前后或多副本）共用一个缓存，修订号相同也不能读到对方的周视图
func TestScheduleService_GetWeekView_SharedCache(t *testing.T) {
	cache := newMockWeekViewCache()
	ctx := context.Background()

	first := setupTestServices(t, testConfig(), nil, cache)
	mustCreate(t, first.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
	if _, err := first.sched.GetWeekView(ctx, 1); err != nil {
		t.Fatalf("GetWeekView 失败: %v", err)
	}

	second := setupTestServices(t, testConfig(), nil, cache)
	mustCreate(t, second.sched, courseReq("B", weekTime(0), weekTime(10), slot(3, 2, 4, 1)))
	if first.eng.revision != second.eng.revision {
		t.Fatalf("两个实例的修订号应相同: %d vs %d", first.eng.revision, second.eng.revision)
	}

	view, err := second.sched.GetWeekView(ctx, 1)
	if err != nil {
		t.Fatalf("GetWeekView 失败: %v", err)
	}
	if cache.hits != 0 {
		t.Errorf("不应命中另一个实例的缓存，实际命中 %d 次", cache.hits)
	}
	if len(view.Cells) != 1 || view.Cells[0].CourseName != "B" || view.Cells[0].Column != 3 {
		t.Errorf("周视图应只含本实例的课程 B: %+v", view.Cells)
	}
}

// ── Deadline 测试 ──

func TestScheduleService_Deadlines(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	ctx := context.Background()

	req := &dto.DeadlineRequest{Title: "作业一", EndTime: formatTime(weekTime(2).Add(time.Hour)), Flag: 1}
	resp, err := ts.sched.CreateDeadline(ctx, req)
	if err != nil {
		t.Fatalf("CreateDeadline 失败: %v", err)
	}
	if resp.Week != 2 {
		t.Errorf("期望第 2 周，实际: %d", resp.Week)
	}
	if _, err := ts.sched.CreateDeadline(ctx, req); !errors.Is(err, ErrDeadlineExists) {
		t.Errorf("重复 DDL 应返回 ErrDeadlineExists，实际: %v", err)
	}

	other := &dto.DeadlineRequest{Title: "作业二", EndTime: formatTime(weekTime(5))}
	if _, err := ts.sched.CreateDeadline(ctx, other); err != nil {
		t.Fatalf("CreateDeadline 失败: %v", err)
	}

	all, _ := ts.sched.ListDeadlines(ctx, nil)
	if len(all) != 2 || all[0].Title != "作业一" {
		t.Errorf("DDL 应按截止时间升序: %+v", all)
	}
	ranged, _ := ts.sched.ListDeadlines(ctx, &dto.DeadlineQuery{From: formatTime(weekTime(3)), To: formatTime(weekTime(5))})
	if len(ranged) != 0 {
		t.Errorf("[3, 5) 周区间不含右端点，实际: %+v", ranged)
	}
	ranged, _ = ts.sched.ListDeadlines(ctx, &dto.DeadlineQuery{From: formatTime(weekTime(3))})
	if len(ranged) != 1 || ranged[0].Title != "作业二" {
		t.Errorf("区间查询结果不正确: %+v", ranged)
	}

	// 删除需四个字段完全一致
	if err := ts.sched.DeleteDeadline(ctx, &dto.DeadlineRequest{Title: "作业一", EndTime: req.EndTime}); !errors.Is(err, ErrDeadlineNotFound) {
		t.Errorf("flag 不一致时应返回 ErrDeadlineNotFound，实际: %v", err)
	}
	if err := ts.sched.DeleteDeadline(ctx, req); err != nil {
		t.Fatalf("DeleteDeadline 失败: %v", err)
	}
	all, _ = ts.sched.ListDeadlines(ctx, nil)
	if len(all) != 1 {
		t.Errorf("删除后应剩 1 条 DDL，实际: %d", len(all))
	}
}

func TestScheduleService_CreateDeadline_TitleTooLong(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)

	req := &dto.DeadlineRequest{Title: strings.Repeat("题", schedule.MaxDDlTitleLen+1), EndTime: formatTime(weekTime(2))}
	if _, err := ts.sched.CreateDeadline(context.Background(), req); !errors.Is(err, pkgerrors.ErrInvalidDDl) {
		t.Errorf("期望 ErrInvalidDDl，实际: %v", err)
	}
	if all, _ := ts.sched.ListDeadlines(context.Background(), nil); len(all) != 0 {
		t.Errorf("超长标题的 DDL 不应写入: %+v", all)
	}
}

// 数据库只保留微秒，重新加载后仍应能用原请求删除 DDL
func TestScheduleService_DeleteDeadline_AfterReload(t *testing.T) {
	repo := newMockScheduleRepo()
	ctx := context.Background()

	first := setupTestServices(t, testConfig(), repo, nil)
	req := &dto.DeadlineRequest{
		Title:   "实验报告",
		EndTime: weekTime(2).Add(time.Hour + 123456789*time.Nanosecond).Format(time.RFC3339Nano),
	}
	if _, err := first.sched.CreateDeadline(ctx, req); err != nil {
		t.Fatalf("CreateDeadline 失败: %v", err)
	}
	if ns := first.eng.sched.AllDDls()[0].EndTime.Nanosecond(); ns != 123456000 {
		t.Errorf("截止时间应截断到微秒，实际纳秒部分: %d", ns)
	}

	second := setupTestServices(t, testConfig(), repo, nil)
	if err := second.sched.DeleteDeadline(ctx, req); err != nil {
		t.Fatalf("重新加载后删除失败: %v", err)
	}
}

// ── Term 测试 ──

func TestScheduleService_UpdateTerm(t *testing.T) {
	ctx := context.Background()
	// 新起点提前 4 天后，B 的起始周由 1 变为 2，与 A 的双周重合
	newStart := testTermStart.Add(-4 * 24 * time.Hour)

	setup := func(t *testing.T) *testServices {
		ts := setupTestServices(t, testConfig(), nil, nil)
		mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(20), slot(0, 2, 4, 2)))
		mustCreate(t, ts.sched, courseReq("B", weekTime(0).Add(10*24*time.Hour), weekTime(20), slot(0, 2, 4, 2)))
		return ts
	}

	t.Run("存在冲突时整体放弃", func(t *testing.T) {
		ts := setup(t)
		_, err := ts.sched.UpdateTerm(ctx, &dto.UpdateTermRequest{StartTime: formatTime(newStart)})
		if !errors.Is(err, ErrTermConflict) {
			t.Fatalf("期望 ErrTermConflict，实际: %v", err)
		}
		term, _ := ts.sched.GetTerm(ctx)
		if term.StartTime != formatTime(testTermStart) || term.Courses != 2 {
			t.Errorf("学期应保持不变: %+v", term)
		}
	})

	t.Run("强制修改丢弃冲突课程", func(t *testing.T) {
		ts := setup(t)
		resp, err := ts.sched.UpdateTerm(ctx, &dto.UpdateTermRequest{StartTime: formatTime(newStart), Force: true})
		if err != nil {
			t.Fatalf("UpdateTerm 失败: %v", err)
		}
		if len(resp.Rejected) != 1 || resp.Rejected[0].Name != "B" {
			t.Errorf("期望丢弃 B，实际: %+v", resp.Rejected)
		}
		if resp.Term.StartTime != formatTime(newStart) || resp.Term.Courses != 1 {
			t.Errorf("学期信息不正确: %+v", resp.Term)
		}
	})

	t.Run("时间格式错误", func(t *testing.T) {
		ts := setup(t)
		if _, err := ts.sched.UpdateTerm(ctx, &dto.UpdateTermRequest{StartTime: "tomorrow"}); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("期望 ErrInvalidTime，实际: %v", err)
		}
	})
}

func TestScheduleService_GetTerm_CurrentWeek(t *testing.T) {
	ts := setupTestServices(t, testConfig(), nil, nil)
	term, _ := ts.sched.GetTerm(context.Background())
	if term.CurrentWeek != 3 {
		t.Errorf("期望当前为第 3 周，实际: %d", term.CurrentWeek)
	}
}

// ── Load / Save 测试 ──

func TestScheduleService_Load_RoundTrip(t *testing.T) {
	repo := newMockScheduleRepo()
	ctx := context.Background()

	first := setupTestServices(t, testConfig(), repo, nil)
	a := mustCreate(t, first.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1), slot(3, 10, 12, 2)))
	b := mustCreate(t, first.sched, courseReq("B", weekTime(1), weekTime(12), slot(1, 2, 4, 1)))
	if _, err := first.sched.CreateDeadline(ctx, &dto.DeadlineRequest{Title: "作业", EndTime: formatTime(weekTime(3)), Flag: 2}); err != nil {
		t.Fatalf("CreateDeadline 失败: %v", err)
	}

	second := setupTestServices(t, testConfig(), repo, nil)
	load, err := second.sched.Load(ctx)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if load.Source != "database" || load.Courses != 2 || load.Templates != 3 || load.Deadlines != 1 {
		t.Errorf("加载结果不正确: %+v", load)
	}

	courses, _ := second.sched.ListCourses(ctx)
	if len(courses) != 2 || courses[0].ID != a.ID || courses[1].ID != b.ID {
		t.Fatalf("应按注册顺序恢复课程: %+v", courses)
	}
	for i, tpl := range courses[0].Templates {
		if tpl.ID != a.Templates[i].ID || tpl.Column != a.Templates[i].Column || tpl.Period != a.Templates[i].Period {
			t.Errorf("模板 %d 恢复不一致: %+v != %+v", i, tpl, a.Templates[i])
		}
	}
	ddls, _ := second.sched.ListDeadlines(ctx, nil)
	if len(ddls) != 1 || ddls[0].Flag != 2 {
		t.Errorf("DDL 恢复不一致: %+v", ddls)
	}
}

// 加载时因冲突被拒绝的课程不能被下一次自动保存删掉
func TestScheduleService_Load_KeepsRejectedOnSave(t *testing.T) {
	repo := newMockScheduleRepo()
	ctx := context.Background()

	a, _ := schedule.NewCourse("A", weekTime(0), weekTime(10), "", "")
	a.AddSlot(0, 2, 4, 1)
	b, _ := schedule.NewCourse("B", weekTime(0), weekTime(10), "", "")
	b.AddSlot(0, 3, 5, 1) // 与 A 冲突，例如手工改过数据库
	term, courses, _ := snapshotToModels(schedule.Snapshot{TermStart: testTermStart, Courses: []*schedule.CourseInfo{a, b}})
	repo.ReplaceAll(ctx, &term, courses, nil)

	ts := setupTestServices(t, testConfig(), repo, nil)
	load, err := ts.sched.Load(ctx)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if len(load.Rejected) != 1 || load.Rejected[0] != "B" {
		t.Fatalf("B 应被拒绝: %+v", load.Rejected)
	}

	// 触发自动保存
	mustCreate(t, ts.sched, courseReq("C", weekTime(0), weekTime(10), slot(1, 2, 4, 1)))

	ids := make(map[string]bool)
	for _, rec := range repo.courses {
		ids[rec.CourseID] = true
	}
	if len(repo.courses) != 3 || !ids[b.ID()] {
		t.Errorf("被拒绝的课程应原样写回: %d 条记录", len(repo.courses))
	}
	if listed, _ := ts.sched.ListCourses(ctx); len(listed) != 2 {
		t.Errorf("被拒绝的课程不应出现在课表中，实际: %d", len(listed))
	}
}

func TestScheduleService_Load_EmptyDatabase(t *testing.T) {
	repo := newMockScheduleRepo()
	ts := setupTestServices(t, testConfig(), repo, nil)

	load, err := ts.sched.Load(context.Background())
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if load.Source != "config" || load.Courses != 0 {
		t.Errorf("空库时应使用配置中的学期: %+v", load)
	}
}

func TestScheduleService_Load_RepoError(t *testing.T) {
	repo := newMockScheduleRepo()
	ts := setupTestServices(t, testConfig(), repo, nil)

	repo.loadErr = errors.New("connection refused")
	if _, err := ts.sched.Load(context.Background()); err == nil {
		t.Error("读取失败时 Load 应返回错误")
	}
}

func TestScheduleService_Load_TestData(t *testing.T) {
	cfg := testConfig()
	cfg.TestData = config.TestDataConfig{
		Enabled:        true,
		Seed:           42,
		CourseTryCount: 20,
		DDlCount:       5,
		TotalWeeks:     18,
		MaxSlot:        40,
	}
	repo := newMockScheduleRepo()
	ts := setupTestServices(t, cfg, repo, nil)
	ctx := context.Background()

	load, err := ts.sched.Load(ctx)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if load.Source != "test_data" || load.Courses == 0 || load.Deadlines != 5 {
		t.Errorf("测试数据生成结果不正确: %+v", load)
	}

	if err := ts.sched.Save(ctx); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("测试数据模式下 Save 应返回 ErrPersistenceDisabled，实际: %v", err)
	}
	if _, err := ts.sched.CreateDeadline(ctx, &dto.DeadlineRequest{Title: "x", EndTime: formatTime(weekTime(1))}); err != nil {
		t.Fatalf("CreateDeadline 失败: %v", err)
	}
	if repo.saveCount != 0 {
		t.Errorf("测试数据模式下不应落库，实际保存次数: %d", repo.saveCount)
	}
}

func TestScheduleService_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("无数据库", func(t *testing.T) {
		ts := setupTestServices(t, testConfig(), nil, nil)
		if err := ts.sched.Save(ctx); !errors.Is(err, ErrPersistenceDisabled) {
			t.Errorf("期望 ErrPersistenceDisabled，实际: %v", err)
		}
	})

	t.Run("自动保存失败不回滚", func(t *testing.T) {
		repo := newMockScheduleRepo()
		ts := setupTestServices(t, testConfig(), repo, nil)
		repo.saveErr = errors.New("disk full")

		c := mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
		if _, err := ts.sched.GetCourse(ctx, c.ID); err != nil {
			t.Errorf("保存失败不应影响内存中的课表: %v", err)
		}
		if err := ts.sched.Save(ctx); err == nil {
			t.Error("手动保存应返回仓库错误")
		}

		repo.saveErr = nil
		if err := ts.sched.Save(ctx); err != nil {
			t.Fatalf("Save 失败: %v", err)
		}
		if len(repo.courses) != 1 {
			t.Errorf("手动保存后应有 1 门课程落库，实际: %d", len(repo.courses))
		}
	})

	t.Run("关闭自动保存", func(t *testing.T) {
		cfg := testConfig()
		cfg.Schedule.Autosave = false
		repo := newMockScheduleRepo()
		ts := setupTestServices(t, cfg, repo, nil)

		mustCreate(t, ts.sched, courseReq("A", weekTime(0), weekTime(10), slot(0, 2, 4, 1)))
		if repo.saveCount != 0 {
			t.Errorf("关闭自动保存时不应落库，实际: %d", repo.saveCount)
		}
		if err := ts.sched.Save(ctx); err != nil || repo.saveCount != 1 {
			t.Errorf("手动保存失败: err=%v count=%d", err, repo.saveCount)
		}
	})
}
