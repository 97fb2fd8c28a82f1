package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"timetable/backend/internal/dto"
	"timetable/backend/internal/model"
)

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct {
	term      *model.Term
	courses   []model.Course
	deadlines []model.Deadline

	saveCount int
	saveErr   error // 非 nil 时 ReplaceAll 返回该错误
	loadErr   error // 非 nil 时 ListCourses 返回该错误
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{}
}

func (m *mockScheduleRepo) LoadTerm(_ context.Context) (*model.Term, error) {
	if m.term == nil {
		return nil, gorm.ErrRecordNotFound
	}
	t := *m.term
	return &t, nil
}

func (m *mockScheduleRepo) ListCourses(_ context.Context) ([]model.Course, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		c.Slots = append([]model.CourseSlot(nil), c.Slots...)
		out = append(out, c)
	}
	return out, nil
}

func (m *mockScheduleRepo) ListDeadlines(_ context.Context) ([]model.Deadline, error) {
	return append([]model.Deadline(nil), m.deadlines...), nil
}

func (m *mockScheduleRepo) ReplaceAll(_ context.Context, term *model.Term, courses []model.Course, deadlines []model.Deadline) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	t := *term
	t.TermID = 1
	m.term = &t
	// 与 TIMESTAMPTZ 一样只保留到微秒
	m.courses = make([]model.Course, 0, len(courses))
	for _, c := range courses {
		c.StartTime = c.StartTime.Truncate(time.Microsecond)
		c.EndTime = c.EndTime.Truncate(time.Microsecond)
		m.courses = append(m.courses, c)
	}
	m.deadlines = make([]model.Deadline, 0, len(deadlines))
	for _, d := range deadlines {
		d.EndTime = d.EndTime.Truncate(time.Microsecond)
		m.deadlines = append(m.deadlines, d)
	}
	m.saveCount++
	return nil
}

// ── Mock WeekViewCache ──

type mockWeekViewCache struct {
	entries map[string]dto.WeekViewResponse
	hits    int
	sets    int
}

func newMockWeekViewCache() *mockWeekViewCache {
	return &mockWeekViewCache{entries: make(map[string]dto.WeekViewResponse)}
}

func cacheKey(instance string, revision uint64, week int) string {
	return fmt.Sprintf("%s:%d:%d", instance, revision, week)
}

func (m *mockWeekViewCache) GetWeekView(_ context.Context, instance string, revision uint64, week int, dst interface{}) (bool, error) {
	v, ok := m.entries[cacheKey(instance, revision, week)]
	if !ok {
		return false, nil
	}
	m.hits++
	*dst.(*dto.WeekViewResponse) = v
	return true, nil
}

func (m *mockWeekViewCache) SetWeekView(_ context.Context, instance string, revision uint64, week int, v interface{}) error {
	m.entries[cacheKey(instance, revision, week)] = *v.(*dto.WeekViewResponse)
	m.sets++
	return nil
}
