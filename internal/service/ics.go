package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"timetable/backend/internal/dto"
	"timetable/backend/internal/schedule"
)

// ── ICS 导入导出 ──────────────────────────────────────────────
//
// 导入：
//   - DTSTART/DTEND（或 DURATION）确定列与时间格区间
//   - RRULE（FREQ=WEEKLY;INTERVAL;COUNT|UNTIL）与 EXDATE 展开为学期周次
//   - 合并同名、同地点、同列、同时间格事件的周次，再按等差段拆成课程（周期 = 公差）
//   - 零时长事件按 DDL 导入
//
// 导出：每个时间模板一个带 RRULE 的事件，每条 DDL 一个零时长事件。
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize    = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout   = 30 * time.Second
	icsMaxOccurrences = 520
	icsCalendarName   = "课表"
	icsFlagProperty   = ics.ComponentProperty("X-TIMETABLE-FLAG")
)

var (
	ErrICSParse = errors.New("ICS 格式解析失败")
	ErrICSFetch = errors.New("获取 ICS 失败")
)

// CalendarService iCalendar 导入导出接口
type CalendarService interface {
	ImportICS(ctx context.Context, r io.Reader) (*dto.ImportICSResponse, error)
	ImportICSFromURL(ctx context.Context, rawURL string) (*dto.ImportICSResponse, error)
	// ExportICS 返回 ICS 内容与建议文件名
	ExportICS(ctx context.Context) ([]byte, string, error)
}

type calendarService struct {
	eng       *engine
	termWeeks int
	client    *http.Client
	now       func() time.Time
	logger    *zap.Logger
}

func newCalendarService(eng *engine, termWeeks int, logger *zap.Logger) *calendarService {
	return &calendarService{
		eng:       eng,
		termWeeks: termWeeks,
		client:    &http.Client{Timeout: icsFetchTimeout},
		now:       time.Now,
		logger:    logger,
	}
}

// parsedEvent ICS 解析中间结构
type parsedEvent struct {
	Name        string
	Location    string
	Description string
	Column      int
	StartSlot   int
	EndSlot     int
	Weeks       []int
}

// weekRun 等差周次段：first, first+step, ..., last
type weekRun struct {
	first, last, step int
}

// ════════════════════════ 导入 ════════════════════════

func (s *calendarService) ImportICSFromURL(ctx context.Context, rawURL string) (*dto.ImportICSResponse, error) {
	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.logger.Warn("获取 ICS 失败", zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}
	defer body.Close()
	return s.ImportICS(ctx, body)
}

// fetch 从 URL 获取 ICS 内容，webcal:// 按 https:// 处理
func (s *calendarService) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrICSFetch, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrICSFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrICSFetch, resp.StatusCode)
	}
	// 限制响应体大小
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

func (s *calendarService) ImportICS(ctx context.Context, r io.Reader) (*dto.ImportICSResponse, error) {
	cal, err := ics.ParseCalendar(io.LimitReader(r, icsMaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrICSParse, err)
	}

	resp := &dto.ImportICSResponse{
		Imported: []dto.CourseResponse{},
		Skipped:  []dto.ImportSkipped{},
	}
	skip := func(name, reason string) {
		resp.Skipped = append(resp.Skipped, dto.ImportSkipped{Name: name, Reason: reason})
	}

	_ = s.eng.update(ctx, func(sched *schedule.Schedule) error {
		termStart := sched.TermStart()
		loc := termStart.Location()

		// 阶段 1: 解析所有 VEVENT
		var events []parsedEvent
		for _, evt := range cal.Events() {
			name := propValue(evt, ics.ComponentPropertySummary)
			if name == "" {
				skip("", "缺少 SUMMARY")
				continue
			}
			start, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
			if err != nil {
				skip(name, "DTSTART 无法解析")
				continue
			}
			end, err := eventEnd(evt, start, loc)
			if err != nil {
				skip(name, err.Error())
				continue
			}

			if end.Equal(start) {
				d := schedule.DDlInfo{
					Title:       name,
					EndTime:     start,
					Description: propValue(evt, ics.ComponentPropertyDescription),
				}
				if flag := propValue(evt, icsFlagProperty); flag != "" {
					d.Flag, _ = strconv.Atoi(flag)
				}
				if err := d.Validate(); err != nil {
					skip(name, err.Error())
					continue
				}
				if sched.AddDDl(d) {
					resp.DeadlinesImported++
				} else {
					skip(name, "DDL 已存在")
				}
				continue
			}
			if end.Before(start) {
				skip(name, "DTEND 早于 DTSTART")
				continue
			}

			weeks := s.computeWeeks(evt, start, termStart, loc)
			if len(weeks) == 0 {
				skip(name, "不在学期范围内")
				continue
			}

			week, column, startSlot := schedule.Locate(termStart, start)
			events = append(events, parsedEvent{
				Name:        name,
				Location:    propValue(evt, ics.ComponentPropertyLocation),
				Description: propValue(evt, ics.ComponentPropertyDescription),
				Column:      column,
				StartSlot:   startSlot,
				EndSlot:     endSlotOf(termStart, week, column, startSlot, end),
				Weeks:       weeks,
			})
		}

		// 阶段 2: 合并周次并按等差段生成课程
		for _, evt := range mergeEvents(events) {
			for _, run := range splitRuns(evt.Weeks) {
				c, err := schedule.NewCourse(evt.Name,
					schedule.SlotStart(termStart, run.first, 0, 0),
					schedule.SlotStart(termStart, run.last+1, 0, 0),
					evt.Location, evt.Description)
				if err != nil {
					skip(evt.Name, err.Error())
					continue
				}
				if _, err := c.AddSlot(evt.Column, evt.StartSlot, evt.EndSlot, run.step); err != nil {
					skip(evt.Name, err.Error())
					continue
				}
				if !sched.AddCourse(c) {
					skip(evt.Name, "与已有课程时间冲突")
					continue
				}
				resp.Imported = append(resp.Imported, toCourseResponse(c, termStart))
			}
		}
		return nil
	})

	resp.ImportedCount = len(resp.Imported)
	s.logger.Info("ICS 导入完成",
		zap.Int("courses", resp.ImportedCount),
		zap.Int("deadlines", resp.DeadlinesImported),
		zap.Int("skipped", len(resp.Skipped)),
	)
	return resp, nil
}

// computeWeeks 根据 RRULE / EXDATE / 单次事件计算学期周次（从 0 开始）
// 无 COUNT 与 UNTIL 的重复规则截止到学期末
func (s *calendarService) computeWeeks(evt *ics.VEvent, start, termStart time.Time, loc *time.Location) []int {
	single := func() []int {
		if wk := schedule.WeekOf(termStart, start); wk >= 0 {
			return []int{wk}
		}
		return nil
	}

	rruleProp := evt.GetProperty(ics.ComponentPropertyRrule)
	if rruleProp == nil {
		return single()
	}
	rule := parseRRule(rruleProp.Value)
	if rule.freq != "WEEKLY" {
		return single()
	}

	exDates := parseExDates(evt, loc)
	interval := max(rule.interval, 1)
	openEnded := rule.count == 0 && rule.until.IsZero()

	var weeks []int
	current := start
	for i := 0; i < icsMaxOccurrences; i++ {
		if rule.count > 0 && i >= rule.count {
			break
		}
		if !rule.until.IsZero() && current.After(rule.until) {
			break
		}
		wk := schedule.WeekOf(termStart, current)
		if openEnded && wk >= s.termWeeks {
			break
		}
		if wk >= 0 && !exDates[current.In(loc).Format("20060102")] {
			weeks = append(weeks, wk)
		}
		current = current.AddDate(0, 0, 7*interval)
	}
	return weeks
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=WEEKLY;COUNT=16;INTERVAL=2）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				r.interval = n
			}
		case "COUNT":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				r.count = n
			}
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		}
	}
	return r
}

// parseExDates 解析事件中所有 EXDATE（可逗号分隔多个）
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, v := range strings.Split(prop.Value, ",") {
			t, err := time.Parse("20060102T150405Z", v)
			if err != nil {
				t, err = time.ParseInLocation("20060102T150405", v, loc)
				if err != nil {
					t, err = time.ParseInLocation("20060102", v, loc)
				}
			}
			if err == nil {
				exDates[t.In(loc).Format("20060102")] = true
			}
		}
	}
	return exDates
}

// mergeEvents 合并同一课程事件的周次
func mergeEvents(events []parsedEvent) []parsedEvent {
	type key struct {
		Name      string
		Location  string
		Column    int
		StartSlot int
		EndSlot   int
	}
	merged := make(map[key]*parsedEvent)
	order := []key{}

	for _, e := range events {
		k := key{Name: e.Name, Location: e.Location, Column: e.Column, StartSlot: e.StartSlot, EndSlot: e.EndSlot}
		if existing, ok := merged[k]; ok {
			existing.Weeks = append(existing.Weeks, e.Weeks...)
		} else {
			cp := e
			cp.Weeks = append([]int(nil), e.Weeks...)
			merged[k] = &cp
			order = append(order, k)
		}
	}

	result := make([]parsedEvent, 0, len(merged))
	for _, k := range order {
		result = append(result, *merged[k])
	}
	return result
}

// splitRuns 将周次排序去重后贪心切分为等差段
func splitRuns(weeks []int) []weekRun {
	sorted := append([]int(nil), weeks...)
	sort.Ints(sorted)
	uniq := sorted[:0]
	for i, w := range sorted {
		if i == 0 || w != sorted[i-1] {
			uniq = append(uniq, w)
		}
	}

	var runs []weekRun
	for i := 0; i < len(uniq); {
		if i == len(uniq)-1 {
			runs = append(runs, weekRun{first: uniq[i], last: uniq[i], step: 1})
			break
		}
		step := uniq[i+1] - uniq[i]
		j := i + 1
		for j+1 < len(uniq) && uniq[j+1]-uniq[j] == step {
			j++
		}
		runs = append(runs, weekRun{first: uniq[i], last: uniq[j], step: step})
		i = j + 1
	}
	return runs
}

// ── 辅助函数 ──

func propValue(evt *ics.VEvent, prop ics.ComponentProperty) string {
	p := evt.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// endSlotOf 结束时间向上取整到时间格；跨天的事件截断到当天结束
func endSlotOf(termStart time.Time, week, column, startSlot int, end time.Time) int {
	dayStart := schedule.SlotStart(termStart, week, column, 0)
	slots := int((end.Sub(dayStart) + schedule.SlotLength - 1) / schedule.SlotLength)
	return min(max(slots, startSlot+1), schedule.SlotsPerDay)
}

// eventEnd DTEND 优先，其次 DURATION；两者都没有时视为零时长
func eventEnd(evt *ics.VEvent, start time.Time, loc *time.Location) (time.Time, error) {
	if evt.GetProperty(ics.ComponentPropertyDtEnd) != nil {
		end, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
		if err != nil {
			return time.Time{}, errors.New("DTEND 无法解析")
		}
		return end, nil
	}
	if dur := propValue(evt, ics.ComponentPropertyDuration); dur != "" {
		d, err := parseICSDuration(dur)
		if err != nil {
			return time.Time{}, errors.New("DURATION 无法解析")
		}
		return start.Add(d), nil
	}
	return start, nil
}

var icsDurationPattern = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseICSDuration 解析 RFC 5545 DURATION（如 PT1H30M、P1D）
func parseICSDuration(v string) (time.Duration, error) {
	m := icsDurationPattern.FindStringSubmatch(strings.ToUpper(v))
	if m == nil || v == "P" || v == "PT" {
		return 0, fmt.Errorf("无法解析时长: %s", v)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+2])
		d += time.Duration(n) * unit
	}
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性；无时区的浮动时间按 loc 解释
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		t, err := time.Parse(layout, val)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "Z") {
			return t.In(loc), nil
		}
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), nil
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %s", val)
}

// ════════════════════════ 导出 ════════════════════════

func (s *calendarService) ExportICS(_ context.Context) ([]byte, string, error) {
	cal := ics.NewCalendarFor("timetable")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(icsCalendarName)
	now := s.now()

	var events, deadlines int
	_ = s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		termStart := sched.TermStart()
		for _, c := range sched.Courses() {
			for _, t := range c.Templates() {
				startWeek, endWeek := t.StartWeek(termStart), t.EndWeek(termStart)
				if startWeek >= endWeek {
					continue
				}
				count := (endWeek - startWeek + t.Period() - 1) / t.Period()

				evt := cal.AddEvent(t.ID() + "@timetable")
				evt.SetDtStampTime(now)
				evt.SetStartAt(schedule.SlotStart(termStart, startWeek, t.Column(), t.StartSlot()))
				evt.SetEndAt(schedule.SlotStart(termStart, startWeek, t.Column(), t.EndSlot()))
				evt.SetSummary(c.Name)
				if c.Location != "" {
					evt.SetLocation(c.Location)
				}
				if c.Description != "" {
					evt.SetDescription(c.Description)
				}
				evt.AddRrule(fmt.Sprintf("FREQ=WEEKLY;INTERVAL=%d;COUNT=%d", t.Period(), count))
				events++
			}
		}

		for i, d := range sched.AllDDls() {
			evt := cal.AddEvent(fmt.Sprintf("ddl-%d-%d@timetable", d.EndTime.Unix(), i))
			evt.SetDtStampTime(now)
			evt.SetStartAt(d.EndTime)
			evt.SetEndAt(d.EndTime)
			evt.SetSummary(d.Title)
			if d.Description != "" {
				evt.SetDescription(d.Description)
			}
			evt.SetProperty(icsFlagProperty, strconv.Itoa(d.Flag))
			deadlines++
		}
		return nil
	})

	s.logger.Info("ICS 导出完成", zap.Int("events", events), zap.Int("deadlines", deadlines))
	return []byte(cal.Serialize()), "timetable.ics", nil
}
