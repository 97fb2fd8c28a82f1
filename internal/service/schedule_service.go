package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"timetable/backend/config"
	"timetable/backend/internal/dto"
	"timetable/backend/internal/repository"
	"timetable/backend/internal/schedule"
	pkgerrors "timetable/backend/pkg/errors"
)

// ── 课表模块业务错误 ──

var (
	ErrCourseNotFound      = errors.New("课程不存在")
	ErrTemplateNotFound    = errors.New("时间模板不存在")
	ErrDeadlineNotFound    = errors.New("DDL 不存在")
	ErrDeadlineExists      = errors.New("完全相同的 DDL 已存在")
	ErrInvalidTime         = errors.New("时间格式错误，应为 RFC3339")
	ErrInvalidCellQuery    = errors.New("需提供 at，或同时提供 column、slot、week")
	ErrInvalidEditCommand  = errors.New("编辑命令非法")
	ErrTermConflict        = errors.New("新学期起点下存在冲突课程")
	ErrPersistenceDisabled = errors.New("测试数据模式下不保存课表")
)

// farFuture DDL 查询未给出上界时使用
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// WeekViewCache 周视图缓存（pkg/redis 实现）
type WeekViewCache interface {
	GetWeekView(ctx context.Context, instance string, revision uint64, week int, dst interface{}) (bool, error)
	SetWeekView(ctx context.Context, instance string, revision uint64, week int, v interface{}) error
}

// ScheduleService 课表业务接口
type ScheduleService interface {
	// Load 启动时加载课表：测试数据模式下随机生成，否则从数据库读取
	Load(ctx context.Context) (*dto.LoadResponse, error)
	Save(ctx context.Context) error

	GetTerm(ctx context.Context) (*dto.TermResponse, error)
	UpdateTerm(ctx context.Context, req *dto.UpdateTermRequest) (*dto.UpdateTermResponse, error)

	ListCourses(ctx context.Context) ([]dto.CourseResponse, error)
	GetCourse(ctx context.Context, id string) (*dto.CourseResponse, error)
	CreateCourse(ctx context.Context, req *dto.CourseRequest) (*dto.CourseResponse, error)
	UpdateCourse(ctx context.Context, id string, req *dto.CourseRequest) (*dto.CourseResponse, error)
	EditCourse(ctx context.Context, id string, req *dto.EditCourseRequest) (*dto.CourseResponse, error)
	DeleteCourse(ctx context.Context, id string) error

	ListTemplates(ctx context.Context, column *int) ([]dto.TemplateResponse, error)
	AddTemplate(ctx context.Context, req *dto.CreateTemplateRequest) (*dto.TemplateResponse, error)
	DeleteTemplate(ctx context.Context, id string) error

	GetCell(ctx context.Context, q *dto.CellQuery) (*dto.CellResponse, error)
	GetWeekView(ctx context.Context, week int) (*dto.WeekViewResponse, error)

	ListDeadlines(ctx context.Context, q *dto.DeadlineQuery) ([]dto.DeadlineResponse, error)
	CreateDeadline(ctx context.Context, req *dto.DeadlineRequest) (*dto.DeadlineResponse, error)
	DeleteDeadline(ctx context.Context, req *dto.DeadlineRequest) error
}

type scheduleService struct {
	cfg    *config.Config
	eng    *engine
	repo   *repository.Repository
	cache  WeekViewCache // 可为 nil
	now    func() time.Time
	logger *zap.Logger
}

func newScheduleService(cfg *config.Config, eng *engine, repo *repository.Repository, cache WeekViewCache, logger *zap.Logger) *scheduleService {
	return &scheduleService{
		cfg:    cfg,
		eng:    eng,
		repo:   repo,
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}
}

// ────────────────────── Load / Save ──────────────────────

func (s *scheduleService) Load(ctx context.Context) (*dto.LoadResponse, error) {
	termStart, err := s.cfg.Term.StartTime()
	if err != nil {
		return nil, err
	}

	if s.cfg.TestData.Enabled {
		return s.loadTestData(termStart)
	}

	if s.repo == nil {
		return s.rebuild("config", termStart, nil, nil), nil
	}

	source := "database"
	term, err := s.repo.Schedule.LoadTerm(ctx)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		source = "config"
	case err != nil:
		s.logger.Error("读取学期失败", zap.Error(err))
		return nil, err
	default:
		termStart = term.StartTime
	}

	records, err := s.repo.Schedule.ListCourses(ctx)
	if err != nil {
		s.logger.Error("读取课程失败", zap.Error(err))
		return nil, err
	}
	deadlineRecords, err := s.repo.Schedule.ListDeadlines(ctx)
	if err != nil {
		s.logger.Error("读取 DDL 失败", zap.Error(err))
		return nil, err
	}

	courses := make([]*schedule.CourseInfo, 0, len(records))
	for _, rec := range records {
		c, err := courseFromModel(rec)
		if err != nil {
			s.logger.Warn("跳过非法课程记录", zap.String("course_id", rec.CourseID), zap.Error(err))
			continue
		}
		courses = append(courses, c)
	}
	ddls := make([]schedule.DDlInfo, 0, len(deadlineRecords))
	for _, rec := range deadlineRecords {
		ddls = append(ddls, deadlineFromModel(rec))
	}

	return s.rebuild(source, termStart, courses, ddls), nil
}

// rebuild 以加载到的数据重建索引。不触发自动保存：加载结果与库中一致。
func (s *scheduleService) rebuild(source string, termStart time.Time, courses []*schedule.CourseInfo, ddls []schedule.DDlInfo) *dto.LoadResponse {
	resp := &dto.LoadResponse{Source: source}

	s.eng.mu.Lock()
	s.eng.parked = s.eng.sched.Rebuild(termStart, courses, ddls)
	for _, c := range s.eng.parked {
		resp.Rejected = append(resp.Rejected, c.Name)
	}
	s.eng.revision++
	st := s.eng.sched.Stats()
	s.eng.mu.Unlock()

	resp.Courses, resp.Templates, resp.Deadlines = st.Courses, st.Templates, st.DDls
	if len(resp.Rejected) > 0 {
		s.logger.Warn("加载时有课程因冲突被拒绝，保存时原样保留", zap.Strings("courses", resp.Rejected))
	}
	s.logger.Info("课表加载完成",
		zap.String("source", source),
		zap.Time("term_start", termStart),
		zap.Int("courses", resp.Courses),
		zap.Int("deadlines", resp.Deadlines),
	)
	return resp
}

func (s *scheduleService) loadTestData(termStart time.Time) (*dto.LoadResponse, error) {
	td := s.cfg.TestData
	seed := td.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	s.eng.persist = false
	s.eng.parked = nil
	s.eng.sched.Rebuild(termStart, nil, nil)
	res, err := schedule.Generate(s.eng.sched, schedule.TestDataConfig{
		CourseTryCount: td.CourseTryCount,
		DDlCount:       td.DDlCount,
		TotalWeeks:     td.TotalWeeks,
		MaxSlot:        td.MaxSlot,
	}, rng)
	if err != nil {
		return nil, err
	}
	s.eng.revision++

	st := s.eng.sched.Stats()
	s.logger.Info("已生成测试数据",
		zap.Int64("seed", seed),
		zap.Int("courses_added", res.CoursesAdded),
		zap.Int("courses_rejected", res.CoursesRejected),
		zap.Int("ddls_added", res.DDlsAdded),
	)
	return &dto.LoadResponse{
		Source:    "test_data",
		Courses:   st.Courses,
		Templates: st.Templates,
		Deadlines: st.DDls,
	}, nil
}

func (s *scheduleService) Save(ctx context.Context) error {
	if err := s.eng.save(ctx); err != nil {
		if !errors.Is(err, ErrPersistenceDisabled) {
			s.logger.Error("保存课表失败", zap.Error(err))
		}
		return err
	}
	return nil
}

// ────────────────────── Term ──────────────────────

func (s *scheduleService) termResponse(sched *schedule.Schedule, revision uint64) dto.TermResponse {
	st := sched.Stats()
	return dto.TermResponse{
		StartTime:   formatTime(sched.TermStart()),
		CurrentWeek: sched.Week(s.now()),
		Courses:     st.Courses,
		Templates:   st.Templates,
		Deadlines:   st.DDls,
		Revision:    revision,
	}
}

func (s *scheduleService) GetTerm(_ context.Context) (*dto.TermResponse, error) {
	var resp dto.TermResponse
	_ = s.eng.view(func(sched *schedule.Schedule, revision uint64) error {
		resp = s.termResponse(sched, revision)
		return nil
	})
	return &resp, nil
}

func (s *scheduleService) UpdateTerm(ctx context.Context, req *dto.UpdateTermRequest) (*dto.UpdateTermResponse, error) {
	start, err := parseTime("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}

	var rejected []*schedule.CourseInfo
	err = s.eng.update(ctx, func(sched *schedule.Schedule) error {
		snap := sched.Snapshot()
		rejected = sched.Rebuild(start, snap.Courses, snap.DDls)
		if len(rejected) > 0 && !req.Force {
			// 原课程集合在原起点下互不冲突，按原顺序重建必然全部成功
			sched.Rebuild(snap.TermStart, snap.Courses, snap.DDls)
			names := make([]string, 0, len(rejected))
			for _, c := range rejected {
				names = append(names, c.Name)
			}
			return fmt.Errorf("%w: %s", ErrTermConflict, strings.Join(names, "、"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.UpdateTermResponse{}
	_ = s.eng.view(func(sched *schedule.Schedule, revision uint64) error {
		resp.Term = s.termResponse(sched, revision)
		resp.Rejected = toCourseResponses(rejected, sched.TermStart())
		return nil
	})
	s.logger.Info("学期起点已更新",
		zap.Time("start_time", start),
		zap.Int("rejected", len(rejected)),
	)
	return resp, nil
}

// ────────────────────── Course ──────────────────────

func (s *scheduleService) ListCourses(_ context.Context) ([]dto.CourseResponse, error) {
	var out []dto.CourseResponse
	_ = s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		out = toCourseResponses(sched.Courses(), sched.TermStart())
		return nil
	})
	return out, nil
}

func (s *scheduleService) GetCourse(_ context.Context, id string) (*dto.CourseResponse, error) {
	var resp *dto.CourseResponse
	err := s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		c := sched.Course(id)
		if c == nil {
			return ErrCourseNotFound
		}
		r := toCourseResponse(c, sched.TermStart())
		resp = &r
		return nil
	})
	return resp, err
}

func (s *scheduleService) CreateCourse(ctx context.Context, req *dto.CourseRequest) (*dto.CourseResponse, error) {
	cmds, err := courseCommands(req)
	if err != nil {
		return nil, err
	}
	sess := schedule.NewEditSession(time.Time{}, time.Time{})
	if err := sess.Apply(cmds...); err != nil {
		return nil, err
	}
	return s.commit(ctx, sess)
}

func (s *scheduleService) UpdateCourse(ctx context.Context, id string, req *dto.CourseRequest) (*dto.CourseResponse, error) {
	cmds, err := courseCommands(req)
	if err != nil {
		return nil, err
	}
	sess := schedule.NewEditSession(time.Time{}, time.Time{})
	sess.CourseID = id
	if err := sess.Apply(cmds...); err != nil {
		return nil, err
	}
	return s.commitExisting(ctx, id, func(*schedule.CourseInfo) (*schedule.EditSession, error) {
		return sess, nil
	})
}

func (s *scheduleService) EditCourse(ctx context.Context, id string, req *dto.EditCourseRequest) (*dto.CourseResponse, error) {
	cmds := make([]schedule.EditCommand, 0, len(req.Commands))
	for _, r := range req.Commands {
		cmd, err := editCommand(r)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return s.commitExisting(ctx, id, func(c *schedule.CourseInfo) (*schedule.EditSession, error) {
		sess := schedule.EditSessionFrom(c)
		if err := sess.Apply(cmds...); err != nil {
			return nil, err
		}
		return sess, nil
	})
}

// commit 提交新课程
func (s *scheduleService) commit(ctx context.Context, sess *schedule.EditSession) (*dto.CourseResponse, error) {
	var resp dto.CourseResponse
	err := s.eng.update(ctx, func(sched *schedule.Schedule) error {
		c, err := sched.CommitCourse(sess)
		if err != nil {
			return err
		}
		resp = toCourseResponse(c, sched.TermStart())
		return nil
	})
	if err != nil {
		s.logCommitError("新建课程失败", sess, err)
		return nil, err
	}
	s.logger.Info("课程已创建", zap.String("course_id", resp.ID), zap.String("name", resp.Name))
	return &resp, nil
}

// commitExisting 在写锁内取出已有课程、构造编辑会话并原子替换
func (s *scheduleService) commitExisting(ctx context.Context, id string, build func(*schedule.CourseInfo) (*schedule.EditSession, error)) (*dto.CourseResponse, error) {
	var (
		resp dto.CourseResponse
		sess *schedule.EditSession
	)
	err := s.eng.update(ctx, func(sched *schedule.Schedule) error {
		old := sched.Course(id)
		if old == nil {
			return ErrCourseNotFound
		}
		var err error
		if sess, err = build(old); err != nil {
			return err
		}
		c, err := sched.CommitCourse(sess)
		if err != nil {
			return err
		}
		resp = toCourseResponse(c, sched.TermStart())
		return nil
	})
	if err != nil {
		s.logCommitError("修改课程失败", sess, err)
		return nil, err
	}
	s.logger.Info("课程已修改", zap.String("course_id", resp.ID))
	return &resp, nil
}

func (s *scheduleService) logCommitError(msg string, sess *schedule.EditSession, err error) {
	fields := []zap.Field{zap.Error(err)}
	if sess != nil {
		fields = append(fields, zap.String("name", sess.Name), zap.Int("slots", len(sess.Slots)))
	}
	if errors.Is(err, pkgerrors.ErrConflict) {
		s.logger.Info(msg, fields...)
		return
	}
	s.logger.Warn(msg, fields...)
}

func (s *scheduleService) DeleteCourse(ctx context.Context, id string) error {
	err := s.eng.update(ctx, func(sched *schedule.Schedule) error {
		c := sched.Course(id)
		if c == nil {
			return ErrCourseNotFound
		}
		sched.RemoveCourse(c)
		return nil
	})
	if err == nil {
		s.logger.Info("课程已删除", zap.String("course_id", id))
	}
	return err
}

// ────────────────────── Template ──────────────────────

func (s *scheduleService) ListTemplates(_ context.Context, column *int) ([]dto.TemplateResponse, error) {
	out := []dto.TemplateResponse{}
	_ = s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		for col := 0; col < schedule.DaysPerWeek; col++ {
			if column != nil && *column != col {
				continue
			}
			for _, t := range sched.Templates(col) {
				out = append(out, toTemplateResponse(t, sched.TermStart()))
			}
		}
		return nil
	})
	return out, nil
}

func (s *scheduleService) AddTemplate(ctx context.Context, req *dto.CreateTemplateRequest) (*dto.TemplateResponse, error) {
	period := req.Period
	if period == 0 {
		period = 1
	}
	var resp dto.TemplateResponse
	err := s.eng.update(ctx, func(sched *schedule.Schedule) error {
		c := sched.Course(req.CourseID)
		if c == nil {
			return ErrCourseNotFound
		}
		t, err := schedule.NewCourseTemplate(c, req.Column, req.StartSlot, req.EndSlot, period)
		if err != nil {
			return err
		}
		if !sched.AddTemplate(t) {
			return pkgerrors.ErrConflict
		}
		resp = toTemplateResponse(t, sched.TermStart())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("时间模板已添加",
		zap.String("template_id", resp.ID),
		zap.String("course_id", resp.CourseID),
		zap.Int("column", resp.Column),
	)
	return &resp, nil
}

func (s *scheduleService) DeleteTemplate(ctx context.Context, id string) error {
	return s.eng.update(ctx, func(sched *schedule.Schedule) error {
		t := sched.Template(id)
		if t == nil {
			return ErrTemplateNotFound
		}
		sched.RemoveTemplate(t)
		return nil
	})
}

// ────────────────────── Query ──────────────────────

func (s *scheduleService) GetCell(_ context.Context, q *dto.CellQuery) (*dto.CellResponse, error) {
	var resp dto.CellResponse
	err := s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		var t *schedule.CourseTemplate
		switch {
		case q.At != "":
			at, err := parseTime("at", q.At)
			if err != nil {
				return err
			}
			resp.Week, resp.Column, resp.Slot = schedule.Locate(sched.TermStart(), at)
			t = sched.TemplateAtTime(at)
		case q.Column != nil && q.Slot != nil && q.Week != nil:
			resp.Week, resp.Column, resp.Slot = *q.Week, *q.Column, *q.Slot
			t = sched.TemplateAt(*q.Column, *q.Slot, *q.Week)
		default:
			return ErrInvalidCellQuery
		}
		if t != nil {
			tr := toTemplateResponse(t, sched.TermStart())
			resp.Template = &tr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *scheduleService) GetWeekView(ctx context.Context, week int) (*dto.WeekViewResponse, error) {
	var revision uint64
	_ = s.eng.view(func(_ *schedule.Schedule, r uint64) error {
		revision = r
		return nil
	})

	if s.cache != nil {
		var cached dto.WeekViewResponse
		hit, err := s.cache.GetWeekView(ctx, s.eng.instance, revision, week, &cached)
		if err != nil {
			s.logger.Warn("读取周视图缓存失败", zap.Int("week", week), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	var resp dto.WeekViewResponse
	_ = s.eng.view(func(sched *schedule.Schedule, r uint64) error {
		revision = r
		resp = toWeekViewResponse(sched.WeekView(week), sched.TermStart())
		return nil
	})

	if s.cache != nil {
		if err := s.cache.SetWeekView(ctx, s.eng.instance, revision, week, &resp); err != nil {
			s.logger.Warn("写入周视图缓存失败", zap.Int("week", week), zap.Error(err))
		}
	}
	return &resp, nil
}

// ────────────────────── Deadline ──────────────────────

func (s *scheduleService) ListDeadlines(_ context.Context, q *dto.DeadlineQuery) ([]dto.DeadlineResponse, error) {
	from, to := time.Time{}, farFuture
	var err error
	if q != nil && q.From != "" {
		if from, err = parseTime("from", q.From); err != nil {
			return nil, err
		}
	}
	if q != nil && q.To != "" {
		if to, err = parseTime("to", q.To); err != nil {
			return nil, err
		}
	}

	var out []dto.DeadlineResponse
	_ = s.eng.view(func(sched *schedule.Schedule, _ uint64) error {
		out = toDeadlineResponses(sched.DDls(from, to), sched.TermStart())
		return nil
	})
	return out, nil
}

func deadlineFromRequest(req *dto.DeadlineRequest) (schedule.DDlInfo, error) {
	end, err := parseTime("end_time", req.EndTime)
	if err != nil {
		return schedule.DDlInfo{}, err
	}
	d := schedule.DDlInfo{
		Title:       req.Title,
		EndTime:     end,
		Description: req.Description,
		Flag:        req.Flag,
	}
	if err := d.Validate(); err != nil {
		return schedule.DDlInfo{}, err
	}
	return d, nil
}

func (s *scheduleService) CreateDeadline(ctx context.Context, req *dto.DeadlineRequest) (*dto.DeadlineResponse, error) {
	d, err := deadlineFromRequest(req)
	if err != nil {
		return nil, err
	}
	var resp dto.DeadlineResponse
	err = s.eng.update(ctx, func(sched *schedule.Schedule) error {
		if !sched.AddDDl(d) {
			return ErrDeadlineExists
		}
		resp = toDeadlineResponse(d, sched.TermStart())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *scheduleService) DeleteDeadline(ctx context.Context, req *dto.DeadlineRequest) error {
	d, err := deadlineFromRequest(req)
	if err != nil {
		return err
	}
	return s.eng.update(ctx, func(sched *schedule.Schedule) error {
		if !sched.RemoveDDl(d) {
			return fmt.Errorf("%w: %s @ %s", ErrDeadlineNotFound, d.Title, formatTime(d.EndTime))
		}
		return nil
	})
}
