package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"timetable/backend/internal/repository"
	"timetable/backend/internal/schedule"
)

// engine 进程内唯一的课表实例
//
// schedule 包本身不做并发控制，这里用读写锁串行化所有访问。
// 每次成功修改递增 revision，周视图缓存以 instance + revision 作为键。
// revision 每次启动都从 0 开始，instance 区分不同进程（及同一进程内的不同实例）。
type engine struct {
	mu       sync.RWMutex
	sched    *schedule.Schedule
	revision uint64
	instance string

	// parked 加载时因冲突未能放入课表的课程。
	// 不参与查询与冲突检测，但保存时原样写回，避免被自动保存删除；下次加载时重试。
	parked []*schedule.CourseInfo

	repo     *repository.Repository
	persist  bool // 测试数据模式下为 false
	autosave bool
	logger   *zap.Logger
}

func newEngine(sched *schedule.Schedule, repo *repository.Repository, autosave bool, logger *zap.Logger) *engine {
	return &engine{
		sched:    sched,
		instance: uuid.NewString(),
		repo:     repo,
		persist:  repo != nil,
		autosave: autosave,
		logger:   logger,
	}
}

// view 在读锁内执行 fn
func (e *engine) view(fn func(s *schedule.Schedule, revision uint64) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.sched, e.revision)
}

// update 在写锁内执行 fn；fn 返回 nil 视为已修改
// 开启自动保存时随即落库。保存失败不回滚内存状态，只记录日志，可稍后手动保存。
func (e *engine) update(ctx context.Context, fn func(s *schedule.Schedule) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.sched); err != nil {
		return err
	}
	e.revision++

	if e.autosave && e.persist {
		if err := e.saveLocked(ctx); err != nil {
			e.logger.Error("自动保存失败", zap.Uint64("revision", e.revision), zap.Error(err))
		}
	}
	return nil
}

// save 手动保存当前课表
func (e *engine) save(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.saveLocked(ctx)
}

func (e *engine) saveLocked(ctx context.Context) error {
	if !e.persist {
		return ErrPersistenceDisabled
	}
	snap := e.sched.Snapshot()
	snap.Courses = append(snap.Courses, e.parked...)
	term, courses, deadlines := snapshotToModels(snap)
	if err := e.repo.Schedule.ReplaceAll(ctx, &term, courses, deadlines); err != nil {
		return err
	}
	e.logger.Debug("课表已保存",
		zap.Int("courses", len(courses)),
		zap.Int("parked", len(e.parked)),
		zap.Int("deadlines", len(deadlines)),
		zap.Uint64("revision", e.revision),
	)
	return nil
}
