package service

import (
	"go.uber.org/zap"

	"timetable/backend/config"
	"timetable/backend/internal/repository"
	"timetable/backend/internal/schedule"
	"timetable/backend/pkg/cache"
	"timetable/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
//
// 三个服务共享同一个 engine，即进程内唯一的课表实例。
type Service struct {
	Schedule ScheduleService
	Calendar CalendarService
	Export   ExportService
}

// NewService 创建 Service 聚合
//
// repo 为 nil 时课表只保存在内存中；rdb 为 nil 时周视图缓存在进程内。
// 课表内容由 Schedule.Load 填充。
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	rdb *redis.Client,
	logger *zap.Logger,
) (*Service, error) {
	termStart, err := cfg.Term.StartTime()
	if err != nil {
		return nil, err
	}

	var opts []schedule.Option
	if cfg.Schedule.ClosedFormConflict {
		opts = append(opts, schedule.WithCoincidence(schedule.CongruenceCoincidence))
	}
	eng := newEngine(schedule.New(termStart, opts...), repo, cfg.Schedule.Autosave, logger)

	// 避免把 nil 的 *redis.Client 装进非 nil 接口
	var viewCache WeekViewCache = cache.NewMemory(cfg.Redis.CacheTTL)
	if rdb != nil {
		viewCache = rdb
	}

	return &Service{
		Schedule: newScheduleService(cfg, eng, repo, viewCache, logger),
		Calendar: newCalendarService(eng, cfg.Schedule.TermWeeks, logger),
		Export:   newExportService(eng, cfg.Schedule.TermWeeks, logger),
	}, nil
}
