package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"timetable/backend/internal/model"
)

// singleTermID 单用户应用只保存一个学期
const singleTermID = 1

// ScheduleRepository 课表持久化接口
//
// 课表以整体快照的方式读写：加载时一次取出学期、课程（含时间模板）与 DDL，
// 保存时在同一事务中全量替换。索引属于内存中的派生结构，不落库。
type ScheduleRepository interface {
	// LoadTerm 读取学期；尚未保存过时返回 gorm.ErrRecordNotFound
	LoadTerm(ctx context.Context) (*model.Term, error)
	// ListCourses 按注册顺序返回课程，Slots 按课程内顺序预加载
	ListCourses(ctx context.Context) ([]model.Course, error)
	// ListDeadlines 按截止时间升序返回 DDL
	ListDeadlines(ctx context.Context) ([]model.Deadline, error)
	// ReplaceAll 在事务中全量替换：写入学期，清空并重新插入课程、时间模板与 DDL
	ReplaceAll(ctx context.Context, term *model.Term, courses []model.Course, deadlines []model.Deadline) error
}

type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo 创建 ScheduleRepository 实例
func NewScheduleRepo(db *gorm.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) LoadTerm(ctx context.Context) (*model.Term, error) {
	var term model.Term
	err := r.db.WithContext(ctx).
		Where("term_id = ?", singleTermID).
		First(&term).Error
	if err != nil {
		return nil, err
	}
	return &term, nil
}

func (r *scheduleRepo) ListCourses(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	err := r.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("position ASC").
		Find(&courses).Error
	return courses, err
}

func (r *scheduleRepo) ListDeadlines(ctx context.Context) ([]model.Deadline, error) {
	var deadlines []model.Deadline
	err := r.db.WithContext(ctx).
		Order("end_time ASC, deadline_id ASC").
		Find(&deadlines).Error
	return deadlines, err
}

func (r *scheduleRepo) ReplaceAll(ctx context.Context, term *model.Term, courses []model.Course, deadlines []model.Deadline) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		term.TermID = singleTermID
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "term_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_time", "updated_at"}),
		}).Create(term).Error; err != nil {
			return err
		}

		// 硬删除旧数据；course_slots 随 courses 级联删除
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&model.Course{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&model.Deadline{}).Error; err != nil {
			return err
		}

		if len(courses) > 0 {
			if err := tx.Create(&courses).Error; err != nil {
				return err
			}
		}
		if len(deadlines) > 0 {
			if err := tx.Create(&deadlines).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
