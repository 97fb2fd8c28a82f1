package schedule

import (
	"fmt"
	"math/rand"
	"time"

	pkgerrors "timetable/backend/pkg/errors"
)

// TestDataConfig 随机测试数据配置
type TestDataConfig struct {
	CourseTryCount int // 随机课程的插入尝试次数（冲突的会被丢弃）
	DDlCount       int // 随机 DDL 数量
	TotalWeeks     int // 学期周数，随机时间戳的上界
	MaxSlot        int // 随机起始时间格的上界（不含）
}

// Validate 校验配置
func (c TestDataConfig) Validate() error {
	switch {
	case c.CourseTryCount < 0 || c.DDlCount < 0:
		return fmt.Errorf("%w: 数量不能为负", pkgerrors.ErrInvalidTestData)
	case c.TotalWeeks <= 0:
		return fmt.Errorf("%w: total_weeks 必须为正", pkgerrors.ErrInvalidTestData)
	case c.MaxSlot <= 0 || c.MaxSlot >= SlotsPerDay:
		return fmt.Errorf("%w: max_slot 必须在 1-%d 之间", pkgerrors.ErrInvalidTestData, SlotsPerDay-1)
	}
	return nil
}

// GenerateResult 生成结果统计
type GenerateResult struct {
	CoursesAdded    int
	CoursesRejected int
	DDlsAdded       int
}

// Generate 向课表写入随机课程和 DDL。
// 每门课程覆盖整个学期，只有一个每周重复的时间模板，长度 2-3 格；冲突的尝试直接丢弃。
func Generate(s *Schedule, cfg TestDataConfig, rng *rand.Rand) (GenerateResult, error) {
	var res GenerateResult
	if err := cfg.Validate(); err != nil {
		return res, err
	}

	termEnd := s.termStart.Add(time.Duration(cfg.TotalWeeks) * WeekLength)
	span := int64(termEnd.Sub(s.termStart) / time.Second)

	for i := 0; i < cfg.DDlCount; i++ {
		d := DDlInfo{
			Title:       fmt.Sprintf("Test ddl%d", i),
			EndTime:     s.termStart.Add(time.Duration(rng.Int63n(span)) * time.Second),
			Description: fmt.Sprintf("This is DDL %d", i),
		}
		if s.AddDDl(d) {
			res.DDlsAdded++
		}
	}

	for i := 0; i < cfg.CourseTryCount; i++ {
		c, err := NewCourse(
			fmt.Sprintf("Test Course%d", i),
			s.termStart, termEnd,
			fmt.Sprintf("Classroom %d", i),
			fmt.Sprintf("This is Course %d", i),
		)
		if err != nil {
			return res, err
		}
		start := rng.Intn(cfg.MaxSlot)
		end := min(start+2+rng.Intn(2), SlotsPerDay)
		if _, err := c.AddSlot(rng.Intn(DaysPerWeek), start, end, 1); err != nil {
			return res, err
		}
		if s.AddCourse(c) {
			res.CoursesAdded++
		} else {
			res.CoursesRejected++
		}
	}
	return res, nil
}
