package errors

import "errors"

// ── 课表引擎错误 ──
//
// 冲突、未找到、重复 DDL 在引擎内部以 bool / nil 返回，不属于错误；
// 这里只收录构造期的非法输入以及上层需要区分的结果。

var (
	// ErrInvalidCourse 课程参数非法（有效期 start >= end，或名称、地点超长）
	ErrInvalidCourse = errors.New("课程参数非法")
	// ErrInvalidDDl DDL 参数非法（标题超长）
	ErrInvalidDDl = errors.New("DDL 参数非法")
	// ErrInvalidTemplate 时间模板非法（列、时间格或周期越界）
	ErrInvalidTemplate = errors.New("时间模板非法")
	// ErrConflict 与已有课程时间冲突
	ErrConflict = errors.New("与已有课程时间冲突")
	// ErrSlotIndex 编辑命令引用了不存在的时间段下标
	ErrSlotIndex = errors.New("时间段下标越界")
	// ErrInvalidTestData 测试数据配置非法
	ErrInvalidTestData = errors.New("测试数据配置非法")
)
