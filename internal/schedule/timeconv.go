package schedule

import (
	"fmt"
	"time"
)

// ── 时间换算 ──────────────────────────────────────────────
//
// 所有换算均相对学期起始时间 termStart（第 0 周第 0 列第 0 格）。
// 早于 termStart 的时间得到负周次，调用方按"尚未生效"处理，不视为错误。
// ─────────────────────────────────────────────────────────────

const (
	// SlotLength 一个时间格的长度，所有模板共用
	SlotLength = 30 * time.Minute
	// DayLength 一天
	DayLength = 24 * time.Hour
	// DaysPerWeek 每周列数（周一 = 0）
	DaysPerWeek = 7
	// WeekLength 一周
	WeekLength = DaysPerWeek * DayLength
	// SlotsPerDay 每天的时间格数
	SlotsPerDay = int(DayLength / SlotLength)
)

// floorDiv 向下取整除法（Go 的 / 向零取整）
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod 与 floorDiv 配套的非负取模
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

// WeekOf 返回 t 相对学期起始的周次（0 起）
func WeekOf(termStart, t time.Time) int {
	return int(floorDiv(int64(t.Sub(termStart)), int64(WeekLength)))
}

// DayOf 返回 t 所在的星期列（0-6）
func DayOf(termStart, t time.Time) int {
	offset := floorMod(int64(t.Sub(termStart)), int64(WeekLength))
	return int(offset / int64(DayLength))
}

// SlotOf 返回 t 在当天的时间格序号
func SlotOf(termStart, t time.Time) int {
	offset := floorMod(int64(t.Sub(termStart)), int64(DayLength))
	return int(offset / int64(SlotLength))
}

// Locate 一次性换算 (周次, 星期列, 时间格)
func Locate(termStart, t time.Time) (week, day, slot int) {
	return WeekOf(termStart, t), DayOf(termStart, t), SlotOf(termStart, t)
}

// SlotStart 是 Locate 的逆运算，返回某一格的起始时刻
func SlotStart(termStart time.Time, week, day, slot int) time.Time {
	return termStart.
		Add(time.Duration(week) * WeekLength).
		Add(time.Duration(day) * DayLength).
		Add(time.Duration(slot) * SlotLength)
}

// SlotLabel 将时间格序号格式化为 HH:MM（slot == SlotsPerDay 时为 24:00）
func SlotLabel(slot int) string {
	minutes := slot * int(SlotLength/time.Minute)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
