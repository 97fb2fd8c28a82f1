package schedule

import (
	"github.com/google/btree"
)

// slotBucket 同一起始时间格的模板集合（按插入顺序）
type slotBucket struct {
	slot      int
	templates []*CourseTemplate
}

func bucketLess(a, b *slotBucket) bool { return a.slot < b.slot }

// slotIndex 单个星期列的时间模板索引：起始时间格 → 模板集合，按起始格升序遍历。
type slotIndex struct {
	sched *Schedule
	tree  *btree.BTreeG[*slotBucket]
}

func newSlotIndex(s *Schedule) *slotIndex {
	return &slotIndex{sched: s, tree: btree.NewG[*slotBucket](8, bucketLess)}
}

// addTemplate 插入模板。check 为 true 时先做冲突检测，冲突则返回 false 且不做任何修改。
func (x *slotIndex) addTemplate(t *CourseTemplate, check bool) bool {
	if check && x.conflictCheck(t) {
		return false
	}
	b, ok := x.tree.Get(&slotBucket{slot: t.startSlot})
	if !ok {
		b = &slotBucket{slot: t.startSlot}
		x.tree.ReplaceOrInsert(b)
	}
	if !containsTemplate(b.templates, t) {
		b.templates = append(b.templates, t)
	}
	t.course.attach(t)
	return true
}

// removeTemplate 从索引与所属课程中移除模板，不存在时为空操作
func (x *slotIndex) removeTemplate(t *CourseTemplate) {
	x.unindex(t)
	t.course.detach(t)
}

// unindex 仅从索引移除，保留课程上的模板列表
func (x *slotIndex) unindex(t *CourseTemplate) {
	b, ok := x.tree.Get(&slotBucket{slot: t.startSlot})
	if !ok {
		return
	}
	for i, existing := range b.templates {
		if existing == t {
			b.templates = append(b.templates[:i], b.templates[i+1:]...)
			break
		}
	}
	if len(b.templates) == 0 {
		x.tree.Delete(b)
	}
}

// contains 模板是否已在索引中
func (x *slotIndex) contains(t *CourseTemplate) bool {
	b, ok := x.tree.Get(&slotBucket{slot: t.startSlot})
	return ok && containsTemplate(b.templates, t)
}

// getTemplate 返回第 week 周覆盖时间格 slot 的模板。
// 起始格大于 slot 的条目不可能覆盖 slot，遍历到此即停止。
func (x *slotIndex) getTemplate(slot, week int) *CourseTemplate {
	var found *CourseTemplate
	x.tree.Ascend(func(b *slotBucket) bool {
		if b.slot > slot {
			return false
		}
		for _, t := range b.templates {
			if t.endSlot > slot && t.OccursIn(x.sched.termStart, week) {
				found = t
				return false
			}
		}
		return true
	})
	return found
}

// conflictCheck 候选模板是否与索引中任一模板冲突。
// 起始格大于候选结束格的条目不可能与之重叠。
func (x *slotIndex) conflictCheck(candidate *CourseTemplate) bool {
	conflict := false
	x.tree.Ascend(func(b *slotBucket) bool {
		if b.slot > candidate.endSlot {
			return false
		}
		for _, t := range b.templates {
			if t != candidate && x.sched.conflicts(t, candidate) {
				conflict = true
				return false
			}
		}
		return true
	})
	return conflict
}

// templates 按起始格升序列出全部模板
func (x *slotIndex) templates() []*CourseTemplate {
	var out []*CourseTemplate
	x.tree.Ascend(func(b *slotBucket) bool {
		out = append(out, b.templates...)
		return true
	})
	return out
}

func (x *slotIndex) len() int {
	n := 0
	x.tree.Ascend(func(b *slotBucket) bool {
		n += len(b.templates)
		return true
	})
	return n
}

func containsTemplate(list []*CourseTemplate, t *CourseTemplate) bool {
	for _, existing := range list {
		if existing == t {
			return true
		}
	}
	return false
}
