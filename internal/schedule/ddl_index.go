package schedule

import (
	"time"

	"github.com/google/btree"
)

// ddlBucket 同一截止时刻的 DDL 集合
type ddlBucket struct {
	at    time.Time
	items []DDlInfo
}

func ddlBucketLess(a, b *ddlBucket) bool { return a.at.Before(b.at) }

// ddlIndex 截止时刻 → DDL 集合，按时刻升序
type ddlIndex struct {
	tree *btree.BTreeG[*ddlBucket]
}

func newDDlIndex() *ddlIndex {
	return &ddlIndex{tree: btree.NewG[*ddlBucket](8, ddlBucketLess)}
}

// add 插入 DDL，同一时刻已存在相同 DDL 时返回 false
func (x *ddlIndex) add(d DDlInfo) bool {
	b, ok := x.tree.Get(&ddlBucket{at: d.EndTime})
	if !ok {
		x.tree.ReplaceOrInsert(&ddlBucket{at: d.EndTime, items: []DDlInfo{d}})
		return true
	}
	for _, existing := range b.items {
		if existing.Equal(d) {
			return false
		}
	}
	b.items = append(b.items, d)
	return true
}

// remove 移除 DDL；集合为空时删除整个键
func (x *ddlIndex) remove(d DDlInfo) bool {
	b, ok := x.tree.Get(&ddlBucket{at: d.EndTime})
	if !ok {
		return false
	}
	removed := false
	for i, existing := range b.items {
		if existing.Equal(d) {
			b.items = append(b.items[:i], b.items[i+1:]...)
			removed = true
			break
		}
	}
	if len(b.items) == 0 {
		x.tree.Delete(b)
	}
	return removed
}

// between 返回截止时刻落在 [from, to) 内的 DDL，按时刻升序
func (x *ddlIndex) between(from, to time.Time) []DDlInfo {
	res := []DDlInfo{}
	if !from.Before(to) {
		return res
	}
	x.tree.AscendRange(&ddlBucket{at: from}, &ddlBucket{at: to}, func(b *ddlBucket) bool {
		res = append(res, b.items...)
		return true
	})
	return res
}

// all 返回全部 DDL，按时刻升序
func (x *ddlIndex) all() []DDlInfo {
	res := []DDlInfo{}
	x.tree.Ascend(func(b *ddlBucket) bool {
		res = append(res, b.items...)
		return true
	})
	return res
}

func (x *ddlIndex) len() int {
	n := 0
	x.tree.Ascend(func(b *ddlBucket) bool {
		n += len(b.items)
		return true
	})
	return n
}
