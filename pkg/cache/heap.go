package cache

import (
	"container/heap"
	"time"
)

// expiryItem 堆中的到期记录
type expiryItem struct {
	key      string
	deadline time.Time
}

// expiryHeap 按到期时间排序的最小堆，附带 key -> 下标索引
type expiryHeap struct {
	items []*expiryItem
	index map[string]int
}

func newExpiryHeap() *expiryHeap {
	return &expiryHeap{index: make(map[string]int)}
}

func (h *expiryHeap) Len() int { return len(h.items) }

func (h *expiryHeap) Less(i, j int) bool {
	return h.items[i].deadline.Before(h.items[j].deadline)
}

func (h *expiryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].key] = i
	h.index[h.items[j].key] = j
}

func (h *expiryHeap) Push(x any) {
	it := x.(*expiryItem)
	h.index[it.key] = len(h.items)
	h.items = append(h.items, it)
}

func (h *expiryHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	delete(h.index, it.key)
	return it
}

// Upsert 新增或更新 key 的到期时间
func (h *expiryHeap) Upsert(key string, deadline time.Time) {
	if idx, ok := h.index[key]; ok {
		h.items[idx].deadline = deadline
		heap.Fix(h, idx)
		return
	}
	heap.Push(h, &expiryItem{key: key, deadline: deadline})
}

// Remove 移除 key，不存在时无操作
func (h *expiryHeap) Remove(key string) {
	if idx, ok := h.index[key]; ok {
		heap.Remove(h, idx)
	}
}

// Peek 查看最早到期的记录
func (h *expiryHeap) Peek() *expiryItem {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// PopDue 弹出所有在 now 之前（含）到期的 key
func (h *expiryHeap) PopDue(now time.Time) []string {
	var due []string
	for len(h.items) > 0 && !h.items[0].deadline.After(now) {
		due = append(due, heap.Pop(h).(*expiryItem).key)
	}
	return due
}

// PopFirst 弹出最早到期的 key
func (h *expiryHeap) PopFirst() (string, bool) {
	if len(h.items) == 0 {
		return "", false
	}
	return heap.Pop(h).(*expiryItem).key, true
}
