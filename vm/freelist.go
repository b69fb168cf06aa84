package vm

import (
	"sort"

	"github.com/risor-io/callframe/object"
)

// storage is the single contiguous region backing a frame: fixed slots for
// fast locals, cells and free variables, followed by the value stack.
type storage struct {
	slots []object.Object
}

func (s *storage) size() int {
	return len(s.slots)
}

// FreeList caches storage blocks keyed by size so that the frames of hot
// functions reuse the same memory call after call. It belongs to one Thread
// and needs no locking.
type FreeList struct {
	blocks      map[int][]*storage
	cached      int
	limit       int
	allocations int
	reuses      int
	released    int
}

// FreeListStats is a point-in-time summary of a FreeList.
type FreeListStats struct {
	// Cached is the number of blocks currently available for reuse.
	Cached int `json:"cached"`
	// Limit is the maximum number of cached blocks.
	Limit int `json:"limit"`
	// Allocations counts blocks created because no cached block fit.
	Allocations int `json:"allocations"`
	// Reuses counts requests served from the cache.
	Reuses int `json:"reuses"`
	// Released counts blocks dropped because the cache was full or cleared.
	Released int `json:"released"`
	// SizeClasses maps block size to the number of cached blocks of it.
	SizeClasses map[int]int `json:"size_classes,omitempty"`
}

func newFreeList(limit int) *FreeList {
	return &FreeList{
		blocks: map[int][]*storage{},
		limit:  limit,
	}
}

// get returns a zeroed block with exactly size slots.
func (fl *FreeList) get(size int) (*storage, bool) {
	if list := fl.blocks[size]; len(list) > 0 {
		s := list[len(list)-1]
		list[len(list)-1] = nil
		fl.blocks[size] = list[:len(list)-1]
		fl.cached--
		fl.reuses++
		return s, true
	}
	fl.allocations++
	return &storage{slots: make([]object.Object, size)}, false
}

// put returns a block to the cache. The block must already be cleared.
// Returns false if the cache is full and the block was dropped.
func (fl *FreeList) put(s *storage) bool {
	if fl.cached >= fl.limit {
		fl.released++
		return false
	}
	fl.blocks[s.size()] = append(fl.blocks[s.size()], s)
	fl.cached++
	return true
}

// Clear drops every cached block and returns how many were released.
func (fl *FreeList) Clear() int {
	n := fl.cached
	fl.blocks = map[int][]*storage{}
	fl.cached = 0
	fl.released += n
	return n
}

// Len returns the number of cached blocks.
func (fl *FreeList) Len() int {
	return fl.cached
}

// Stats returns a summary of the cache and its counters.
func (fl *FreeList) Stats() FreeListStats {
	stats := FreeListStats{
		Cached:      fl.cached,
		Limit:       fl.limit,
		Allocations: fl.allocations,
		Reuses:      fl.reuses,
		Released:    fl.released,
	}
	if fl.cached > 0 {
		stats.SizeClasses = make(map[int]int, len(fl.blocks))
		for size, list := range fl.blocks {
			if len(list) > 0 {
				stats.SizeClasses[size] = len(list)
			}
		}
	}
	return stats
}

// Sizes returns the size classes that currently have cached blocks, in
// ascending order.
func (fl *FreeList) Sizes() []int {
	var sizes []int
	for size, list := range fl.blocks {
		if len(list) > 0 {
			sizes = append(sizes, size)
		}
	}
	sort.Ints(sizes)
	return sizes
}
