// =============================================================================
// 文件: internal/rdt/offsets.go
// 描述: RDT 可靠传输 - 已接收偏移集合 (滑动精确位图 + 轮换布隆过滤器)
// =============================================================================
package rdt

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/bits-and-blooms/bloom/v3"
)

const (
	defaultExpectedOffsets = 4096
	offsetFalsePositive    = 0.001
)

// offsetSet 已接收偏移集合
//
// 交付游标及之后的偏移记在精确位图中, 位图随游标滑动, 大小受乱序缓存限制.
// 滑出位图的偏移只记入布隆过滤器 (两代轮换, 内存有界), 它们只用于区分
// 重复段与过期段, 两者的处理都是丢弃并重新确认, 误报不影响交付.
type offsetSet struct {
	base  int // 位图第 0 位对应的偏移
	exact *bitset.BitSet

	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	count    uint // current 中已记录的偏移数
	capacity uint
}

func newOffsetSet(capacity uint) *offsetSet {
	return &offsetSet{
		exact:    bitset.New(capacity),
		current:  bloom.NewWithEstimates(capacity, offsetFalsePositive),
		previous: bloom.NewWithEstimates(capacity, offsetFalsePositive),
		capacity: capacity,
	}
}

func offsetKey(offset int) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(offset))
	return key[:]
}

// Add 记录偏移
func (s *offsetSet) Add(offset int) {
	if offset < 0 {
		return
	}
	if offset < s.base {
		s.remember(offset)
		return
	}
	s.exact.Set(uint(offset - s.base))
}

// Contains 偏移是否已记录. base 之后精确, 之前为布隆过滤器的近似结果
func (s *offsetSet) Contains(offset int) bool {
	switch {
	case offset < 0:
		return false
	case offset >= s.base:
		return s.exact.Test(uint(offset - s.base))
	}
	key := offsetKey(offset)
	return s.current.Test(key) || s.previous.Test(key)
}

// Advance 位图起点滑动到 to, 滑出的偏移转入布隆过滤器
func (s *offsetSet) Advance(to int) {
	if to <= s.base {
		return
	}
	shift := uint(to - s.base)

	next := bitset.New(s.capacity)
	for i, ok := s.exact.NextSet(0); ok; i, ok = s.exact.NextSet(i + 1) {
		if i < shift {
			s.remember(s.base + int(i))
		} else {
			next.Set(i - shift)
		}
	}
	s.exact = next
	s.base = to
}

// remember 记入当前代布隆过滤器, 满额后轮换, 最老一代被丢弃
func (s *offsetSet) remember(offset int) {
	if s.count >= s.capacity {
		s.previous = s.current
		s.current = bloom.NewWithEstimates(s.capacity, offsetFalsePositive)
		s.count = 0
	}
	s.current.Add(offsetKey(offset))
	s.count++
}
