package rdt

import "testing"

func TestOffsetSet(t *testing.T) {
	t.Run("游标之后精确记录", func(t *testing.T) {
		s := newOffsetSet(64)
		s.Add(8)
		s.Add(16)

		for _, off := range []int{8, 16} {
			if !s.Contains(off) {
				t.Errorf("偏移 %d 应已记录", off)
			}
		}
		for _, off := range []int{0, 4, 12, 20, -1} {
			if s.Contains(off) {
				t.Errorf("偏移 %d 不应被记录", off)
			}
		}
	})

	t.Run("滑动后已交付偏移仍可识别", func(t *testing.T) {
		s := newOffsetSet(64)
		s.Add(0)
		s.Add(4)
		s.Add(12)
		s.Advance(8)

		if s.base != 8 {
			t.Fatalf("base 应为 8: got %d", s.base)
		}
		if !s.Contains(0) || !s.Contains(4) {
			t.Error("滑出位图的偏移应由布隆过滤器识别")
		}
		if !s.Contains(12) {
			t.Error("位图中的偏移滑动后应保留")
		}
		if s.Contains(8) {
			t.Error("偏移 8 未记录")
		}
		if got := s.exact.Count(); got != 1 {
			t.Errorf("位图只应保留游标之后的 1 个偏移: got %d", got)
		}
		if s.count != 2 {
			t.Errorf("布隆过滤器应记录 2 个偏移: got %d", s.count)
		}

		// 回退不生效
		s.Advance(4)
		if s.base != 8 {
			t.Errorf("base 不应回退: got %d", s.base)
		}
	})

	t.Run("长传输中位图保持有界", func(t *testing.T) {
		s := newOffsetSet(256)
		for off := 0; off < 100000; off += 4 {
			s.Add(off)
			s.Advance(off + 4)
			if s.exact.Count() != 0 {
				t.Fatalf("有序交付时位图应为空: offset=%d count=%d", off, s.exact.Count())
			}
		}
		if s.exact.Len() > 256 {
			t.Errorf("位图长度应受容量限制: got %d", s.exact.Len())
		}
		if s.count > s.capacity {
			t.Errorf("布隆过滤器计数超过容量: %d > %d", s.count, s.capacity)
		}

		// 最近一代内的偏移不会漏报
		for off := 100000 - 4*200; off < 100000; off += 4 {
			if !s.Contains(off) {
				t.Fatalf("最近交付的偏移 %d 应可识别", off)
			}
		}
	})

	t.Run("滑出位图后再次记录", func(t *testing.T) {
		s := newOffsetSet(64)
		s.Advance(40)
		s.Add(20)
		if !s.Contains(20) {
			t.Error("base 之前的偏移应记入布隆过滤器")
		}
		if s.exact.Count() != 0 {
			t.Error("base 之前的偏移不应进入位图")
		}
	})
}
