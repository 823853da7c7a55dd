// =============================================================================
// 文件: internal/channel/channel.go
// 描述: 不可靠信道 - 丢包、损坏、重复、延迟、乱序 (可脚本化的故障注入)
// =============================================================================
package channel

import (
	"math/rand"
	"sync"

	"go.uber.org/atomic"

	"github.com/mrcgq/rdt/internal/segment"
)

// Fault 单个段遭遇的故障
type Fault uint8

const (
	FaultNone Fault = iota
	FaultDrop
	FaultCorrupt
	FaultDuplicate
	FaultDelay
)

func (f Fault) String() string {
	names := []string{"NONE", "DROP", "CORRUPT", "DUPLICATE", "DELAY"}
	if int(f) < len(names) {
		return names[f]
	}
	return "UNKNOWN"
}

// FaultFunc 脚本化故障: n 为该信道上第 n 次 Send (从 0 开始)
// 返回 FaultNone 时回落到随机故障配置
type FaultFunc func(n int, seg segment.Segment) Fault

// Profile 随机故障配置 (概率均需 < 1)
type Profile struct {
	DropRate      float64
	CorruptRate   float64
	DuplicateRate float64
	DelayRate     float64
	MaxDelayTicks int
	Reorder       bool
	Seed          int64
}

// Stats 信道统计
type Stats struct {
	Sent       uint64
	Delivered  uint64
	Dropped    uint64
	Corrupted  uint64
	Duplicated uint64
	Delayed    uint64
}

type queued struct {
	seg   segment.Segment
	delay int
}

// Channel 单向不可靠信道
type Channel struct {
	profile Profile
	fault   FaultFunc
	rng     *rand.Rand

	queue []queued
	sends int

	sent       atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	corrupted  atomic.Uint64
	duplicated atomic.Uint64
	delayed    atomic.Uint64

	mu sync.Mutex
}

// Option 信道选项
type Option func(*Channel)

// WithFaultFunc 设置脚本化故障
func WithFaultFunc(fn FaultFunc) Option {
	return func(c *Channel) {
		c.fault = fn
	}
}

// New 创建信道, 零值 Profile 即完美信道
func New(profile Profile, opts ...Option) *Channel {
	if profile.MaxDelayTicks <= 0 {
		profile.MaxDelayTicks = 1
	}
	c := &Channel{
		profile: profile,
		rng:     rand.New(rand.NewSource(profile.Seed)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send 投递一个段, 永不阻塞也不返回错误
func (c *Channel) Send(seg segment.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.sends
	c.sends++
	c.sent.Inc()

	fault := FaultNone
	if c.fault != nil {
		fault = c.fault(n, seg)
	}
	if fault == FaultNone {
		fault = c.roll()
	}

	switch fault {
	case FaultDrop:
		c.dropped.Inc()
		return
	case FaultCorrupt:
		corrupted, ok := c.corrupt(seg)
		if !ok {
			// 线格式已无法解析, 等同丢失
			c.dropped.Inc()
			return
		}
		c.corrupted.Inc()
		c.queue = append(c.queue, queued{seg: corrupted})
	case FaultDuplicate:
		c.duplicated.Inc()
		c.queue = append(c.queue, queued{seg: seg}, queued{seg: seg})
	case FaultDelay:
		c.delayed.Inc()
		c.queue = append(c.queue, queued{seg: seg, delay: 1 + c.rng.Intn(c.profile.MaxDelayTicks)})
	default:
		c.queue = append(c.queue, queued{seg: seg})
	}
}

// roll 按配置概率抽取故障
func (c *Channel) roll() Fault {
	p := c.profile
	switch {
	case p.DropRate > 0 && c.rng.Float64() < p.DropRate:
		return FaultDrop
	case p.CorruptRate > 0 && c.rng.Float64() < p.CorruptRate:
		return FaultCorrupt
	case p.DuplicateRate > 0 && c.rng.Float64() < p.DuplicateRate:
		return FaultDuplicate
	case p.DelayRate > 0 && c.rng.Float64() < p.DelayRate:
		return FaultDelay
	}
	return FaultNone
}

// corrupt 在线格式的受保护区域内翻转一个字节
func (c *Channel) corrupt(seg segment.Segment) (segment.Segment, bool) {
	wire := seg.Encode()

	// 优先损坏有效载荷, 与实际链路上的比特错误分布一致
	lo := segment.ProtectedOffset
	if seg.Len() > 0 {
		lo = len(wire) - seg.Len()
	}
	i := lo + c.rng.Intn(len(wire)-lo)
	wire[i] ^= byte(1 + c.rng.Intn(255))

	out, err := segment.Decode(wire)
	if err != nil {
		return segment.Segment{}, false
	}
	return out, true
}

// Receive 取出当前可交付的全部段, 批次内顺序不保证
func (c *Channel) Receive() []segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []segment.Segment
	kept := c.queue[:0]
	for _, q := range c.queue {
		if q.delay > 0 {
			q.delay--
			kept = append(kept, q)
			continue
		}
		out = append(out, q.seg)
	}
	c.queue = kept

	if c.profile.Reorder && len(out) > 1 {
		c.rng.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	c.delivered.Add(uint64(len(out)))
	return out
}

// Pending 在途段数量 (不消费)
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats 获取统计
func (c *Channel) Stats() Stats {
	return Stats{
		Sent:       c.sent.Load(),
		Delivered:  c.delivered.Load(),
		Dropped:    c.dropped.Load(),
		Corrupted:  c.corrupted.Load(),
		Duplicated: c.duplicated.Load(),
		Delayed:    c.delayed.Load(),
	}
}
