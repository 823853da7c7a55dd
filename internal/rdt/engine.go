// =============================================================================
// 文件: internal/rdt/engine.go
// 描述: RDT 可靠传输 - 引擎状态与节拍驱动
// =============================================================================
package rdt

import (
	"sort"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mrcgq/rdt/internal/segment"
)

const btreeDegree = 8

// outstanding 已发送未确认的段
type outstanding struct {
	offset  int
	size    int
	sentAt  int // 最近一次 (重) 传时的逻辑时钟
	retries int
	sacked  bool
}

func outstandingLess(a, b *outstanding) bool { return a.offset < b.offset }

func segmentLess(a, b segment.Segment) bool { return a.Seq() < b.Seq() }

// counters 统计计数器, 可被指标收集器并发读取
type counters struct {
	ticks            atomic.Uint64
	segmentsSent     atomic.Uint64
	bytesSent        atomic.Uint64
	retransmits      atomic.Uint64
	fastRetransmits  atomic.Uint64
	staleRetransmits atomic.Uint64
	acksSent         atomic.Uint64
	acksReceived     atomic.Uint64
	dupAcks          atomic.Uint64
	sackedBlocks     atomic.Uint64
	segmentsReceived atomic.Uint64
	corrupted        atomic.Uint64
	duplicates       atomic.Uint64
	outOfOrder       atomic.Uint64
	staleArrivals    atomic.Uint64
	bytesDelivered   atomic.Uint64

	inFlight atomic.Int64
	cursor   atomic.Int64
}

// Engine 单方向的 RDT 引擎
type Engine struct {
	cfg    Config
	role   Role
	out    Channel
	in     Channel
	logger *zap.SugaredLogger

	// 发送状态
	data      []byte
	cursor    int // 下一个未发送字节
	una       int // 最大累积确认号
	clock     int // 逻辑时钟 (字节)
	pending   *btree.BTreeG[*outstanding]
	inFlight  int
	dupAcks   map[int]int
	retxQueue []int

	// 接收状态
	staged         *btree.BTreeG[segment.Segment]
	delivered      *btree.BTreeG[segment.Segment]
	deliveryCursor int
	seen           *offsetSet

	started bool
	stats   counters
}

// Option 引擎选项
type Option func(*Engine)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Sugar().With("role", e.role.String())
		}
	}
}

// New 创建引擎. out 为本端发送信道, in 为本端接收信道
func New(cfg *Config, role Role, out, in Channel, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil || in == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "信道不能为空")
	}
	if role != RoleSender && role != RoleReceiver {
		return nil, errors.Wrapf(ErrInvalidConfig, "未知角色: %d", role)
	}

	e := &Engine{
		cfg:       *cfg,
		role:      role,
		out:       out,
		in:        in,
		logger:    zap.NewNop().Sugar(),
		pending:   btree.NewG(btreeDegree, outstandingLess),
		dupAcks:   make(map[int]int),
		staged:    btree.NewG(btreeDegree, segmentLess),
		delivered: btree.NewG(btreeDegree, segmentLess),
		seen:      newOffsetSet(defaultExpectedOffsets),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetData 设置待发送数据, 必须在第一次 Tick 之前调用
func (e *Engine) SetData(data []byte) error {
	if e.role != RoleSender {
		return ErrNotSender
	}
	if e.started {
		return ErrTransferStarted
	}
	if len(data) == 0 {
		return ErrEmptyData
	}
	e.data = make([]byte, len(data))
	copy(e.data, data)
	return nil
}

// Tick 推进一个离散时间步: 有待发数据时先发送, 然后总是处理接收
func (e *Engine) Tick() {
	e.started = true
	e.stats.ticks.Inc()

	if e.role == RoleSender && e.hasOutbound() {
		e.processSend()
	}
	e.processReceive()
}

// hasOutbound 是否仍有未发送或未确认的数据
func (e *Engine) hasOutbound() bool {
	return e.cursor < len(e.data) || e.pending.Len() > 0
}

// Done 发送方全部数据已被累积确认
func (e *Engine) Done() bool {
	return e.role == RoleSender && len(e.data) > 0 && !e.hasOutbound()
}

// processReceive 取出本节拍的全部到达段, 按序列号升序处理
func (e *Engine) processReceive() {
	batch := e.in.Receive()
	if len(batch) == 0 {
		return
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return segment.Less(batch[i], batch[j])
	})

	for _, seg := range batch {
		e.stats.segmentsReceived.Inc()

		if !seg.Valid() {
			e.onCorrupt(seg)
			continue
		}
		if seg.IsAck() {
			e.handleAck(seg)
		}
		if seg.HasData() {
			e.handleData(seg)
		}
	}
}

// Role 引擎角色
func (e *Engine) Role() Role { return e.role }

// Cursor 交付游标
func (e *Engine) Cursor() int { return e.deliveryCursor }

// InFlight 在途未确认字节
func (e *Engine) InFlight() int { return e.inFlight }

// Stats 获取统计快照
func (e *Engine) Stats() Stats {
	s := &e.stats
	return Stats{
		Role:             e.role.String(),
		Ticks:            s.ticks.Load(),
		SegmentsSent:     s.segmentsSent.Load(),
		BytesSent:        s.bytesSent.Load(),
		Retransmits:      s.retransmits.Load(),
		FastRetransmits:  s.fastRetransmits.Load(),
		StaleRetransmits: s.staleRetransmits.Load(),
		BytesInFlight:    int(s.inFlight.Load()),
		AcksSent:         s.acksSent.Load(),
		AcksReceived:     s.acksReceived.Load(),
		DupAcks:          s.dupAcks.Load(),
		SackedBlocks:     s.sackedBlocks.Load(),
		SegmentsReceived: s.segmentsReceived.Load(),
		Corrupted:        s.corrupted.Load(),
		Duplicates:       s.duplicates.Load(),
		OutOfOrder:       s.outOfOrder.Load(),
		StaleArrivals:    s.staleArrivals.Load(),
		BytesDelivered:   s.bytesDelivered.Load(),
		DeliveryCursor:   int(s.cursor.Load()),
	}
}

// log 日志输出 (0=ERROR 1=INFO 2=DEBUG)
func (e *Engine) log(level int, format string, args ...interface{}) {
	switch level {
	case 0:
		e.logger.Errorf(format, args...)
	case 1:
		e.logger.Infof(format, args...)
	default:
		e.logger.Debugf(format, args...)
	}
}
