// =============================================================================
// 文件: internal/rdt/recv.go
// 描述: RDT 可靠传输 - 接收引擎 (校验、去重、乱序缓存、累积确认)
// =============================================================================
package rdt

import (
	"github.com/mrcgq/rdt/internal/segment"
)

// onCorrupt 校验和不匹配: 丢弃, 接收方重新确认最后的有序偏移
func (e *Engine) onCorrupt(seg segment.Segment) {
	e.stats.corrupted.Inc()
	e.log(2, "校验和错误, 丢弃: %s", seg)

	if e.role == RoleReceiver {
		e.sendAck()
	}
}

// handleData 处理一个校验通过的数据段
func (e *Engine) handleData(seg segment.Segment) {
	seq := seg.Seq()

	switch {
	case e.seen.Contains(seq):
		// 已接收过: 不再缓存, 但仍确认以免发送方等待
		e.stats.duplicates.Inc()

	case seq == e.deliveryCursor:
		e.seen.Add(seq)
		e.deliver(seg)
		e.drainStaged()
		e.seen.Advance(e.deliveryCursor)

	case seq > e.deliveryCursor:
		e.seen.Add(seq)
		e.staged.ReplaceOrInsert(seg)
		e.stats.outOfOrder.Inc()

	default:
		e.stats.staleArrivals.Inc()
	}

	e.sendAck()
}

// drainStaged 把与游标相接的缓存段依次移入交付缓冲
func (e *Engine) drainStaged() {
	for {
		seg, ok := e.staged.Min()
		if !ok || seg.Seq() > e.deliveryCursor {
			return
		}
		e.staged.DeleteMin()
		if seg.Seq() == e.deliveryCursor {
			e.deliver(seg)
		}
	}
}

// deliver 接受一个有序段并推进交付游标
func (e *Engine) deliver(seg segment.Segment) {
	if _, replaced := e.delivered.ReplaceOrInsert(seg); replaced {
		return
	}
	e.deliveryCursor += seg.Len()
	e.stats.cursor.Store(int64(e.deliveryCursor))
	e.stats.bytesDelivered.Add(uint64(seg.Len()))
}

// sendAck 发送当前交付游标的累积确认, 按需附带 SACK 区间
func (e *Engine) sendAck() {
	var blocks []segment.Block
	if e.cfg.EnableSACK {
		blocks = e.sackBlocks()
	}
	e.out.Send(segment.NewAck(e.deliveryCursor, blocks...))
	e.stats.acksSent.Inc()
}

// sackBlocks 合并乱序缓存中相邻的段
func (e *Engine) sackBlocks() []segment.Block {
	var blocks []segment.Block

	e.staged.Ascend(func(seg segment.Segment) bool {
		if n := len(blocks); n > 0 && blocks[n-1].End == seg.Seq() {
			blocks[n-1].End = seg.End()
			return true
		}
		if len(blocks) == segment.MaxSACKBlocks {
			return false
		}
		blocks = append(blocks, segment.Block{Start: seg.Seq(), End: seg.End()})
		return true
	})

	return blocks
}
