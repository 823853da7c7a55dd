// =============================================================================
// 文件: internal/rdt/send.go
// 描述: RDT 可靠传输 - 发送引擎 (流控窗口、过期重传、快速重传)
// =============================================================================
package rdt

import (
	"github.com/mrcgq/rdt/internal/segment"
)

// processSend 发送引擎: 快速重传 -> 窗口内新数据 -> 过期重传
func (e *Engine) processSend() {
	e.flushFastRetransmits()

	sentNew := false
	for e.cursor < len(e.data) {
		n := e.cfg.MaxSegmentBytes
		if remain := len(e.data) - e.cursor; remain < n {
			n = remain
		}
		if e.inFlight+n > e.cfg.WindowBytes {
			break
		}

		item := &outstanding{offset: e.cursor, size: n}
		e.cursor += n
		e.clock += n
		e.pending.ReplaceOrInsert(item)
		e.setInFlight(e.inFlight + n)
		e.transmit(item)
		sentNew = true
	}

	// 本节拍没有新数据可发 (窗口满或数据已发完), 逻辑时钟前进一个空闲段位
	if !sentNew {
		e.clock += e.cfg.MaxSegmentBytes
	}

	e.retransmitStale()
}

// transmit 从原始数据重新切片并发送
func (e *Engine) transmit(item *outstanding) {
	payload := e.data[item.offset : item.offset+item.size]
	e.out.Send(segment.NewData(item.offset, payload))
	item.sentAt = e.clock

	e.stats.segmentsSent.Inc()
	e.stats.bytesSent.Add(uint64(item.size))
}

// retransmit 重传一个未确认段
func (e *Engine) retransmit(item *outstanding) {
	item.retries++
	e.transmit(item)
	e.stats.retransmits.Inc()
}

// retransmitStale 逻辑时钟越过 K 个段长仍未确认的段视为丢失
func (e *Engine) retransmitStale() {
	threshold := e.cfg.StaleSegments * e.cfg.MaxSegmentBytes

	e.pending.Ascend(func(item *outstanding) bool {
		if item.sacked {
			return true
		}
		if e.clock-item.sentAt >= threshold {
			e.log(2, "过期重传: seq=%d retries=%d", item.offset, item.retries)
			e.retransmit(item)
			e.stats.staleRetransmits.Inc()
		}
		return true
	})
}

// flushFastRetransmits 发送排在队首的快速重传段
func (e *Engine) flushFastRetransmits() {
	for _, offset := range e.retxQueue {
		item, ok := e.pending.Get(&outstanding{offset: offset})
		if !ok {
			continue
		}
		e.log(2, "快速重传: seq=%d", offset)
		e.retransmit(item)
		e.stats.fastRetransmits.Inc()
	}
	e.retxQueue = e.retxQueue[:0]
}

// handleAck 处理确认: 新的累积确认推进窗口, 否则计入重复 ACK
func (e *Engine) handleAck(seg segment.Segment) {
	e.stats.acksReceived.Inc()

	if e.role != RoleSender || len(e.data) == 0 {
		return
	}

	ack := seg.Ack()
	switch {
	case ack > e.cursor:
		e.log(2, "忽略越界 ACK: ack=%d cursor=%d", ack, e.cursor)
		return

	case ack > e.una:
		for {
			item, ok := e.pending.Min()
			if !ok || item.offset >= ack {
				break
			}
			e.pending.DeleteMin()
			e.setInFlight(e.inFlight - item.size)
		}
		e.una = ack

		for offset := range e.dupAcks {
			if offset <= ack {
				delete(e.dupAcks, offset)
			}
		}

	case ack == e.una && e.pending.Len() > 0:
		e.stats.dupAcks.Inc()
		e.dupAcks[ack]++
		if e.dupAcks[ack] >= e.cfg.DupAckThreshold {
			delete(e.dupAcks, ack)
			e.queueFastRetransmit(ack)
		}
	}

	e.applySACK(seg.SACK())
}

// queueFastRetransmit 插入到重传队列首部
func (e *Engine) queueFastRetransmit(offset int) {
	for _, queued := range e.retxQueue {
		if queued == offset {
			return
		}
	}
	e.retxQueue = append([]int{offset}, e.retxQueue...)
}

// applySACK 标记已被接收方缓存的段, 过期重传时跳过
func (e *Engine) applySACK(blocks []segment.Block) {
	for _, b := range blocks {
		if b.End <= b.Start {
			continue
		}
		e.stats.sackedBlocks.Inc()
		e.pending.AscendRange(&outstanding{offset: b.Start}, &outstanding{offset: b.End}, func(item *outstanding) bool {
			if item.offset+item.size <= b.End {
				item.sacked = true
			}
			return true
		})
	}
}

func (e *Engine) setInFlight(n int) {
	e.inFlight = n
	e.stats.inFlight.Store(int64(n))
}
