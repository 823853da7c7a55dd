// =============================================================================
// 文件: internal/rdt/delivery.go
// 描述: RDT 可靠传输 - 交付缓冲 (有序去重的数据重组)
// =============================================================================
package rdt

import (
	"bytes"

	"github.com/mrcgq/rdt/internal/segment"
)

// Stream 按偏移顺序拼接已交付段, 返回当前已接受的前缀
// 无副作用, 可在传输过程中任意调用
func (e *Engine) Stream() []byte {
	var buf bytes.Buffer
	buf.Grow(e.deliveryCursor)

	e.delivered.Ascend(func(seg segment.Segment) bool {
		buf.Write(seg.Payload())
		return true
	})

	return buf.Bytes()
}

// DeliveredSegments 已交付段数量
func (e *Engine) DeliveredSegments() int {
	return e.delivered.Len()
}

// StagedSegments 乱序缓存段数量
func (e *Engine) StagedSegments() int {
	return e.staged.Len()
}
