// =============================================================================
// 文件: internal/rdt/types.go
// 描述: RDT 可靠传输 - 常量、配置、角色、统计定义
// =============================================================================
package rdt

import (
	"github.com/pkg/errors"

	"github.com/mrcgq/rdt/internal/segment"
)

// 默认参数
const (
	DefaultMaxSegmentBytes = 4
	DefaultWindowBytes     = 15
	DefaultStaleSegments   = 4
	DefaultDupAckThreshold = 3
)

// 配置错误
var (
	ErrInvalidConfig   = errors.New("无效配置")
	ErrEmptyData       = errors.New("待发送数据为空")
	ErrNotSender       = errors.New("接收方不能设置发送数据")
	ErrTransferStarted = errors.New("传输已开始")
)

// Role 引擎角色, 构造时确定
type Role uint8

const (
	RoleReceiver Role = iota
	RoleSender
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "SENDER"
	case RoleReceiver:
		return "RECEIVER"
	}
	return "UNKNOWN"
}

// Config 引擎配置
type Config struct {
	// MaxSegmentBytes 单段有效载荷上限
	MaxSegmentBytes int
	// WindowBytes 在途 (未确认) 字节上限
	WindowBytes int
	// StaleSegments 过期阈值 K: 逻辑时钟越过段偏移 K 个段长后视为丢失
	StaleSegments int
	// DupAckThreshold 触发快速重传的重复 ACK 数
	DupAckThreshold int
	// EnableSACK 确认段携带乱序缓存区间
	EnableSACK bool
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxSegmentBytes: DefaultMaxSegmentBytes,
		WindowBytes:     DefaultWindowBytes,
		StaleSegments:   DefaultStaleSegments,
		DupAckThreshold: DefaultDupAckThreshold,
		EnableSACK:      true,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MaxSegmentBytes < 1 || c.MaxSegmentBytes > 0xFFFF {
		return errors.Wrapf(ErrInvalidConfig, "max_segment_bytes 需在 1-65535 之间: %d", c.MaxSegmentBytes)
	}
	if c.WindowBytes < c.MaxSegmentBytes {
		return errors.Wrapf(ErrInvalidConfig, "window_bytes (%d) 不能小于一个段 (%d)", c.WindowBytes, c.MaxSegmentBytes)
	}
	if c.StaleSegments < 1 {
		return errors.Wrapf(ErrInvalidConfig, "stale_segments 需大于 0: %d", c.StaleSegments)
	}
	// 一个发送阶段最多推进逻辑时钟 WindowBytes, 必须小于过期阈值,
	// 否则 ACK 返回之前整窗数据就已被判定过期
	if threshold := c.StaleSegments * c.MaxSegmentBytes; c.WindowBytes >= threshold {
		return errors.Wrapf(ErrInvalidConfig, "window_bytes (%d) 需小于过期阈值 stale_segments*max_segment_bytes (%d)",
			c.WindowBytes, threshold)
	}
	if c.DupAckThreshold < 1 {
		return errors.Wrapf(ErrInvalidConfig, "dup_ack_threshold 需大于 0: %d", c.DupAckThreshold)
	}
	return nil
}

// Channel 引擎所需的信道能力
type Channel interface {
	Send(seg segment.Segment)
	Receive() []segment.Segment
	Pending() int
}

// Stats 引擎统计快照
type Stats struct {
	Role  string
	Ticks uint64

	// 发送
	SegmentsSent     uint64
	BytesSent        uint64
	Retransmits      uint64
	FastRetransmits  uint64
	StaleRetransmits uint64
	BytesInFlight    int

	// ACK
	AcksSent     uint64
	AcksReceived uint64
	DupAcks      uint64
	SackedBlocks uint64

	// 接收
	SegmentsReceived uint64
	Corrupted        uint64
	Duplicates       uint64
	OutOfOrder       uint64
	StaleArrivals    uint64
	BytesDelivered   uint64
	DeliveryCursor   int
}
