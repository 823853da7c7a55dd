// =============================================================================
// 文件: internal/segment/segment.go
// 描述: RDT 段 - 不可变段值、校验和、线格式编解码
// =============================================================================
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/google/netstack/tcpip/header"
)

// 线格式:
//
//	Checksum(2) + Len(2) + Seq(4) + Ack(4) + SACKCount(1) + SACK(8*n) + Payload
//
// 校验和覆盖 ProtectedOffset 之后的全部字节 (Seq/Ack/SACK/Payload)
const (
	HeaderSize      = 13
	ProtectedOffset = 4
	BlockSize       = 8

	// MaxSACKBlocks 单个 ACK 最多携带的 SACK 区间
	MaxSACKBlocks = 4

	// None 纯 ACK 段的序列号 / 纯数据段的确认号
	None = -1
)

// Block SACK 区间 [Start, End)
type Block struct {
	Start int
	End   int
}

// Segment 传输单元, 构造后不可修改
type Segment struct {
	seq      int
	ack      int
	blocks   []Block
	payload  []byte
	checksum uint16
}

// NewData 创建纯数据段
func NewData(seq int, payload []byte) Segment {
	return build(seq, None, payload, nil)
}

// NewAck 创建纯确认段 (可附带 SACK 区间)
func NewAck(ack int, blocks ...Block) Segment {
	if len(blocks) > MaxSACKBlocks {
		blocks = blocks[:MaxSACKBlocks]
	}
	return build(None, ack, nil, blocks)
}

// NewDataAck 创建携带确认号的数据段
func NewDataAck(seq int, payload []byte, ack int) Segment {
	return build(seq, ack, payload, nil)
}

func build(seq, ack int, payload []byte, blocks []Block) Segment {
	s := Segment{seq: seq, ack: ack}
	if len(payload) > 0 {
		s.payload = make([]byte, len(payload))
		copy(s.payload, payload)
	}
	if len(blocks) > 0 {
		s.blocks = make([]Block, len(blocks))
		copy(s.blocks, blocks)
	}
	s.checksum = s.compute()
	return s
}

// Seq 序列号 (payload[0] 在流中的字节偏移)
func (s Segment) Seq() int { return s.seq }

// Ack 累积确认号
func (s Segment) Ack() int { return s.ack }

// Payload 返回有效载荷, 调用方不得修改
func (s Segment) Payload() []byte { return s.payload }

// Len 有效载荷长度
func (s Segment) Len() int { return len(s.payload) }

// SACK 选择性确认区间
func (s Segment) SACK() []Block { return s.blocks }

// Checksum 构造时计算 (或线上携带) 的校验和
func (s Segment) Checksum() uint16 { return s.checksum }

// HasData 是否携带数据
func (s Segment) HasData() bool { return s.seq != None }

// IsAck 是否携带确认号
func (s Segment) IsAck() bool { return s.ack != None }

// Valid 重新计算校验和并与携带值比较
func (s Segment) Valid() bool {
	return s.compute() == s.checksum
}

// End 段之后的第一个字节偏移
func (s Segment) End() int {
	return s.seq + len(s.payload)
}

func (s Segment) compute() uint16 {
	buf := s.encode(0)
	return header.Checksum(buf[ProtectedOffset:], 0)
}

// Encode 编码为线格式
func (s Segment) Encode() []byte {
	return s.encode(s.checksum)
}

func (s Segment) encode(checksum uint16) []byte {
	buf := make([]byte, HeaderSize+len(s.blocks)*BlockSize+len(s.payload))

	binary.BigEndian.PutUint16(buf[0:2], checksum)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(s.payload)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(s.seq)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(s.ack)))
	buf[12] = byte(len(s.blocks))

	offset := HeaderSize
	for _, b := range s.blocks {
		binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(int32(b.Start)))
		binary.BigEndian.PutUint32(buf[offset+4:offset+8], uint32(int32(b.End)))
		offset += BlockSize
	}
	copy(buf[offset:], s.payload)

	return buf
}

// Decode 解码线格式, 不校验校验和 (由接收方 Valid 判断)
func Decode(data []byte) (Segment, error) {
	if len(data) < HeaderSize {
		return Segment{}, fmt.Errorf("数据太短: %d < %d", len(data), HeaderSize)
	}

	s := Segment{
		checksum: binary.BigEndian.Uint16(data[0:2]),
		seq:      int(int32(binary.BigEndian.Uint32(data[4:8]))),
		ack:      int(int32(binary.BigEndian.Uint32(data[8:12]))),
	}

	payloadLen := int(binary.BigEndian.Uint16(data[2:4]))
	blockCount := int(data[12])
	if blockCount > MaxSACKBlocks {
		return Segment{}, fmt.Errorf("SACK 区间过多: %d > %d", blockCount, MaxSACKBlocks)
	}

	want := HeaderSize + blockCount*BlockSize + payloadLen
	if len(data) != want {
		return Segment{}, fmt.Errorf("长度不匹配: %d != %d", len(data), want)
	}

	offset := HeaderSize
	for i := 0; i < blockCount; i++ {
		s.blocks = append(s.blocks, Block{
			Start: int(int32(binary.BigEndian.Uint32(data[offset : offset+4]))),
			End:   int(int32(binary.BigEndian.Uint32(data[offset+4 : offset+8]))),
		})
		offset += BlockSize
	}

	if payloadLen > 0 {
		s.payload = make([]byte, payloadLen)
		copy(s.payload, data[offset:])
	}

	return s, nil
}

// String 可比较的文本表示
func (s Segment) String() string {
	str := fmt.Sprintf("seq: %d, ack: %d, data: %s", s.seq, s.ack, s.payload)
	if len(s.blocks) > 0 {
		str += fmt.Sprintf(", sack: %v", s.blocks)
	}
	return str
}

// Less 按 (Seq, Ack) 升序, 用于接收批次排序
func Less(a, b Segment) bool {
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.ack < b.ack
}
