// =============================================================================
// 文件: internal/rdt/engine_test.go
// 描述: RDT 可靠传输测试
// =============================================================================
package rdt

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/segment"
)

// fakeChannel 记录发送的段, 由测试直接投递到达段
type fakeChannel struct {
	inbox []segment.Segment
	sent  []segment.Segment
}

func (f *fakeChannel) Send(seg segment.Segment) { f.sent = append(f.sent, seg) }

func (f *fakeChannel) Receive() []segment.Segment {
	out := f.inbox
	f.inbox = nil
	return out
}

func (f *fakeChannel) Pending() int { return len(f.inbox) }

func (f *fakeChannel) push(segs ...segment.Segment) { f.inbox = append(f.inbox, segs...) }

// recorder 包装真实信道并记录经过的段
type recorder struct {
	*channel.Channel
	sent []segment.Segment
}

func (r *recorder) Send(seg segment.Segment) {
	r.sent = append(r.sent, seg)
	r.Channel.Send(seg)
}

func newPair(t *testing.T, cfg *Config, data []byte, toReceiver, toSender Channel) (*Engine, *Engine) {
	t.Helper()

	sender, err := New(cfg, RoleSender, toReceiver, toSender)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData(data); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}
	receiver, err := New(cfg, RoleReceiver, toSender, toReceiver)
	if err != nil {
		t.Fatalf("创建接收方失败: %v", err)
	}
	return sender, receiver
}

// run 驱动双方直到数据完整且发送方收到全部确认, 返回所用节拍
func run(t *testing.T, sender, receiver *Engine, want []byte, maxTicks int) int {
	t.Helper()

	lastCursor := 0
	for tick := 1; tick <= maxTicks; tick++ {
		sender.Tick()
		receiver.Tick()

		if sender.InFlight() > sender.cfg.WindowBytes {
			t.Fatalf("tick %d: 在途字节 %d 超过窗口 %d", tick, sender.InFlight(), sender.cfg.WindowBytes)
		}
		if receiver.Cursor() < lastCursor {
			t.Fatalf("tick %d: 交付游标回退 %d -> %d", tick, lastCursor, receiver.Cursor())
		}
		lastCursor = receiver.Cursor()

		if len(receiver.Stream()) == len(want) && sender.Done() {
			return tick
		}
	}
	t.Fatalf("%d 个节拍内未收敛: got %q, want %q", maxTicks, receiver.Stream(), want)
	return 0
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"默认配置", func(*Config) {}, true},
		{"段长为零", func(c *Config) { c.MaxSegmentBytes = 0 }, false},
		{"窗口小于一个段", func(c *Config) { c.WindowBytes = 3 }, false},
		{"窗口等于一个段", func(c *Config) { c.WindowBytes = 4 }, true},
		{"过期阈值为零", func(c *Config) { c.StaleSegments = 0 }, false},
		{"重复ACK阈值为零", func(c *Config) { c.DupAckThreshold = 0 }, false},
		{"窗口等于过期阈值", func(c *Config) { c.WindowBytes = 16 }, false},
		{"大窗口未放大过期阈值", func(c *Config) { c.WindowBytes = 64 }, false},
		{"大窗口配合更大过期阈值", func(c *Config) {
			c.WindowBytes = 64
			c.StaleSegments = 17
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("期望通过, 得到错误: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("期望配置错误")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("错误应包装 ErrInvalidConfig: %v", err)
				}
			}
		})
	}
}

func TestNewAndSetDataErrors(t *testing.T) {
	ch := &fakeChannel{}

	if _, err := New(nil, RoleSender, nil, ch); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("空信道应返回配置错误: %v", err)
	}

	receiver, err := New(nil, RoleReceiver, ch, ch)
	if err != nil {
		t.Fatalf("创建接收方失败: %v", err)
	}
	if err := receiver.SetData([]byte("X")); !errors.Is(err, ErrNotSender) {
		t.Errorf("接收方设置数据应失败: %v", err)
	}

	sender, err := New(nil, RoleSender, ch, ch)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("空数据应失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCD")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}
	sender.Tick()
	if err := sender.SetData([]byte("EFGH")); !errors.Is(err, ErrTransferStarted) {
		t.Errorf("传输开始后设置数据应失败: %v", err)
	}
}

func TestScenarioNoFaults(t *testing.T) {
	data := []byte("ABCDEFGHIJKL")
	toReceiver := &recorder{Channel: channel.New(channel.Profile{})}
	toSender := channel.New(channel.Profile{})
	sender, receiver := newPair(t, nil, data, toReceiver, toSender)

	sender.Tick()
	if got := len(toReceiver.sent); got != 3 {
		t.Fatalf("窗口应容纳 3 个段: got %d", got)
	}
	receiver.Tick()
	if !bytes.Equal(receiver.Stream(), data) {
		t.Fatalf("第一个节拍后应完整交付: got %q", receiver.Stream())
	}

	ticks := run(t, sender, receiver, data, 10)
	if ticks > 2 {
		t.Errorf("无故障时应在 2 个节拍内完成: got %d", ticks)
	}
	if s := sender.Stats(); s.Retransmits != 0 {
		t.Errorf("无故障时不应重传: got %d", s.Retransmits)
	}
}

func TestScenarioSingleCorruption(t *testing.T) {
	data := []byte("ABCDEFGHIJKL")
	corruptSecond := channel.WithFaultFunc(func(n int, seg segment.Segment) channel.Fault {
		if n == 1 {
			return channel.FaultCorrupt
		}
		return channel.FaultNone
	})
	toReceiver := &recorder{Channel: channel.New(channel.Profile{}, corruptSecond)}
	toSender := &recorder{Channel: channel.New(channel.Profile{})}
	sender, receiver := newPair(t, nil, data, toReceiver, toSender)

	run(t, sender, receiver, data, 50)

	if !bytes.Equal(receiver.Stream(), data) {
		t.Fatalf("数据不一致: got %q, want %q", receiver.Stream(), data)
	}
	if got := receiver.Stats().Corrupted; got != 1 {
		t.Errorf("接收方应检测到 1 个损坏段: got %d", got)
	}

	// 接收方对损坏段回复缺口前的游标
	gapAcks := 0
	for _, seg := range toSender.sent {
		if seg.Ack() == 4 {
			gapAcks++
		}
	}
	if gapAcks < 2 {
		t.Errorf("接收方应重复确认偏移 4: got %d", gapAcks)
	}

	// 发送方重传的正是损坏的偏移
	var resent []int
	for _, seg := range toReceiver.sent[3:] {
		resent = append(resent, seg.Seq())
	}
	if len(resent) == 0 || resent[0] != 4 {
		t.Errorf("应重传偏移 4: got %v", resent)
	}
	for _, seq := range resent {
		if seq == 8 {
			t.Errorf("已被 SACK 的偏移 8 不应重传: %v", resent)
		}
	}
}

func TestScenarioAckLoss(t *testing.T) {
	dropFirst := channel.WithFaultFunc(func(n int, seg segment.Segment) channel.Fault {
		if n == 0 {
			return channel.FaultDrop
		}
		return channel.FaultNone
	})

	t.Run("单段首个ACK丢失", func(t *testing.T) {
		data := []byte("ABCD")
		sender, receiver := newPair(t, nil, data,
			channel.New(channel.Profile{}),
			channel.New(channel.Profile{}, dropFirst))

		run(t, sender, receiver, data, 50)

		if got := sender.Stats().StaleRetransmits; got == 0 {
			t.Error("ACK 丢失后应发生过期重传")
		}
		if got := receiver.Stats().Duplicates; got == 0 {
			t.Error("接收方应把重传识别为重复段")
		}
		if got := receiver.DeliveredSegments(); got != 1 {
			t.Errorf("重复段不应重复交付: got %d", got)
		}
		if !bytes.Equal(receiver.Stream(), data) {
			t.Errorf("数据不一致: got %q", receiver.Stream())
		}
	})

	t.Run("多段首个ACK丢失", func(t *testing.T) {
		data := []byte("ABCDEFGHIJKL")
		sender, receiver := newPair(t, nil, data,
			channel.New(channel.Profile{}),
			channel.New(channel.Profile{}, dropFirst))

		run(t, sender, receiver, data, 50)

		if !bytes.Equal(receiver.Stream(), data) {
			t.Errorf("数据不一致: got %q", receiver.Stream())
		}
	})
}

func TestScenarioReordering(t *testing.T) {
	t.Run("同一批次逆序到达", func(t *testing.T) {
		out, in := &fakeChannel{}, &fakeChannel{}
		receiver, err := New(nil, RoleReceiver, out, in)
		if err != nil {
			t.Fatalf("创建接收方失败: %v", err)
		}

		in.push(segment.NewData(4, []byte("EFGH")), segment.NewData(0, []byte("ABCD")))
		receiver.Tick()

		if receiver.Cursor() != 8 {
			t.Errorf("游标应推进到 8: got %d", receiver.Cursor())
		}
		if receiver.StagedSegments() != 0 {
			t.Errorf("乱序缓存应为空: got %d", receiver.StagedSegments())
		}
		if string(receiver.Stream()) != "ABCDEFGH" {
			t.Errorf("数据不一致: got %q", receiver.Stream())
		}
	})

	t.Run("先到的后续段被缓存后一次性排空", func(t *testing.T) {
		out, in := &fakeChannel{}, &fakeChannel{}
		receiver, err := New(nil, RoleReceiver, out, in)
		if err != nil {
			t.Fatalf("创建接收方失败: %v", err)
		}

		in.push(segment.NewData(4, []byte("EFGH")))
		receiver.Tick()

		if receiver.Cursor() != 0 || receiver.StagedSegments() != 1 {
			t.Fatalf("偏移 4 应被缓存: cursor=%d staged=%d", receiver.Cursor(), receiver.StagedSegments())
		}
		ack := out.sent[len(out.sent)-1]
		if ack.Ack() != 0 {
			t.Errorf("缺口期间应确认游标 0: got %d", ack.Ack())
		}
		if sack := ack.SACK(); len(sack) != 1 || sack[0] != (segment.Block{Start: 4, End: 8}) {
			t.Errorf("SACK 区间不正确: %v", sack)
		}
		if len(receiver.Stream()) != 0 {
			t.Errorf("缓存段不应出现在重组流中: %q", receiver.Stream())
		}

		in.push(segment.NewData(0, []byte("ABCD")))
		receiver.Tick()

		if receiver.Cursor() != 8 {
			t.Errorf("游标应排空到 8: got %d", receiver.Cursor())
		}
		if ack := out.sent[len(out.sent)-1]; ack.Ack() != 8 {
			t.Errorf("排空后应确认 8: got %d", ack.Ack())
		}
	})
}

func TestReceiverDuplicateAndStale(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	receiver, err := New(nil, RoleReceiver, out, in)
	if err != nil {
		t.Fatalf("创建接收方失败: %v", err)
	}

	first := segment.NewData(0, []byte("ABCD"))
	in.push(first, first)
	receiver.Tick()

	stats := receiver.Stats()
	if stats.Duplicates != 1 {
		t.Errorf("应检测到 1 个重复段: got %d", stats.Duplicates)
	}
	if receiver.DeliveredSegments() != 1 {
		t.Errorf("重复段不应重复交付: got %d", receiver.DeliveredSegments())
	}
	if len(out.sent) != 2 {
		t.Fatalf("每个到达段都应回复确认: got %d", len(out.sent))
	}
	for _, ack := range out.sent {
		if ack.Ack() != 4 {
			t.Errorf("确认号应为 4: got %d", ack.Ack())
		}
	}

	// 缓存中的段再次到达同样按重复处理
	staged := segment.NewData(8, []byte("IJKL"))
	in.push(staged)
	receiver.Tick()
	in.push(staged)
	receiver.Tick()
	if receiver.StagedSegments() != 1 {
		t.Errorf("缓存不应包含重复偏移: got %d", receiver.StagedSegments())
	}
	if got := receiver.Stats().Duplicates; got != 2 {
		t.Errorf("重复计数应为 2: got %d", got)
	}
}

func TestReceiverCorruptionReacks(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	receiver, err := New(nil, RoleReceiver, out, in)
	if err != nil {
		t.Fatalf("创建接收方失败: %v", err)
	}

	in.push(segment.NewData(0, []byte("ABCD")))
	receiver.Tick()

	wire := segment.NewData(4, []byte("EFGH")).Encode()
	wire[len(wire)-1] ^= 0xFF
	corrupted, err := segment.Decode(wire)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	in.push(corrupted)
	receiver.Tick()

	if receiver.Stats().Corrupted != 1 {
		t.Errorf("应检测到损坏段")
	}
	if ack := out.sent[len(out.sent)-1]; ack.Ack() != 4 {
		t.Errorf("损坏段应触发对游标 4 的确认: got %d", ack.Ack())
	}
	if receiver.seen.Contains(4) {
		t.Error("损坏段不应进入已接收集合")
	}

	// 之后正确的段仍被接受
	in.push(segment.NewData(4, []byte("EFGH")))
	receiver.Tick()
	if string(receiver.Stream()) != "ABCDEFGH" {
		t.Errorf("数据不一致: got %q", receiver.Stream())
	}
}

func TestSenderWindowAndCumulativeAck(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	sender, err := New(nil, RoleSender, out, in)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCDEFGHIJKLMNOPQRSTUVWX")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}

	sender.Tick()
	if sender.InFlight() != 12 || len(out.sent) != 3 {
		t.Fatalf("首个节拍应发送 3 个段: inflight=%d sent=%d", sender.InFlight(), len(out.sent))
	}

	// 只确认到 8: 偏移 0 和 4 出队
	in.push(segment.NewAck(8))
	sender.Tick()
	if sender.InFlight() != 4 {
		t.Errorf("累积确认后在途应为 4: got %d", sender.InFlight())
	}

	sender.Tick()
	if sender.InFlight() > sender.cfg.WindowBytes {
		t.Errorf("在途字节超过窗口: %d", sender.InFlight())
	}
	for i, seg := range out.sent {
		if seg.Len() > sender.cfg.MaxSegmentBytes {
			t.Errorf("段 %d 超过最大长度: %d", i, seg.Len())
		}
	}
}

func TestSenderLargeWindowNoSpuriousRetransmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowBytes = 60
	cfg.StaleSegments = 16
	data := bytes.Repeat([]byte("ABCD"), 16)

	t.Run("首个节拍只发送新数据", func(t *testing.T) {
		out, in := &fakeChannel{}, &fakeChannel{}
		sender, err := New(cfg, RoleSender, out, in)
		if err != nil {
			t.Fatalf("创建发送方失败: %v", err)
		}
		if err := sender.SetData(data); err != nil {
			t.Fatalf("设置数据失败: %v", err)
		}

		sender.Tick()
		if len(out.sent) != 15 {
			t.Fatalf("首个节拍应发送 15 个段: got %d", len(out.sent))
		}
		for i, seg := range out.sent {
			if seg.Seq() != i*4 {
				t.Fatalf("首个节拍出现重复偏移: %v", out.sent)
			}
		}
		if got := sender.Stats().Retransmits; got != 0 {
			t.Errorf("首个节拍不应重传: got %d", got)
		}

		// ACK 在下一节拍的接收阶段才到达, 其之前的发送阶段也不应重传
		sender.Tick()
		if got := sender.Stats().Retransmits; got != 0 {
			t.Errorf("ACK 返回前不应重传: got %d", got)
		}
	})

	t.Run("无故障完整传输", func(t *testing.T) {
		sender, receiver := newPair(t, cfg, data,
			channel.New(channel.Profile{}), channel.New(channel.Profile{}))
		run(t, sender, receiver, data, 20)
		if got := sender.Stats().Retransmits; got != 0 {
			t.Errorf("无故障时不应重传: got %d", got)
		}
	})

	t.Run("过期阈值不足时拒绝配置", func(t *testing.T) {
		bad := DefaultConfig()
		bad.WindowBytes = 64
		if _, err := New(bad, RoleSender, &fakeChannel{}, &fakeChannel{}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("window_bytes >= 过期阈值应返回 ErrInvalidConfig: %v", err)
		}
	})
}

func TestSenderFastRetransmit(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	sender, err := New(nil, RoleSender, out, in)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCDEFGHIJKLMNOPQRSTUVWX")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}

	sender.Tick() // 0, 4, 8

	// 一个新确认加上 3 个重复确认
	in.push(segment.NewAck(4), segment.NewAck(4), segment.NewAck(4), segment.NewAck(4))
	sender.Tick()

	if got := sender.Stats().DupAcks; got != 3 {
		t.Errorf("重复 ACK 计数应为 3: got %d", got)
	}
	if _, ok := sender.dupAcks[4]; ok {
		t.Error("触发快速重传后计数应清零")
	}

	before := len(out.sent)
	sender.Tick()
	sent := out.sent[before:]
	if len(sent) == 0 || sent[0].Seq() != 4 {
		t.Fatalf("快速重传段应排在最前: got %v", sent)
	}
	if string(sent[0].Payload()) != "EFGH" {
		t.Errorf("重传载荷不正确: got %q", sent[0].Payload())
	}
	if got := sender.Stats().FastRetransmits; got != 1 {
		t.Errorf("快速重传次数应为 1: got %d", got)
	}
}

func TestSenderSkipsSackedOnStaleRetransmit(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	sender, err := New(nil, RoleSender, out, in)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCDEFGHIJKL")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}

	sender.Tick() // 0, 4, 8
	in.push(segment.NewAck(0, segment.Block{Start: 4, End: 12}))

	for i := 0; i < 5; i++ {
		sender.Tick()
	}

	resent := out.sent[3:]
	if len(resent) == 0 {
		t.Fatal("偏移 0 应被过期重传")
	}
	for _, seg := range resent {
		if seg.Seq() != 0 {
			t.Errorf("只应重传未被 SACK 的偏移 0: got %d", seg.Seq())
		}
	}
}

func TestSenderIgnoresCorruptAck(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	sender, err := New(nil, RoleSender, out, in)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCD")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}
	sender.Tick()

	wire := segment.NewAck(4).Encode()
	wire[8] ^= 0x01
	corrupted, err := segment.Decode(wire)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	in.push(corrupted)
	sender.Tick()

	if sender.Done() {
		t.Error("损坏的 ACK 不应确认任何数据")
	}
	if got := sender.Stats().Corrupted; got != 1 {
		t.Errorf("应记录 1 个损坏段: got %d", got)
	}
	if len(out.sent) != 1 {
		t.Errorf("发送方不应对损坏的 ACK 回复: got %d 个段", len(out.sent))
	}
}

func TestDataAckProcessesBothHalves(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	sender, err := New(nil, RoleSender, out, in)
	if err != nil {
		t.Fatalf("创建发送方失败: %v", err)
	}
	if err := sender.SetData([]byte("ABCDEFGH")); err != nil {
		t.Fatalf("设置数据失败: %v", err)
	}

	sender.Tick() // 0, 4
	if sender.InFlight() != 8 {
		t.Fatalf("首个节拍在途应为 8: got %d", sender.InFlight())
	}

	t.Run("有序数据与确认", func(t *testing.T) {
		in.push(segment.NewDataAck(0, []byte("wxyz"), 4))
		sender.Tick()

		if sender.una != 4 || sender.InFlight() != 4 {
			t.Errorf("确认半部应推进窗口: una=%d inflight=%d", sender.una, sender.InFlight())
		}
		if string(sender.Stream()) != "wxyz" || sender.Cursor() != 4 {
			t.Errorf("数据半部应被交付: stream=%q cursor=%d", sender.Stream(), sender.Cursor())
		}
		last := out.sent[len(out.sent)-1]
		if !last.IsAck() || last.Ack() != 4 {
			t.Errorf("收到数据后应回复确认 4: got %s", last)
		}
	})

	t.Run("乱序数据与确认", func(t *testing.T) {
		in.push(segment.NewDataAck(8, []byte("IJKL"), 8))
		sender.Tick()

		if !sender.Done() || sender.InFlight() != 0 {
			t.Errorf("确认 8 后发送方应完成: inflight=%d", sender.InFlight())
		}
		if sender.StagedSegments() != 1 || sender.Cursor() != 4 {
			t.Errorf("偏移 8 应被缓存: staged=%d cursor=%d", sender.StagedSegments(), sender.Cursor())
		}
		if got := sender.Stats().AcksReceived; got != 2 {
			t.Errorf("两个数据确认段都应计入 ACK: got %d", got)
		}
	})
}

func TestStreamIdempotent(t *testing.T) {
	out, in := &fakeChannel{}, &fakeChannel{}
	receiver, err := New(nil, RoleReceiver, out, in)
	if err != nil {
		t.Fatalf("创建接收方失败: %v", err)
	}

	if len(receiver.Stream()) != 0 {
		t.Error("传输开始前应返回空流")
	}

	in.push(segment.NewData(0, []byte("ABCD")), segment.NewData(8, []byte("IJKL")))
	receiver.Tick()

	first := receiver.Stream()
	second := receiver.Stream()
	if !bytes.Equal(first, second) {
		t.Errorf("两次调用结果不同: %q vs %q", first, second)
	}
	if string(first) != "ABCD" {
		t.Errorf("只应返回有序前缀: got %q", first)
	}
}

func TestRoundTripUnderFaults(t *testing.T) {
	profiles := []channel.Profile{
		{DropRate: 0.2},
		{CorruptRate: 0.2, Reorder: true},
		{DuplicateRate: 0.3, DelayRate: 0.3, MaxDelayTicks: 4, Reorder: true},
		{DropRate: 0.15, CorruptRate: 0.15, DuplicateRate: 0.1, DelayRate: 0.2, MaxDelayTicks: 3, Reorder: true},
	}
	sizes := []int{1, 5, 12, 97, 400}

	for pi, profile := range profiles {
		for _, size := range sizes {
			for seed := int64(1); seed <= 3; seed++ {
				name := fmt.Sprintf("profile%d/size%d/seed%d", pi, size, seed)
				t.Run(name, func(t *testing.T) {
					data := make([]byte, size)
					for i := range data {
						data[i] = byte('A' + (i*7+int(seed))%26)
					}

					p := profile
					p.Seed = seed
					toReceiver := channel.New(p)
					p.Seed = seed + 1000
					toSender := channel.New(p)

					sender, receiver := newPair(t, nil, data, toReceiver, toSender)
					run(t, sender, receiver, data, 20000)

					if !bytes.Equal(receiver.Stream(), data) {
						t.Fatalf("数据不一致: got %q, want %q", receiver.Stream(), data)
					}
					wantSegments := (size + DefaultMaxSegmentBytes - 1) / DefaultMaxSegmentBytes
					if got := receiver.DeliveredSegments(); got != wantSegments {
						t.Errorf("交付段数量不正确: got %d, want %d", got, wantSegments)
					}
				})
			}
		}
	}
}

func BenchmarkEngineTransfer(b *testing.B) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 256)
	cfg := DefaultConfig()
	cfg.MaxSegmentBytes = 512
	cfg.WindowBytes = 8192
	cfg.StaleSegments = 17

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		toReceiver := channel.New(channel.Profile{})
		toSender := channel.New(channel.Profile{})
		sender, _ := New(cfg, RoleSender, toReceiver, toSender)
		receiver, _ := New(cfg, RoleReceiver, toSender, toReceiver)
		_ = sender.SetData(data)
		for !sender.Done() {
			sender.Tick()
			receiver.Tick()
		}
	}
}
