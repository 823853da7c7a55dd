// =============================================================================
// 文件: internal/harness/harness.go
// 描述: 传输驱动 - 在两条不可靠信道上驱动收发双方并校验结果
// =============================================================================
package harness

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/logging"
	"github.com/mrcgq/rdt/internal/rdt"
)

// DefaultMaxTicks 默认最大节拍数
const DefaultMaxTicks = 100000

var (
	ErrNotConverged = errors.New("传输未收敛")
	ErrMismatch     = errors.New("接收数据与原始数据不一致")
)

// Options 传输参数
type Options struct {
	Engine   *rdt.Config
	Channel  channel.Profile
	MaxTicks int
	Logger   *zap.Logger

	// OnTransfer 每次传输创建后回调 (用于注册指标)
	OnTransfer func(trial int, tr *Transfer)
	// OnFinish 每次传输结束后回调 (并发调用), err 为 Run 的返回值
	OnFinish func(res *Result, err error)
}

// Result 单次传输结果
type Result struct {
	Trial     int
	Ticks     int
	Converged bool
	Received  []byte

	Sender   rdt.Stats
	Receiver rdt.Stats
	Forward  channel.Stats
	Backward channel.Stats
}

// Transfer 一次单向传输: 发送方 -> forward -> 接收方 -> backward -> 发送方
type Transfer struct {
	trial    int
	data     []byte
	maxTicks int
	ticks    int

	sender   *rdt.Engine
	receiver *rdt.Engine
	forward  *channel.Channel
	backward *channel.Channel

	logger *zap.SugaredLogger
}

// NewTransfer 创建传输, 配置错误立即返回
func NewTransfer(trial int, data []byte, opts Options) (*Transfer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	maxTicks := opts.MaxTicks
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}

	fwd := opts.Channel
	fwd.Seed = opts.Channel.Seed + int64(trial)*2
	bwd := opts.Channel
	bwd.Seed = fwd.Seed + 1

	tr := &Transfer{
		trial:    trial,
		data:     data,
		maxTicks: maxTicks,
		forward:  channel.New(fwd),
		backward: channel.New(bwd),
		logger:   logger.Sugar().With("trial", trial),
	}

	var err error
	tr.sender, err = rdt.New(opts.Engine, rdt.RoleSender, tr.forward, tr.backward, rdt.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "创建发送方失败")
	}
	if err := tr.sender.SetData(data); err != nil {
		return nil, errors.Wrap(err, "设置发送数据失败")
	}
	tr.receiver, err = rdt.New(opts.Engine, rdt.RoleReceiver, tr.backward, tr.forward, rdt.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "创建接收方失败")
	}

	return tr, nil
}

// Sender 发送方引擎
func (t *Transfer) Sender() *rdt.Engine { return t.sender }

// Receiver 接收方引擎
func (t *Transfer) Receiver() *rdt.Engine { return t.receiver }

// Forward 发送方到接收方的信道
func (t *Transfer) Forward() *channel.Channel { return t.forward }

// Backward 接收方到发送方的信道
func (t *Transfer) Backward() *channel.Channel { return t.backward }

// Step 推进一个节拍: 先发送方后接收方
func (t *Transfer) Step() {
	t.ticks++
	t.sender.Tick()
	t.receiver.Tick()
}

// Complete 接收方已重组出全部数据, 且发送方已收到全部确认
func (t *Transfer) Complete() bool {
	return t.receiver.Cursor() >= len(t.data) && t.sender.Done()
}

// Run 驱动直到完成、超出最大节拍或 ctx 取消
func (t *Transfer) Run(ctx context.Context) (*Result, error) {
	for !t.Complete() {
		if t.ticks >= t.maxTicks {
			res := t.result()
			return res, errors.Wrapf(ErrNotConverged, "%d 个节拍后收到 %d/%d 字节",
				t.ticks, len(res.Received), len(t.data))
		}
		if err := ctx.Err(); err != nil {
			return t.result(), err
		}
		t.Step()
	}

	res := t.result()
	if !res.Converged {
		return res, ErrMismatch
	}

	t.logger.Infof("传输完成: %d 字节, %d 个节拍, 重传 %d (快速 %d), 损坏 %d, 重复 %d",
		len(t.data), t.ticks, res.Sender.Retransmits, res.Sender.FastRetransmits,
		res.Receiver.Corrupted, res.Receiver.Duplicates)

	return res, nil
}

func (t *Transfer) result() *Result {
	received := t.receiver.Stream()
	return &Result{
		Trial:     t.trial,
		Ticks:     t.ticks,
		Converged: bytes.Equal(received, t.data),
		Received:  received,
		Sender:    t.sender.Stats(),
		Receiver:  t.receiver.Stats(),
		Forward:   t.forward.Stats(),
		Backward:  t.backward.Stats(),
	}
}

// RunTrials 并发执行多次独立传输, 每次使用不同的信道种子
func RunTrials(ctx context.Context, data []byte, trials int, opts Options) ([]*Result, error) {
	if trials < 1 {
		return nil, errors.Errorf("trials 需大于 0: %d", trials)
	}

	transfers := make([]*Transfer, trials)
	for i := range transfers {
		tr, err := NewTransfer(i, data, opts)
		if err != nil {
			return nil, err
		}
		if opts.OnTransfer != nil {
			opts.OnTransfer(i, tr)
		}
		transfers[i] = tr
	}

	results := make([]*Result, trials)
	g, ctx := errgroup.WithContext(ctx)
	for i, tr := range transfers {
		i, tr := i, tr
		g.Go(func() error {
			res, err := tr.Run(ctx)
			results[i] = res
			if opts.OnFinish != nil {
				opts.OnFinish(res, err)
			}
			if err != nil {
				return errors.Wrapf(err, "trial %d", i)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
