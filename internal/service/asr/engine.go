package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tengyuan2025/xiaoyuan-robot/internal/metrics"
	asrmodel "github.com/tengyuan2025/xiaoyuan-robot/internal/model/asr"
)

// Engine 流式识别引擎，端到端驱动一次会话：
// 生产者任务从音频队列取数据、分段、编码并写入传输；
// 消费者任务从传输读帧、解码、分类并发出识别结果。
// 两个任务共享同一条连接，发送只由生产者执行（单写者纪律），
// 序号在传输上严格递增直到唯一的负数终止帧。
// 引擎一次性使用：一个Engine只运行一个会话，失败后需新建。
type Engine struct {
	cfg       *asrmodel.SessionConfig
	opts      ConnectOptions
	logger    *zap.Logger
	metrics   *metrics.Metrics
	sessionID string

	sm      *StateMachine
	counter *SequenceCounter
	conn    *websocket.Conn

	stopCh    chan struct{}
	srvDone   chan struct{} // 消费者收到最终确认后关闭
	stopOnce  sync.Once
	finalOnce sync.Once

	// 以下字段只在单一任务内写入，Run在group.Wait之后读取
	framesSent     int
	framesReceived int
	finalText      string
	audioDuration  int64
}

// NewEngine 创建识别引擎。logger为nil时不输出日志，m为nil时不记录指标。
func NewEngine(cfg *asrmodel.SessionConfig, opts ConnectOptions, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if cfg == nil {
		cfg = asrmodel.DefaultSessionConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ConnectID == "" {
		opts.ConnectID = uuid.NewString()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = cfg.ConnectTimeout
	}

	return &Engine{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		sessionID: opts.ConnectID,
		sm:        NewStateMachine(),
		counter:   NewSequenceCounter(),
		stopCh:    make(chan struct{}),
		srvDone:   make(chan struct{}),
	}
}

// SessionID 返回本次会话的关联标识
func (e *Engine) SessionID() string {
	return e.sessionID
}

// State 返回当前会话状态
func (e *Engine) State() SessionState {
	return e.sm.State()
}

// Stop 请求优雅收尾：不再接纳新音频，发送终止帧后等待最终确认。
// 与队列关闭触发的收尾幂等，终止帧整个会话只发送一次。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

// Run 阻塞运行一个完整会话直到正常结束或失败，
// 识别结果依到达顺序写入results，返回恰好一次的终止结果。
// ctx取消视为硬停止：立即关闭传输并丢弃未发送的音频。
func (e *Engine) Run(ctx context.Context, queue *AudioQueue, results chan<- *asrmodel.RecognitionResult) *asrmodel.SessionOutcome {
	start := time.Now()
	e.metrics.RecordSessionStarted()

	err := e.run(ctx, queue, results)

	outcome := &asrmodel.SessionOutcome{
		SessionID:      e.sessionID,
		FinalText:      e.finalText,
		AudioDuration:  e.audioDuration,
		FramesSent:     e.framesSent,
		FramesReceived: e.framesReceived,
		Elapsed:        time.Since(start),
	}

	if err != nil {
		if prev, failed := e.sm.Fail(); failed {
			e.logger.Warn("会话异常终止",
				zap.String("session", e.sessionID),
				zap.String("state", prev.String()),
				zap.Error(err))
		}

		reason := ReasonOf(err)
		if reason == ReasonNone {
			// 硬取消等非协议错误都归为传输关闭
			reason = ReasonTransportClosed
		}
		outcome.Reason = reason.String()
		outcome.Err = err
	} else {
		outcome.Success = true
		e.logger.Info("会话正常结束",
			zap.String("session", e.sessionID),
			zap.Int("framesSent", e.framesSent),
			zap.Int("framesReceived", e.framesReceived),
			zap.Duration("elapsed", outcome.Elapsed))
	}

	e.metrics.RecordSessionOutcome(outcome.Success, outcome.Reason, outcome.Elapsed.Seconds())
	return outcome
}

// run 建立连接、发送初始请求并驱动生产者与消费者任务
func (e *Engine) run(ctx context.Context, queue *AudioQueue, results chan<- *asrmodel.RecognitionResult) error {
	if err := e.sm.Transition(StateConnecting); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	conn, logid, err := dialSession(dialCtx, e.opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return newProtocolError(ReasonConnectTimeout, err)
		}
		return newProtocolError(ReasonTransportClosed, err)
	}
	e.conn = conn
	defer conn.Close()

	e.logger.Info("识别连接已建立",
		zap.String("session", e.sessionID),
		zap.String("logid", logid))

	if err := e.sendFullRequest(); err != nil {
		return err
	}
	if err := e.sm.Transition(StateAwaitingAck); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	ackCh := make(chan struct{})

	go pingLoop(gctx, conn, e.opts.PingInterval, e.logger)

	// 任一任务出错时关闭连接，解除另一任务的读写阻塞
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	group.Go(func() error {
		return e.consume(gctx, results, ackCh)
	})
	group.Go(func() error {
		return e.produce(gctx, queue, ackCh)
	})

	err = group.Wait()
	close(watchDone)
	return err
}

// sendFullRequest 构建并发送会话初始请求，占用序号1
func (e *Engine) sendFullRequest() error {
	body := asrmodel.NewRequest(e.cfg, e.sessionID)

	payload, err := EncodeJSONPayload(body, GzipCompression)
	if err != nil {
		return err
	}

	seq, err := e.counter.Next()
	if err != nil {
		return err
	}

	msg := NewFullClientRequest(payload, seq, GzipCompression)
	if err := writeFrame(e.conn, msg, e.cfg.WriteTimeout); err != nil {
		return err
	}

	e.framesSent++
	e.metrics.RecordFrameSent()
	return nil
}

// produce 生产者任务：队列 → 分段 → 编码 → 传输。
// 输入结束或Stop请求都收敛到一次幂等的finalize。
func (e *Engine) produce(ctx context.Context, queue *AudioQueue, ackCh <-chan struct{}) error {
	// 服务端接受会话之前不上行音频
	select {
	case <-ackCh:
	case <-e.stopCh:
		// 停止请求先于接受到达：等接受后立即收尾
		select {
		case <-ackCh:
		case <-e.srvDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-e.srvDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	segmenter, err := NewSegmenter(e.cfg.SegmentDurationMs, e.cfg.SampleRate, e.cfg.Bits, e.cfg.Channels)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.srvDone:
			// 服务端先行判停，会话已正常关闭
			return nil
		case <-e.stopCh:
			return e.finalize(segmenter)
		case buf, ok := <-queue.Buffers():
			if !ok {
				// 采集方发出输入结束信号
				return e.finalize(segmenter)
			}
			e.metrics.SetQueueDepth(queue.Len())

			for _, seg := range segmenter.Write(buf) {
				if err := e.sendSegment(seg); err != nil {
					if e.sm.State() == StateClosed {
						return nil
					}
					return err
				}
			}
		}
	}
}

// sendSegment 发送一个音频分段
func (e *Engine) sendSegment(seg Segment) error {
	if err := e.sm.EnsureStreaming(); err != nil {
		return err
	}

	seq, err := e.counter.Next()
	if err != nil {
		return err
	}

	compressed, err := CompressPayload(seg.Data, GzipCompression)
	if err != nil {
		return fmt.Errorf("compress audio segment %d: %w", seg.Index, err)
	}

	msg := NewAudioOnlyRequest(compressed, seq, GzipCompression)
	if err := writeFrame(e.conn, msg, e.cfg.WriteTimeout); err != nil {
		return err
	}

	e.framesSent++
	e.metrics.RecordFrameSent()
	e.metrics.RecordSegmentProduced()
	return nil
}

// finalize 发送唯一的负数序号终止帧。
// Stop请求与输入结束可能先后触发，sync.Once保证终止帧只发一次。
func (e *Engine) finalize(segmenter *Segmenter) error {
	var ferr error
	e.finalOnce.Do(func() {
		if e.sm.State().Terminal() {
			// 服务端已先行关闭，没有可收尾的流
			return
		}

		if tail := segmenter.Flush(); tail != nil {
			if err := e.sendSegment(*tail); err != nil {
				ferr = err
				return
			}
		}

		seq, err := e.counter.Finalize()
		if err != nil {
			ferr = err
			return
		}
		if err := e.sm.Transition(StateFinalizing); err != nil {
			ferr = err
			return
		}

		msg := NewFinalAudioRequest(seq)
		if err := writeFrame(e.conn, msg, e.cfg.WriteTimeout); err != nil {
			ferr = err
			return
		}

		e.framesSent++
		e.metrics.RecordFrameSent()

		// 消费者可能正阻塞在流式阶段设置的读超时上，
		// 终止帧发出后立即把读超时收窄到最终确认宽限期
		if err := e.conn.SetReadDeadline(time.Now().Add(e.cfg.FinalTimeout)); err != nil {
			e.logger.Debug("set final read deadline failed", zap.Error(err))
		}

		e.logger.Info("已发送流结束帧",
			zap.String("session", e.sessionID),
			zap.Int32("sequence", seq))
	})

	if ferr != nil && e.sm.State() == StateClosed {
		// 与服务端先行判停竞争产生的收尾错误，会话已正常结束
		ferr = nil
	}
	return ferr
}

// consume 消费者任务：传输 → 解码 → 分类 → 结果事件。
// 单帧解码失败只丢弃该帧；传输级错误终止会话。
func (e *Engine) consume(ctx context.Context, results chan<- *asrmodel.RecognitionResult, ackCh chan struct{}) error {
	for {
		if err := e.conn.SetReadDeadline(time.Now().Add(e.readTimeout())); err != nil {
			return newProtocolError(ReasonTransportClosed, err)
		}

		_, data, err := e.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return e.classifyReadError(err)
		}
		e.framesReceived++
		e.metrics.RecordFrameReceived()

		msg, perr := DecodeMessage(bytes.NewReader(data))
		if perr != nil {
			e.logger.Warn("丢弃无法解码的帧",
				zap.String("session", e.sessionID),
				zap.String("reason", perr.Reason.String()),
				zap.Error(perr))
			e.metrics.RecordDecodeError()
			continue
		}

		switch msg.Header.MessageType {
		case ErrorResponse:
			return e.serverError(msg)
		case FullServerResponse:
			done, err := e.handleResponse(ctx, msg, results, ackCh)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		default:
			// 音频确认等其他类型直接忽略
			e.metrics.RecordFrameSkipped()
		}
	}
}

// handleResponse 处理一条识别响应，返回done=true表示收到最终确认
func (e *Engine) handleResponse(ctx context.Context, msg *Message, results chan<- *asrmodel.RecognitionResult, ackCh chan struct{}) (bool, error) {
	var resp asrmodel.Response
	if perr := DecodeJSONPayload(msg, &resp); perr != nil {
		e.logger.Warn("丢弃payload损坏的响应帧",
			zap.String("session", e.sessionID),
			zap.String("reason", perr.Reason.String()),
			zap.Error(perr))
		e.metrics.RecordDecodeError()
		return false, nil
	}

	if !resp.OK() {
		return false, &ProtocolError{
			Reason:  ReasonServerError,
			Code:    uint32(resp.Code),
			Message: resp.Message,
		}
	}

	// 首条正常响应即服务端接受，进入Streaming并放行生产者
	if e.sm.State() == StateAwaitingAck {
		if err := e.sm.Transition(StateStreaming); err != nil {
			return false, err
		}
		close(ackCh)
		e.logger.Info("会话已被服务端接受", zap.String("session", e.sessionID))
	}

	if resp.AudioInfo.Duration > 0 {
		e.audioDuration = resp.AudioInfo.Duration
	}

	if result := e.classifyResult(msg, &resp); result != nil {
		if result.IsFinal {
			e.finalText = result.Text
		}
		select {
		case results <- result:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	if msg.IsLastPacket() || resp.Sequence < 0 {
		// 最终确认。一步完成关闭，生产者并发收尾时
		// 只会观察到Streaming或Closed，不会夹在中间
		if err := e.sm.CloseStreaming(); err != nil {
			return false, err
		}
		close(e.srvDone)
		return true, nil
	}

	return false, nil
}

// classifyResult 将响应分类为临时或最终识别结果，无文本时返回nil
func (e *Engine) classifyResult(msg *Message, resp *asrmodel.Response) *asrmodel.RecognitionResult {
	text := resp.Result.Text
	if text == "" && len(resp.Result.Utterances) > 0 {
		var builder bytes.Buffer
		for _, u := range resp.Result.Utterances {
			builder.WriteString(u.Text)
		}
		text = builder.String()
	}
	if text == "" {
		return nil
	}

	final := msg.IsLastPacket() || resp.Sequence < 0
	for _, u := range resp.Result.Utterances {
		if u.Definite {
			final = true
			break
		}
	}

	return &asrmodel.RecognitionResult{
		SessionID:  e.sessionID,
		Text:       text,
		IsFinal:    final,
		Utterances: resp.Result.Utterances,
		CreatedAt:  time.Now(),
	}
}

// serverError 将服务端错误帧转换为终止性协议错误
func (e *Engine) serverError(msg *Message) error {
	message := string(msg.Payload)
	if payload, perr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod); perr == nil {
		message = string(payload)
	}

	return &ProtocolError{
		Reason:  ReasonServerError,
		Frame:   msg,
		Code:    msg.ErrorCode,
		Message: message,
	}
}

// readTimeout 按会话阶段选择读超时：
// 等待接受、等待最终确认、正常流式各自独立
func (e *Engine) readTimeout() time.Duration {
	switch e.sm.State() {
	case StateAwaitingAck:
		return e.cfg.AckTimeout
	case StateFinalizing:
		return e.cfg.FinalTimeout
	default:
		return e.cfg.ReadTimeout
	}
}

// classifyReadError 区分读超时与传输断开，超时按阶段给出原因码
func (e *Engine) classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		switch e.sm.State() {
		case StateAwaitingAck:
			return newProtocolError(ReasonAckTimeout, err)
		case StateFinalizing:
			return newProtocolError(ReasonFinalTimeout, err)
		}
	}
	return newProtocolError(ReasonTransportClosed, err)
}
