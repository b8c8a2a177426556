package asr

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AudioQueue 采集侧与引擎生产者之间的有界交接队列。
// 队列满时Push阻塞直到超时；持续超时按采集饥饿处理而不是丢数据。
// Close是输入结束信号，与Push并发调用安全。
// 消费端通过Buffers接收，输入结束且余量取完后通道关闭。
type AudioQueue struct {
	ch          chan []byte
	pushTimeout time.Duration

	// 读锁覆盖整个入队过程，Close取写锁后才关闭通道，
	// 保证不会向已关闭的通道发送
	mu        sync.RWMutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewAudioQueue 创建容量为capacity的音频队列
func NewAudioQueue(capacity int, pushTimeout time.Duration) *AudioQueue {
	if capacity <= 0 {
		capacity = 16
	}
	if pushTimeout <= 0 {
		pushTimeout = time.Second
	}

	return &AudioQueue{
		ch:          make(chan []byte, capacity),
		pushTimeout: pushTimeout,
		closed:      make(chan struct{}),
	}
}

// Push 入队一个采集缓冲区，内部持有拷贝，调用方可复用buf。
// 队列满且等待超过pushTimeout时返回CaptureStarvation；
// 输入已结束时返回InvalidState。
func (q *AudioQueue) Push(ctx context.Context, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.closed:
		return newProtocolError(ReasonInvalidState,
			fmt.Errorf("audio queue closed: no audio admitted after end-of-input"))
	default:
	}

	data := make([]byte, len(buf))
	copy(data, buf)

	timer := time.NewTimer(q.pushTimeout)
	defer timer.Stop()

	select {
	case q.ch <- data:
		return nil
	case <-q.closed:
		return newProtocolError(ReasonInvalidState,
			fmt.Errorf("audio queue closed: no audio admitted after end-of-input"))
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return newProtocolError(ReasonCaptureStarvation,
			fmt.Errorf("audio queue full for %s", q.pushTimeout))
	}
}

// Close 发出输入结束信号，可重复调用，与进行中的Push并发安全。
// 先关闭closed解除阻塞中的Push，等它们全部退出后才关闭数据通道。
func (q *AudioQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.mu.Lock()
		close(q.ch)
		q.mu.Unlock()
	})
}

// Closed 返回输入是否已经结束
func (q *AudioQueue) Closed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Buffers 返回消费端通道，输入结束后通道关闭
func (q *AudioQueue) Buffers() <-chan []byte {
	return q.ch
}

// Len 返回当前积压的缓冲区数量
func (q *AudioQueue) Len() int {
	return len(q.ch)
}
