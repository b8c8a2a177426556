package asr

import (
	"fmt"
	"sync"
)

// Segment 一个固定时长的音频分段，对应一条AudioOnlyRequest消息
type Segment struct {
	Index int    // 从1开始的分段序号，按采集顺序递增
	Data  []byte // 原始PCM字节
}

// Segmenter 将任意大小的采集缓冲区累积为固定时长的音频分段。
// 不足一段的余量滚动到下一段，不丢弃也不重采样。
type Segmenter struct {
	segmentBytes int
	buf          []byte
	nextIndex    int
}

// NewSegmenter 创建分段器。
// 每段字节数 = 时长(ms) × 采样率 / 1000 × 位深/8 × 声道数，
// 200ms@16kHz/16bit/单声道即6400字节。
func NewSegmenter(segmentDurationMs, sampleRate, bits, channels int) (*Segmenter, error) {
	if segmentDurationMs <= 0 || sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid segmenter parameters: duration=%dms rate=%d channels=%d",
			segmentDurationMs, sampleRate, channels)
	}
	if bits%8 != 0 || bits <= 0 {
		return nil, fmt.Errorf("invalid sample bit depth: %d", bits)
	}

	segmentBytes := segmentDurationMs * sampleRate / 1000 * bits / 8 * channels
	if segmentBytes <= 0 {
		return nil, fmt.Errorf("segment size too small: %d bytes", segmentBytes)
	}

	return &Segmenter{
		segmentBytes: segmentBytes,
		nextIndex:    1,
	}, nil
}

// SegmentBytes 返回单个分段的字节数
func (s *Segmenter) SegmentBytes() int {
	return s.segmentBytes
}

// Write 追加一个采集缓冲区，返回由此凑满的所有完整分段。
// 返回的分段持有独立拷贝，调用方可以复用p。
func (s *Segmenter) Write(p []byte) []Segment {
	s.buf = append(s.buf, p...)

	var segments []Segment
	for len(s.buf) >= s.segmentBytes {
		data := make([]byte, s.segmentBytes)
		copy(data, s.buf[:s.segmentBytes])
		s.buf = s.buf[s.segmentBytes:]

		segments = append(segments, Segment{Index: s.nextIndex, Data: data})
		s.nextIndex++
	}
	return segments
}

// Flush 在输入结束时取出不足一段的尾部余量，没有余量时返回nil
func (s *Segmenter) Flush() *Segment {
	if len(s.buf) == 0 {
		return nil
	}

	data := make([]byte, len(s.buf))
	copy(data, s.buf)
	s.buf = nil

	seg := &Segment{Index: s.nextIndex, Data: data}
	s.nextIndex++
	return seg
}

// Buffered 返回当前累积但尚未凑满一段的字节数
func (s *Segmenter) Buffered() int {
	return len(s.buf)
}

// SequenceCounter 产生严格递增的请求序号。
// 从1开始逐一递增；Finalize返回标记流结束的负数终止序号，
// 之后计数器作废，任何调用都返回InvalidState。
type SequenceCounter struct {
	mu        sync.Mutex
	next      int32
	finalized bool
}

// NewSequenceCounter 创建序号计数器，首个序号为1
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{next: 1}
}

// Next 返回下一个正数序号
func (c *SequenceCounter) Next() (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return 0, newProtocolError(ReasonInvalidState,
			fmt.Errorf("sequence counter already finalized"))
	}

	seq := c.next
	c.next++
	return seq, nil
}

// Finalize 返回终止序号：下一个序号的相反数。只允许调用一次。
func (c *SequenceCounter) Finalize() (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return 0, newProtocolError(ReasonInvalidState,
			fmt.Errorf("sequence counter already finalized"))
	}

	c.finalized = true
	return -c.next, nil
}

// Finalized 返回计数器是否已经终止
func (c *SequenceCounter) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}
