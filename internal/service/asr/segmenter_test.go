package asr

import (
	"bytes"
	"testing"
)

// TestSegmenterFixedSize 测试200ms@16kHz/16bit/单声道的分段大小
func TestSegmenterFixedSize(t *testing.T) {
	seg, err := NewSegmenter(200, 16000, 16, 1)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	if seg.SegmentBytes() != 6400 {
		t.Errorf("Segment size mismatch: got %d, want 6400", seg.SegmentBytes())
	}
}

// TestSegmenterInvalidParams 测试非法参数被拒绝
func TestSegmenterInvalidParams(t *testing.T) {
	cases := []struct {
		name                             string
		durationMs, rate, bits, channels int
	}{
		{"zero duration", 0, 16000, 16, 1},
		{"zero sample rate", 200, 0, 16, 1},
		{"zero channels", 200, 16000, 16, 0},
		{"non-byte-aligned bits", 200, 16000, 12, 1},
		{"zero bits", 200, 16000, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSegmenter(tc.durationMs, tc.rate, tc.bits, tc.channels); err == nil {
				t.Errorf("Expected error for parameters %+v", tc)
			}
		})
	}
}

// TestSegmenterConservation 测试任意切分下样本不丢不重且顺序不变
func TestSegmenterConservation(t *testing.T) {
	seg, err := NewSegmenter(200, 16000, 16, 1)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	// 构造有内容可校验的输入：600ms整加半段余量
	total := 6400*3 + 3200
	input := make([]byte, total)
	for i := range input {
		input[i] = byte(i % 251)
	}

	// 按不规则大小写入，覆盖跨段与小于一段的情况
	chunks := []int{100, 6400, 7000, 1, 3299, 5600}
	var produced []Segment
	offset := 0
	for _, n := range chunks {
		produced = append(produced, seg.Write(input[offset:offset+n])...)
		offset += n
	}
	if offset != total {
		t.Fatalf("Test setup error: consumed %d of %d bytes", offset, total)
	}

	if tail := seg.Flush(); tail != nil {
		produced = append(produced, *tail)
	}

	var reassembled []byte
	for i, s := range produced {
		if s.Index != i+1 {
			t.Errorf("Segment index mismatch: got %d, want %d", s.Index, i+1)
		}
		reassembled = append(reassembled, s.Data...)
	}

	if !bytes.Equal(reassembled, input) {
		t.Errorf("Reassembled output doesn't match input: got %d bytes, want %d bytes",
			len(reassembled), len(input))
	}

	// 前三段必须是完整段，尾段承接余量
	for i := 0; i < 3; i++ {
		if len(produced[i].Data) != 6400 {
			t.Errorf("Segment %d size mismatch: got %d, want 6400", i+1, len(produced[i].Data))
		}
	}
	if len(produced) != 4 || len(produced[3].Data) != 3200 {
		t.Errorf("Expected 4 segments with 3200-byte tail, got %d segments", len(produced))
	}
}

// TestSegmenterThreeBuffers 测试三个200ms缓冲区恰好产出三个等长分段
func TestSegmenterThreeBuffers(t *testing.T) {
	seg, err := NewSegmenter(200, 16000, 16, 1)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	var produced []Segment
	for i := 0; i < 3; i++ {
		produced = append(produced, seg.Write(make([]byte, 6400))...)
	}

	if len(produced) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(produced))
	}
	for i, s := range produced {
		if s.Index != i+1 {
			t.Errorf("Segment index mismatch: got %d, want %d", s.Index, i+1)
		}
		if len(s.Data) != 6400 {
			t.Errorf("Segment %d size mismatch: got %d, want 6400", s.Index, len(s.Data))
		}
	}
	if tail := seg.Flush(); tail != nil {
		t.Errorf("No remainder expected, got %d bytes", len(tail.Data))
	}
}

// TestSegmenterWriteCopies 测试返回的分段不引用调用方缓冲区
func TestSegmenterWriteCopies(t *testing.T) {
	seg, err := NewSegmenter(200, 16000, 16, 1)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	buf := bytes.Repeat([]byte{0x42}, 6400)
	segments := seg.Write(buf)
	if len(segments) != 1 {
		t.Fatalf("Expected exactly one segment, got %d", len(segments))
	}

	// 复用调用方缓冲区不应影响已产出的分段
	for i := range buf {
		buf[i] = 0x00
	}
	if segments[0].Data[0] != 0x42 {
		t.Errorf("Segment data should be an independent copy")
	}
}

// TestSegmenterFlushEmpty 测试无余量时Flush返回nil
func TestSegmenterFlushEmpty(t *testing.T) {
	seg, err := NewSegmenter(200, 16000, 16, 1)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	if tail := seg.Flush(); tail != nil {
		t.Errorf("Flush on empty segmenter should return nil, got %+v", tail)
	}

	seg.Write(make([]byte, 6400))
	if seg.Buffered() != 0 {
		t.Errorf("Buffered should be 0 after exact segment, got %d", seg.Buffered())
	}
	if tail := seg.Flush(); tail != nil {
		t.Errorf("Flush after exact segment should return nil")
	}
}

// TestSequenceCounter 测试序号从1严格递增
func TestSequenceCounter(t *testing.T) {
	counter := NewSequenceCounter()

	for want := int32(1); want <= 5; want++ {
		seq, err := counter.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if seq != want {
			t.Errorf("Sequence mismatch: got %d, want %d", seq, want)
		}
	}
}

// TestSequenceCounterFinalize 测试终止序号为下一序号的相反数且只发一次
func TestSequenceCounterFinalize(t *testing.T) {
	counter := NewSequenceCounter()

	// 消耗序号1、2、3
	for i := 0; i < 3; i++ {
		if _, err := counter.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}

	final, err := counter.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if final != -4 {
		t.Errorf("Final sequence mismatch: got %d, want -4", final)
	}
	if !counter.Finalized() {
		t.Errorf("Finalized should report true after Finalize")
	}

	// 终止之后计数器作废
	if _, err := counter.Next(); ReasonOf(err) != ReasonInvalidState {
		t.Errorf("Next after Finalize should return InvalidState, got %v", err)
	}
	if _, err := counter.Finalize(); ReasonOf(err) != ReasonInvalidState {
		t.Errorf("Second Finalize should return InvalidState, got %v", err)
	}
}
