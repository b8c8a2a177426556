package asr

import (
	"bytes"
	"testing"
)

// TestMessageRoundTrip 测试各种消息形态的编解码往返
func TestMessageRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
	}{
		{
			name: "full client request json gzip",
			msg:  NewFullClientRequest([]byte(`{"user":{"uid":"u1"}}`), 1, GzipCompression),
		},
		{
			name: "full client request json no compression",
			msg:  NewFullClientRequest([]byte(`{}`), 1, NoCompression),
		},
		{
			name: "audio only request raw gzip",
			msg:  NewAudioOnlyRequest(bytes.Repeat([]byte{0x01, 0x02}, 3200), 2, GzipCompression),
		},
		{
			name: "audio only request raw no compression",
			msg:  NewAudioOnlyRequest([]byte{0xAA, 0xBB}, 7, NoCompression),
		},
		{
			name: "final audio request negative sequence",
			msg:  NewFinalAudioRequest(-5),
		},
		{
			name: "server response without sequence",
			msg: &Message{
				Header:      NewHeader(FullServerResponse, NoSequence, JSONSerialization, NoCompression),
				PayloadSize: 13,
				Payload:     []byte(`{"code":0}   `),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeMessage(tc.msg)
			if err != nil {
				t.Fatalf("Failed to encode message: %v", err)
			}

			decoded, perr := DecodeMessage(bytes.NewReader(encoded))
			if perr != nil {
				t.Fatalf("Failed to decode message: %v", perr)
			}

			if decoded.Header != tc.msg.Header {
				t.Errorf("Header mismatch: got %+v, want %+v", decoded.Header, tc.msg.Header)
			}
			if decoded.Sequence != tc.msg.Sequence {
				t.Errorf("Sequence mismatch: got %d, want %d", decoded.Sequence, tc.msg.Sequence)
			}
			if !bytes.Equal(decoded.Payload, tc.msg.Payload) {
				t.Errorf("Payload mismatch: got %d bytes, want %d bytes", len(decoded.Payload), len(tc.msg.Payload))
			}
		})
	}
}

// TestDecodeTruncated 测试payload声明长度超过实际字节时返回Truncated
func TestDecodeTruncated(t *testing.T) {
	msg := NewAudioOnlyRequest(make([]byte, 100), 3, NoCompression)
	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("Failed to encode message: %v", err)
	}

	// 砍掉payload的后半部分
	_, perr := DecodeMessage(bytes.NewReader(encoded[:len(encoded)-50]))
	if perr == nil {
		t.Fatal("Expected decode error for truncated frame")
	}
	if perr.Reason != ReasonTruncated {
		t.Errorf("Reason mismatch: got %s, want %s", perr.Reason, ReasonTruncated)
	}
	if !perr.Recoverable() {
		t.Errorf("Truncated should be recoverable")
	}
}

// TestDecodeEmptyInput 测试空输入返回Truncated
func TestDecodeEmptyInput(t *testing.T) {
	_, perr := DecodeMessage(bytes.NewReader(nil))
	if perr == nil || perr.Reason != ReasonTruncated {
		t.Fatalf("Expected Truncated for empty input, got %v", perr)
	}
}

// TestDecodeUnsupportedVersion 测试版本不匹配返回UnsupportedVersion
func TestDecodeUnsupportedVersion(t *testing.T) {
	msg := NewAudioOnlyRequest([]byte{0x01}, 2, NoCompression)
	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("Failed to encode message: %v", err)
	}

	// 版本改为0b0010
	encoded[0] = (0b0010 << 4) | (encoded[0] & 0x0F)

	_, perr := DecodeMessage(bytes.NewReader(encoded))
	if perr == nil || perr.Reason != ReasonUnsupportedVersion {
		t.Fatalf("Expected UnsupportedVersion, got %v", perr)
	}
}

// TestDecodeMalformedHeader 测试未定义的枚举值返回MalformedHeader
func TestDecodeMalformedHeader(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(data []byte)
	}{
		{
			name: "unknown message type",
			mutate: func(data []byte) {
				data[1] = (0b0111 << 4) | (data[1] & 0x0F)
			},
		},
		{
			name: "unknown message flags",
			mutate: func(data []byte) {
				data[1] = (data[1] & 0xF0) | 0b1000
			},
		},
		{
			name: "unknown serialization method",
			mutate: func(data []byte) {
				data[2] = (0b0111 << 4) | (data[2] & 0x0F)
			},
		},
		{
			name: "unknown compression method",
			mutate: func(data []byte) {
				data[2] = (data[2] & 0xF0) | 0b0111
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewAudioOnlyRequest([]byte{0x01, 0x02}, 4, NoCompression)
			encoded, err := EncodeMessage(msg)
			if err != nil {
				t.Fatalf("Failed to encode message: %v", err)
			}

			tc.mutate(encoded)

			_, perr := DecodeMessage(bytes.NewReader(encoded))
			if perr == nil || perr.Reason != ReasonMalformedHeader {
				t.Fatalf("Expected MalformedHeader, got %v", perr)
			}
		})
	}
}

// TestDecodeErrorFrame 测试错误帧额外携带的4字节错误码
func TestDecodeErrorFrame(t *testing.T) {
	payload := []byte(`{"error":"quota exceeded"}`)
	msg := &Message{
		Header:      NewHeader(ErrorResponse, NoSequence, JSONSerialization, NoCompression),
		ErrorCode:   45000001,
		PayloadSize: uint32(len(payload)),
		Payload:     payload,
	}

	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("Failed to encode error frame: %v", err)
	}

	decoded, perr := DecodeMessage(bytes.NewReader(encoded))
	if perr != nil {
		t.Fatalf("Failed to decode error frame: %v", perr)
	}

	if !decoded.IsError() {
		t.Errorf("IsError should be true for error frames")
	}
	if decoded.ErrorCode != 45000001 {
		t.Errorf("Error code mismatch: got %d, want 45000001", decoded.ErrorCode)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("Error payload mismatch")
	}
}

// TestIsLastPacket 测试最后一包标志的判断
func TestIsLastPacket(t *testing.T) {
	final := NewFinalAudioRequest(-2)
	if !final.IsLastPacket() {
		t.Errorf("NegativeSequence frame should be last packet")
	}

	ongoing := NewAudioOnlyRequest([]byte{0x01}, 2, NoCompression)
	if ongoing.IsLastPacket() {
		t.Errorf("PositiveSequence frame should not be last packet")
	}

	noSeqLast := &Message{Header: NewHeader(AudioOnlyRequest, LastPacketNoSequence, RawSerialization, NoCompression)}
	if !noSeqLast.IsLastPacket() {
		t.Errorf("LastPacketNoSequence frame should be last packet")
	}
}

// TestCompressionRoundTrip 测试gzip压缩往返
func TestCompressionRoundTrip(t *testing.T) {
	testData := bytes.Repeat([]byte("streaming speech recognition payload. "), 20)

	compressed, err := CompressPayload(testData, GzipCompression)
	if err != nil {
		t.Fatalf("Failed to compress data: %v", err)
	}
	if len(compressed) >= len(testData) {
		t.Logf("Warning: Compressed size (%d) >= original size (%d)", len(compressed), len(testData))
	}

	decompressed, perr := DecompressPayload(compressed, GzipCompression)
	if perr != nil {
		t.Fatalf("Failed to decompress data: %v", perr)
	}
	if !bytes.Equal(decompressed, testData) {
		t.Errorf("Decompressed data doesn't match original")
	}

	// NoCompression原样透传
	passthrough, perr := DecompressPayload(testData, NoCompression)
	if perr != nil {
		t.Fatalf("NoCompression should pass through: %v", perr)
	}
	if !bytes.Equal(passthrough, testData) {
		t.Errorf("NoCompression should not modify data")
	}
}

// TestDecompressCorrupted 测试损坏数据返回可恢复的DecompressionFailed
func TestDecompressCorrupted(t *testing.T) {
	_, perr := DecompressPayload([]byte("definitely not gzip"), GzipCompression)
	if perr == nil {
		t.Fatal("Expected decompression error for corrupted data")
	}
	if perr.Reason != ReasonDecompressionFailed {
		t.Errorf("Reason mismatch: got %s, want %s", perr.Reason, ReasonDecompressionFailed)
	}
	if !perr.Recoverable() {
		t.Errorf("DecompressionFailed should be recoverable")
	}
}

// TestEncodeJSONPayload 测试请求体序列化加压缩
func TestEncodeJSONPayload(t *testing.T) {
	body := map[string]string{"model_name": "bigmodel"}

	payload, err := EncodeJSONPayload(body, GzipCompression)
	if err != nil {
		t.Fatalf("Failed to encode JSON payload: %v", err)
	}

	raw, perr := DecompressPayload(payload, GzipCompression)
	if perr != nil {
		t.Fatalf("Failed to decompress payload: %v", perr)
	}
	if !bytes.Contains(raw, []byte("bigmodel")) {
		t.Errorf("Decompressed payload should contain original content: %s", raw)
	}
}

// BenchmarkMessageCodec 协议编解码性能基准测试
func BenchmarkMessageCodec(b *testing.B) {
	payload := make([]byte, 6400)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	msg := NewAudioOnlyRequest(payload, 2, NoCompression)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		encoded, _ := EncodeMessage(msg)
		_, _ = DecodeMessage(bytes.NewReader(encoded))
	}
}

// BenchmarkGzipPayload 压缩性能基准测试
func BenchmarkGzipPayload(b *testing.B) {
	data := make([]byte, 6400)
	for i := range data {
		data[i] = byte(i % 16)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		compressed, _ := CompressPayload(data, GzipCompression)
		_, _ = DecompressPayload(compressed, GzipCompression)
	}
}
