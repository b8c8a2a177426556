package asr

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// CompressPayload 按指定方法压缩payload
func CompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		return compressGzip(data)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

// DecompressPayload 按指定方法解压缩payload。
// 解压失败返回可恢复的*ProtocolError{DecompressionFailed}：
// 单个损坏的响应帧不应终止一条健康的会话。
func DecompressPayload(data []byte, method CompressionMethod) ([]byte, *ProtocolError) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		result, err := decompressGzip(data)
		if err != nil {
			return nil, newProtocolError(ReasonDecompressionFailed, err)
		}
		return result, nil
	default:
		return nil, newProtocolError(ReasonDecompressionFailed,
			fmt.Errorf("unsupported compression method: %d", method))
	}
}

// EncodeJSONPayload 序列化请求体并压缩，产出FullClientRequest的payload
func EncodeJSONPayload(body any, method CompressionMethod) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	payload, err := CompressPayload(raw, method)
	if err != nil {
		return nil, fmt.Errorf("compress request body: %w", err)
	}
	return payload, nil
}

// DecodeJSONPayload 按帧声明的压缩方法解压并反序列化响应体
func DecodeJSONPayload(msg *Message, out any) *ProtocolError {
	raw, perr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
	if perr != nil {
		perr.Frame = msg
		return perr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Reason: ReasonMalformedHeader, Frame: msg,
			Err: fmt.Errorf("unmarshal response body: %w", err)}
	}
	return nil
}

// compressGzip 使用gzip压缩数据
func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressGzip 使用gzip解压缩数据
func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}

	return result, nil
}
