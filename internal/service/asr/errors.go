package asr

import (
	"errors"
	"fmt"
)

// Reason 协议/会话失败的原因码
type Reason uint8

const (
	// ReasonNone 无错误
	ReasonNone Reason = iota
	// ReasonTruncated 数据不足，帧被截断
	ReasonTruncated
	// ReasonUnsupportedVersion 协议版本不匹配
	ReasonUnsupportedVersion
	// ReasonMalformedHeader 头部字段包含未定义的枚举值
	ReasonMalformedHeader
	// ReasonDecompressionFailed payload解压缩失败
	ReasonDecompressionFailed
	// ReasonInvalidState 当前会话状态不允许该操作
	ReasonInvalidState
	// ReasonTransportClosed 传输层断开
	ReasonTransportClosed
	// ReasonConnectTimeout 建立连接超时
	ReasonConnectTimeout
	// ReasonAckTimeout 等待服务端确认超时
	ReasonAckTimeout
	// ReasonFinalTimeout 等待最终确认超时
	ReasonFinalTimeout
	// ReasonCaptureStarvation 采集侧入队持续超时
	ReasonCaptureStarvation
	// ReasonServerError 服务端返回错误帧或错误码
	ReasonServerError
)

// String 返回原因码的文本表示
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTruncated:
		return "truncated"
	case ReasonUnsupportedVersion:
		return "unsupported_version"
	case ReasonMalformedHeader:
		return "malformed_header"
	case ReasonDecompressionFailed:
		return "decompression_failed"
	case ReasonInvalidState:
		return "invalid_state"
	case ReasonTransportClosed:
		return "transport_closed"
	case ReasonConnectTimeout:
		return "connect_timeout"
	case ReasonAckTimeout:
		return "ack_timeout"
	case ReasonFinalTimeout:
		return "final_timeout"
	case ReasonCaptureStarvation:
		return "capture_starvation"
	case ReasonServerError:
		return "server_error"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// ProtocolError 解码或传输失败的分类错误。
// 单帧解码类错误（Truncated、MalformedHeader、DecompressionFailed）
// 由调用方本地恢复：记录日志后丢弃该帧，会话继续。
// 传输与超时类错误对会话是终止性的。
type ProtocolError struct {
	Reason  Reason
	Frame   *Message // 部分解码的帧，可能为nil
	Code    uint32   // 服务端错误码，仅ReasonServerError时有效
	Message string   // 服务端错误描述，仅ReasonServerError时有效
	Err     error
}

// Error 实现error接口
func (e *ProtocolError) Error() string {
	switch {
	case e.Reason == ReasonServerError && e.Message != "":
		return fmt.Sprintf("asr protocol error (%s): server code %d: %s", e.Reason, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("asr protocol error (%s): %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("asr protocol error (%s)", e.Reason)
	}
}

// Unwrap 返回底层错误
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Recoverable 表示错误是否可以丢帧恢复而无需终止会话
func (e *ProtocolError) Recoverable() bool {
	switch e.Reason {
	case ReasonTruncated, ReasonUnsupportedVersion, ReasonMalformedHeader, ReasonDecompressionFailed:
		return true
	default:
		return false
	}
}

// newProtocolError 构造带原因码的协议错误
func newProtocolError(reason Reason, err error) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}

// ReasonOf 提取错误链中的原因码，非协议错误返回ReasonNone
func ReasonOf(err error) Reason {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Reason
	}
	return ReasonNone
}
