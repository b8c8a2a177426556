package asr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 二进制协议版本
const ProtocolVersion = 0b0001

// headerSizeWords 固定头部长度，单位为4字节
const headerSizeWords = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	// FullClientRequest 携带会话参数的完整客户端请求
	FullClientRequest MessageType = 0b0001
	// AudioOnlyRequest 只携带音频数据的请求
	AudioOnlyRequest MessageType = 0b0010
	// FullServerResponse 服务端返回的识别结果响应
	FullServerResponse MessageType = 0b1001
	// ServerAck 服务端音频确认
	ServerAck MessageType = 0b1011
	// ErrorResponse 服务端错误消息
	ErrorResponse MessageType = 0b1111
)

// MessageFlags 消息标志，决定header后4字节是否为sequence number
type MessageFlags uint8

const (
	// NoSequence header后不携带sequence number
	NoSequence MessageFlags = 0b0000
	// PositiveSequence header后4字节为正数sequence number
	PositiveSequence MessageFlags = 0b0001
	// LastPacketNoSequence 最后一包，不携带sequence number
	LastPacketNoSequence MessageFlags = 0b0010
	// NegativeSequence 最后一包，header后4字节为负数sequence number
	NegativeSequence MessageFlags = 0b0011
)

// SerializationMethod payload序列化方法
type SerializationMethod uint8

const (
	// RawSerialization 无序列化，payload为原始字节
	RawSerialization SerializationMethod = 0b0000
	// JSONSerialization JSON序列化
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod payload压缩方法
type CompressionMethod uint8

const (
	// NoCompression 无压缩
	NoCompression CompressionMethod = 0b0000
	// GzipCompression Gzip压缩
	GzipCompression CompressionMethod = 0b0001
)

// Header 4字节消息头
type Header struct {
	ProtocolVersion     uint8               // 4 bits
	HeaderSize          uint8               // 4 bits，单位为4字节
	MessageType         MessageType         // 4 bits
	MessageFlags        MessageFlags        // 4 bits
	SerializationMethod SerializationMethod // 4 bits
	CompressionMethod   CompressionMethod   // 4 bits
	Reserved            uint8               // 8 bits
}

// Message 一条完整的协议消息
type Message struct {
	Header      Header
	Sequence    int32 // 仅当MessageFlags携带sequence时有效
	ErrorCode   uint32
	PayloadSize uint32
	Payload     []byte
}

// NewHeader 创建固定长度的消息头
func NewHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          headerSizeWords,
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
		Reserved:            0x00,
	}
}

// Encode 编码消息头为4字节
func (h *Header) Encode() []byte {
	buf := make([]byte, 4)
	buf[0] = (h.ProtocolVersion << 4) | h.HeaderSize
	buf[1] = (uint8(h.MessageType) << 4) | uint8(h.MessageFlags)
	buf[2] = (uint8(h.SerializationMethod) << 4) | uint8(h.CompressionMethod)
	buf[3] = h.Reserved
	return buf
}

// decodeHeader 从4字节解码并校验消息头
func decodeHeader(data []byte) (*Header, *ProtocolError) {
	if len(data) < 4 {
		return nil, newProtocolError(ReasonTruncated,
			fmt.Errorf("header data too short: got %d, need 4", len(data)))
	}

	header := &Header{
		ProtocolVersion:     (data[0] >> 4) & 0x0F,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType((data[1] >> 4) & 0x0F),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod((data[2] >> 4) & 0x0F),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}

	if header.ProtocolVersion != ProtocolVersion {
		return nil, newProtocolError(ReasonUnsupportedVersion,
			fmt.Errorf("unsupported protocol version: %d", header.ProtocolVersion))
	}
	if header.HeaderSize == 0 {
		return nil, newProtocolError(ReasonMalformedHeader,
			fmt.Errorf("invalid header size: 0"))
	}

	switch header.MessageType {
	case FullClientRequest, AudioOnlyRequest, FullServerResponse, ServerAck, ErrorResponse:
	default:
		return nil, newProtocolError(ReasonMalformedHeader,
			fmt.Errorf("unknown message type: %#04b", uint8(header.MessageType)))
	}

	switch header.MessageFlags {
	case NoSequence, PositiveSequence, LastPacketNoSequence, NegativeSequence:
	default:
		return nil, newProtocolError(ReasonMalformedHeader,
			fmt.Errorf("unknown message flags: %#04b", uint8(header.MessageFlags)))
	}

	switch header.SerializationMethod {
	case RawSerialization, JSONSerialization:
	default:
		return nil, newProtocolError(ReasonMalformedHeader,
			fmt.Errorf("unknown serialization method: %#04b", uint8(header.SerializationMethod)))
	}

	switch header.CompressionMethod {
	case NoCompression, GzipCompression:
	default:
		return nil, newProtocolError(ReasonMalformedHeader,
			fmt.Errorf("unknown compression method: %#04b", uint8(header.CompressionMethod)))
	}

	return header, nil
}

// hasSequence 标志位是否要求携带sequence number
func (f MessageFlags) hasSequence() bool {
	return f == PositiveSequence || f == NegativeSequence
}

// EncodeMessage 编码完整消息
func EncodeMessage(msg *Message) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.Write(msg.Header.Encode())

	if msg.Header.MessageFlags.hasSequence() {
		seqBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(seqBytes, uint32(msg.Sequence))
		buf.Write(seqBytes)
	}

	if msg.Header.MessageType == ErrorResponse {
		codeBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(codeBytes, msg.ErrorCode)
		buf.Write(codeBytes)
	}

	sizeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeBytes, uint32(len(msg.Payload)))
	buf.Write(sizeBytes)

	if len(msg.Payload) > 0 {
		buf.Write(msg.Payload)
	}

	return buf.Bytes(), nil
}

// DecodeMessage 解码完整消息。
// 所有解码失败都以*ProtocolError返回而不panic：数据不足返回Truncated，
// 版本不匹配返回UnsupportedVersion，未定义的枚举值返回MalformedHeader。
// 调用方可以据此选择丢帧、记录或终止。
func DecodeMessage(reader io.Reader) (*Message, *ProtocolError) {
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, newProtocolError(ReasonTruncated, fmt.Errorf("read header: %w", err))
	}

	header, perr := decodeHeader(headerBytes)
	if perr != nil {
		return nil, perr
	}

	msg := &Message{Header: *header}

	// 兼容扩展头：超过4字节的部分按声明长度跳过
	extraHeaderBytes := int(header.HeaderSize)*4 - 4
	if extraHeaderBytes > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(extraHeaderBytes)); err != nil {
			return nil, &ProtocolError{Reason: ReasonTruncated, Frame: msg,
				Err: fmt.Errorf("read extended header: %w", err)}
		}
	}

	if header.MessageFlags.hasSequence() {
		seqBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, seqBytes); err != nil {
			return nil, &ProtocolError{Reason: ReasonTruncated, Frame: msg,
				Err: fmt.Errorf("read sequence: %w", err)}
		}
		msg.Sequence = int32(binary.BigEndian.Uint32(seqBytes))
	}

	// 错误帧在payload size之前额外携带4字节错误码
	if header.MessageType == ErrorResponse {
		codeBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, codeBytes); err != nil {
			return nil, &ProtocolError{Reason: ReasonTruncated, Frame: msg,
				Err: fmt.Errorf("read error code: %w", err)}
		}
		msg.ErrorCode = binary.BigEndian.Uint32(codeBytes)
	}

	sizeBytes := make([]byte, 4)
	if _, err := io.ReadFull(reader, sizeBytes); err != nil {
		return nil, &ProtocolError{Reason: ReasonTruncated, Frame: msg,
			Err: fmt.Errorf("read payload size: %w", err)}
	}
	msg.PayloadSize = binary.BigEndian.Uint32(sizeBytes)

	if msg.PayloadSize > 0 {
		msg.Payload = make([]byte, msg.PayloadSize)
		if _, err := io.ReadFull(reader, msg.Payload); err != nil {
			return nil, &ProtocolError{Reason: ReasonTruncated, Frame: msg,
				Err: fmt.Errorf("read payload (expected %d bytes): %w", msg.PayloadSize, err)}
		}
	}

	return msg, nil
}

// NewFullClientRequest 创建会话初始请求消息，payload为JSON序列化后的请求体
func NewFullClientRequest(payload []byte, sequence int32, compression CompressionMethod) *Message {
	header := NewHeader(FullClientRequest, PositiveSequence, JSONSerialization, compression)
	return &Message{
		Header:      header,
		Sequence:    sequence,
		PayloadSize: uint32(len(payload)),
		Payload:     payload,
	}
}

// NewAudioOnlyRequest 创建音频分段请求消息，sequence必须为正
func NewAudioOnlyRequest(audioData []byte, sequence int32, compression CompressionMethod) *Message {
	header := NewHeader(AudioOnlyRequest, PositiveSequence, RawSerialization, compression)
	return &Message{
		Header:      header,
		Sequence:    sequence,
		PayloadSize: uint32(len(audioData)),
		Payload:     audioData,
	}
}

// NewFinalAudioRequest 创建流结束消息：空payload，负数sequence，整个会话只发送一次
func NewFinalAudioRequest(sequence int32) *Message {
	header := NewHeader(AudioOnlyRequest, NegativeSequence, RawSerialization, NoCompression)
	return &Message{
		Header:   header,
		Sequence: sequence,
	}
}

// IsLastPacket 判断是否为流的最后一包
func (m *Message) IsLastPacket() bool {
	switch m.Header.MessageFlags {
	case LastPacketNoSequence, NegativeSequence:
		return true
	default:
		return false
	}
}

// IsError 判断是否为服务端错误帧
func (m *Message) IsError() bool {
	return m.Header.MessageType == ErrorResponse
}
