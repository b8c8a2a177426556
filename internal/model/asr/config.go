package asr

import "time"

// SessionConfig 一次流式识别会话的音频格式与功能配置。
// 核心不读取任何进程环境，所有取值在会话构造时显式传入。
type SessionConfig struct {
	// 音频格式，原始采样流必须为pcm
	Format     string `json:"format"`
	SampleRate int    `json:"rate"`
	Bits       int    `json:"bits"`
	Channels   int    `json:"channel"`

	// 每个上行分段的目标时长
	SegmentDurationMs int `json:"segmentDurationMs"`

	ModelName string `json:"modelName"`
	Language  string `json:"language"`

	// 功能开关
	EnableITN      bool `json:"enableItn"`      // 数字文本规范化
	EnablePunc     bool `json:"enablePunc"`     // 标点
	EnableDDC      bool `json:"enableDdc"`      // 语义顺滑
	ShowUtterances bool `json:"showUtterances"` // 分句信息

	ResultType        string `json:"resultType"`
	EndWindowSize     int    `json:"endWindowSize"`     // 强制判停窗口, ms
	ForceToSpeechTime int    `json:"forceToSpeechTime"` // ms

	// 会话独立超时
	ConnectTimeout time.Duration `json:"-"`
	AckTimeout     time.Duration `json:"-"`
	// FinalTimeout 等待最终确认的宽限期，可调参数而非协议常量
	FinalTimeout time.Duration `json:"-"`
	ReadTimeout  time.Duration `json:"-"`
	WriteTimeout time.Duration `json:"-"`
}

// DefaultSessionConfig 返回16kHz/16bit/单声道、200ms分段的默认配置
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Format:            "pcm",
		SampleRate:        16000,
		Bits:              16,
		Channels:          1,
		SegmentDurationMs: 200,
		ModelName:         "bigmodel",
		Language:          "zh-CN",
		EnableITN:         true,
		EnablePunc:        true,
		ShowUtterances:    true,
		ResultType:        "full",
		EndWindowSize:     800,
		ForceToSpeechTime: 300,
		ConnectTimeout:    10 * time.Second,
		AckTimeout:        10 * time.Second,
		FinalTimeout:      15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
