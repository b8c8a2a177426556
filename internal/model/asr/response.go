package asr

import "time"

// Response 服务端FullServerResponse的payload结构
type Response struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string      `json:"text"`
		Utterances []Utterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// Utterance 一个分句及其时间跨度
type Utterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
	Words     []Word `json:"words,omitempty"`
}

// Word 分句内的单词时间信息
type Word struct {
	Text          string `json:"text"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	BlankDuration int64  `json:"blank_duration"`
}

// 服务端成功码，0与20000000都表示正常
const (
	CodeOK      = 0
	CodeSuccess = 20000000
)

// OK 判断响应码是否为成功
func (r *Response) OK() bool {
	return r.Code == CodeOK || r.Code == CodeSuccess
}

// RecognitionResult 一次识别结果事件。
// 临时结果随着音频继续可能被后续结果取代；最终结果不再修订。
// 结果创建后不可变，失败不回收已发出的结果。
type RecognitionResult struct {
	SessionID  string      `json:"sessionId"`
	Text       string      `json:"text"`
	IsFinal    bool        `json:"isFinal"`
	Utterances []Utterance `json:"utterances,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// SessionOutcome 会话的终止结果，成功或失败每个会话只产生一次
type SessionOutcome struct {
	SessionID      string        `json:"sessionId"`
	Success        bool          `json:"success"`
	Reason         string        `json:"reason,omitempty"` // 失败原因码
	Err            error         `json:"-"`
	FinalText      string        `json:"finalText"`
	AudioDuration  int64         `json:"audioDuration"` // 服务端统计的音频时长, ms
	FramesSent     int           `json:"framesSent"`
	FramesReceived int           `json:"framesReceived"`
	Elapsed        time.Duration `json:"elapsed"`
}
