package asr

// Request 会话初始请求体，JSON序列化后作为FullClientRequest的payload。
// 字段名与服务端API逐字对应，不可改动。
type Request struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
		Language string `json:"language,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName         string `json:"model_name"`
		EnableITN         bool   `json:"enable_itn,omitempty"`
		EnablePunc        bool   `json:"enable_punc,omitempty"`
		EnableDDC         bool   `json:"enable_ddc,omitempty"`
		ShowUtterances    bool   `json:"show_utterances,omitempty"`
		ResultType        string `json:"result_type,omitempty"`
		EndWindowSize     int    `json:"end_window_size,omitempty"`
		ForceToSpeechTime int    `json:"force_to_speech_time,omitempty"`
	} `json:"request"`
}

// NewRequest 按会话配置构建初始请求体
func NewRequest(cfg *SessionConfig, uid string) *Request {
	req := &Request{}
	req.User.UID = uid

	req.Audio.Format = cfg.Format
	if req.Audio.Format == "" {
		// 原始采样流必须声明pcm，只有携带完整WAV容器时才是wav
		req.Audio.Format = "pcm"
	}
	req.Audio.Codec = "raw"
	req.Audio.Rate = cfg.SampleRate
	req.Audio.Bits = cfg.Bits
	req.Audio.Channel = cfg.Channels
	req.Audio.Language = cfg.Language

	req.Request.ModelName = cfg.ModelName
	req.Request.EnableITN = cfg.EnableITN
	req.Request.EnablePunc = cfg.EnablePunc
	req.Request.EnableDDC = cfg.EnableDDC
	req.Request.ShowUtterances = cfg.ShowUtterances
	req.Request.ResultType = cfg.ResultType
	req.Request.EndWindowSize = cfg.EndWindowSize
	req.Request.ForceToSpeechTime = cfg.ForceToSpeechTime

	return req
}
