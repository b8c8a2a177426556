package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	asrmodel "github.com/tengyuan2025/xiaoyuan-robot/internal/model/asr"
)

// Config 聚合机器人语音链路的配置项。
// 只在cmd编排层加载，核心组件不读取进程环境。
type Config struct {
	ASR     ASRConfig
	Metrics MetricsConfig
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	asr, err := loadASRConfig()
	if err != nil {
		return nil, err
	}

	metrics, err := loadMetricsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{ASR: asr, Metrics: metrics}, nil
}

// ASRConfig 描述流式识别服务相关配置
type ASRConfig struct {
	AppID       string
	AccessToken string
	// ConcurrentMode true时使用并发版资源，否则为小时版
	ConcurrentMode bool
	ResourceID     string
	WSURL          string

	ModelName string
	Language  string

	SampleRate        int
	Bits              int
	Channels          int
	SegmentDurationMs int

	EnableITN      bool
	EnablePunc     bool
	EnableDDC      bool
	ShowUtterances bool

	EndWindowSize     int
	ForceToSpeechTime int

	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	FinalTimeout   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	QueueCapacity int
	PushTimeout   time.Duration

	Enabled bool
}

// MetricsConfig 描述指标端点配置，Addr为空时不启动
type MetricsConfig struct {
	Addr string
}

// SessionConfig 将加载到的配置转换为会话配置
func (c ASRConfig) SessionConfig() *asrmodel.SessionConfig {
	cfg := asrmodel.DefaultSessionConfig()
	cfg.SampleRate = c.SampleRate
	cfg.Bits = c.Bits
	cfg.Channels = c.Channels
	cfg.SegmentDurationMs = c.SegmentDurationMs
	cfg.ModelName = c.ModelName
	cfg.Language = c.Language
	cfg.EnableITN = c.EnableITN
	cfg.EnablePunc = c.EnablePunc
	cfg.EnableDDC = c.EnableDDC
	cfg.ShowUtterances = c.ShowUtterances
	cfg.EndWindowSize = c.EndWindowSize
	cfg.ForceToSpeechTime = c.ForceToSpeechTime
	cfg.ConnectTimeout = c.ConnectTimeout
	cfg.AckTimeout = c.AckTimeout
	cfg.FinalTimeout = c.FinalTimeout
	cfg.ReadTimeout = c.ReadTimeout
	cfg.WriteTimeout = c.WriteTimeout
	return cfg
}

func loadASRConfig() (ASRConfig, error) {
	appID := strings.TrimSpace(os.Getenv("ASR_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("ASR_ACCESS_TOKEN"))

	concurrent, err := parseBoolEnv("ASR_CONCURRENT_MODE", false)
	if err != nil {
		return ASRConfig{}, err
	}

	// 小时版与并发版使用不同的资源ID
	resourceID := getEnvOrDefault("ASR_RESOURCE_ID", "")
	if resourceID == "" {
		if concurrent {
			resourceID = "volc.bigasr.sauc.concurrent"
		} else {
			resourceID = "volc.bigasr.sauc.duration"
		}
	}

	sampleRate, err := parseIntEnv("ASR_SAMPLE_RATE", 16000)
	if err != nil {
		return ASRConfig{}, err
	}
	segmentMs, err := parseIntEnv("ASR_SEGMENT_MS", 200)
	if err != nil {
		return ASRConfig{}, err
	}

	enableITN, err := parseBoolEnv("ASR_ENABLE_ITN", true)
	if err != nil {
		return ASRConfig{}, err
	}
	enablePunc, err := parseBoolEnv("ASR_ENABLE_PUNC", true)
	if err != nil {
		return ASRConfig{}, err
	}
	enableDDC, err := parseBoolEnv("ASR_ENABLE_DDC", false)
	if err != nil {
		return ASRConfig{}, err
	}
	showUtterances, err := parseBoolEnv("ASR_SHOW_UTTERANCES", true)
	if err != nil {
		return ASRConfig{}, err
	}

	connectTimeout, err := parseDurationEnv("ASR_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return ASRConfig{}, err
	}
	ackTimeout, err := parseDurationEnv("ASR_ACK_TIMEOUT", 10*time.Second)
	if err != nil {
		return ASRConfig{}, err
	}
	finalTimeout, err := parseDurationEnv("ASR_FINAL_TIMEOUT", 15*time.Second)
	if err != nil {
		return ASRConfig{}, err
	}
	readTimeout, err := parseDurationEnv("ASR_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return ASRConfig{}, err
	}
	writeTimeout, err := parseDurationEnv("ASR_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return ASRConfig{}, err
	}

	queueCapacity, err := parseIntEnv("ASR_QUEUE_CAPACITY", 16)
	if err != nil {
		return ASRConfig{}, err
	}
	pushTimeout, err := parseDurationEnv("ASR_PUSH_TIMEOUT", time.Second)
	if err != nil {
		return ASRConfig{}, err
	}

	return ASRConfig{
		AppID:             appID,
		AccessToken:       accessToken,
		ConcurrentMode:    concurrent,
		ResourceID:        resourceID,
		WSURL:             getEnvOrDefault("ASR_WS_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"),
		ModelName:         getEnvOrDefault("ASR_MODEL", "bigmodel"),
		Language:          getEnvOrDefault("ASR_LANGUAGE", "zh-CN"),
		SampleRate:        sampleRate,
		Bits:              16,
		Channels:          1,
		SegmentDurationMs: segmentMs,
		EnableITN:         enableITN,
		EnablePunc:        enablePunc,
		EnableDDC:         enableDDC,
		ShowUtterances:    showUtterances,
		EndWindowSize:     800,
		ForceToSpeechTime: 300,
		ConnectTimeout:    connectTimeout,
		AckTimeout:        ackTimeout,
		FinalTimeout:      finalTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		QueueCapacity:     queueCapacity,
		PushTimeout:       pushTimeout,
		Enabled:           appID != "" && accessToken != "",
	}, nil
}

func loadMetricsConfig() (MetricsConfig, error) {
	addr := strings.TrimSpace(os.Getenv("METRICS_ADDR"))
	if addr != "" && !strings.Contains(addr, ":") {
		if strings.Contains(addr, " ") {
			return MetricsConfig{}, fmt.Errorf("invalid METRICS_ADDR value: %q", addr)
		}
		addr = ":" + addr
	}
	return MetricsConfig{Addr: addr}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 纯数字按秒解释，兼容旧配置
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
