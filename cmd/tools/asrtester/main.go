package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tengyuan2025/xiaoyuan-robot/internal/config"
	"github.com/tengyuan2025/xiaoyuan-robot/internal/metrics"
	asrmodel "github.com/tengyuan2025/xiaoyuan-robot/internal/model/asr"
	"github.com/tengyuan2025/xiaoyuan-robot/internal/service/asr"
)

// wavHeaderSize 标准44字节WAV头，测试工具只处理最常见的布局
const wavHeaderSize = 44

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	if !cfg.ASR.Enabled {
		log.Fatal("识别服务未启用，请先在环境变量中配置 ASR_APP_ID 与 ASR_ACCESS_TOKEN")
	}

	audioPath := flag.String("audio", "", "输入音频文件路径 (pcm 或 wav)")
	format := flag.String("format", "", "音频格式，留空时根据扩展名推断")
	session := flag.String("session", "", "自定义连接关联ID，留空则自动生成")
	timeout := flag.Duration("timeout", 90*time.Second, "整体超时时间")
	realtime := flag.Bool("realtime", true, "按200ms节奏模拟实时采集")

	flag.Parse()

	if *audioPath == "" {
		flag.Usage()
		log.Fatal("请通过 -audio 指定音频文件路径")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer logger.Sync()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	audioData, audioFormat, err := loadAudio(*audioPath, *format)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	sessionCfg := cfg.ASR.SessionConfig()
	sessionCfg.Format = "pcm" // 上行始终为去除容器的原始采样

	opts := asr.ConnectOptions{
		URL:          cfg.ASR.WSURL,
		AppID:        cfg.ASR.AppID,
		AccessToken:  cfg.ASR.AccessToken,
		ResourceID:   cfg.ASR.ResourceID,
		ConnectID:    *session,
		PingInterval: 20 * time.Second,
	}

	engine := asr.NewEngine(sessionCfg, opts, logger, m)
	queue := asr.NewAudioQueue(cfg.ASR.QueueCapacity, cfg.ASR.PushTimeout)
	results := make(chan *asrmodel.RecognitionResult, 16)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("开始流式识别: session=%s format=%s bytes=%d",
		engine.SessionID(), audioFormat, len(audioData))

	chunkBytes := sessionCfg.SegmentDurationMs * sessionCfg.SampleRate / 1000 *
		sessionCfg.Bits / 8 * sessionCfg.Channels

	go feedAudio(ctx, queue, audioData, chunkBytes, *realtime)

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for result := range results {
			tag := "临时"
			if result.IsFinal {
				tag = "最终"
			}
			log.Printf("[%s] %s", tag, result.Text)
		}
	}()

	outcome := engine.Run(ctx, queue, results)
	close(results)
	<-printerDone

	if !outcome.Success {
		log.Fatalf("识别会话失败: reason=%s err=%v", outcome.Reason, outcome.Err)
	}

	log.Printf("识别完成: %q", outcome.FinalText)
	log.Printf("统计: 发送%d帧 接收%d帧 音频时长%dms 耗时%s",
		outcome.FramesSent, outcome.FramesReceived, outcome.AudioDuration, outcome.Elapsed)
}

// loadAudio 读取音频文件，wav输入剥离容器头后作为原始采样上行
func loadAudio(path, format string) ([]byte, string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if format == "" {
			format = "pcm"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	if format == "wav" {
		if len(data) <= wavHeaderSize {
			return nil, "", fmt.Errorf("wav file too short: %d bytes", len(data))
		}
		data = data[wavHeaderSize:]
	}

	return data, format, nil
}

// feedAudio 将音频按分段大小推入队列，模拟实时采集节奏
func feedAudio(ctx context.Context, queue *asr.AudioQueue, data []byte, chunkBytes int, realtime bool) {
	defer queue.Close()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for offset := 0; offset < len(data); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(data) {
			end = len(data)
		}

		if err := queue.Push(ctx, data[offset:end]); err != nil {
			log.Printf("[WARN] 音频入队失败: %v", err)
			return
		}

		if realtime && end < len(data) {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// serveMetrics 暴露Prometheus指标与健康检查端点
func serveMetrics(addr string, logger *zap.Logger) {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("指标端点已启动", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Warn("指标端点退出", zap.Error(err))
	}
}
