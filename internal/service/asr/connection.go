package asr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectOptions 建立识别会话连接所需的全部参数。
// 凭证与资源选择由配置协作方提供，核心只做透传。
type ConnectOptions struct {
	URL         string // WebSocket接入点
	AppID       string // X-Api-App-Key
	AccessToken string // X-Api-Access-Key
	ResourceID  string // X-Api-Resource-Id，小时版或并发版
	ConnectID   string // X-Api-Connect-Id，请求关联标识

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

// dialSession 建立WebSocket连接并返回服务端logid
func dialSession(ctx context.Context, opts ConnectOptions) (*websocket.Conn, string, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", opts.AppID)
	header.Set("X-Api-Access-Key", opts.AccessToken)
	header.Set("X-Api-Resource-Id", opts.ResourceID)
	header.Set("X-Api-Connect-Id", opts.ConnectID)

	conn, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		return nil, "", fmt.Errorf("websocket dial failed: %w", err)
	}

	var logid string
	if resp != nil {
		logid = resp.Header.Get("X-Tt-Logid")
	}

	return conn, logid, nil
}

// writeFrame 编码并写入一条消息，写入前设置写超时
func writeFrame(conn *websocket.Conn, msg *Message, timeout time.Duration) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return newProtocolError(ReasonTransportClosed, fmt.Errorf("write frame: %w", err))
	}
	return nil
}

// pingLoop 周期性发送ping保持连接。
// WriteControl可以与数据帧写入并发，不破坏单写者纪律。
func pingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("ping write failed", zap.Error(err))
				return
			}
		}
	}
}
