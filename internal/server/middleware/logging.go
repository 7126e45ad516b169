package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "TradeSentry/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThreshold marks requests worth a dedicated warning line.
const slowRequestThreshold = 2 * time.Second

// Logging 返回一个记录 HTTP 请求日志的中间件
// 记录请求方法、路径、客户端 IP、状态码与耗时，检测慢请求
//
// 日志输出示例:
//
//	🟢 GET /api/v1/risk/status - 200 (4ms)
//	🐌 Slow request detected | POST /api/v1/risk/check | 2381ms
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
				}
			}

			reply, err := handler(ctx, req)

			duration := time.Since(startTime)
			durationMs := duration.Milliseconds()

			status := 200
			if err != nil {
				status = extractHTTPStatus(err)
			}

			logger.Request(method, path, status, durationMs,
				"ip", ip,
				"user_agent", userAgent,
			)

			if duration >= slowRequestThreshold {
				logger.Warnw(
					"msg", "Slow request detected | "+method+" "+path,
					"type", "slow_cycle",
					"duration_ms", durationMs,
				)
			}

			return reply, err
		}
	}
}

// extractClientIP 从请求中提取客户端真实 IP
// 优先级: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	return req.RemoteAddr
}

// extractHTTPStatus 从 Kratos 错误中提取 HTTP 状态码
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if se := errors.FromError(err); se != nil {
		return int(se.Code)
	}
	return 500
}
