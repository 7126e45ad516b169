// Package middleware provides HTTP middleware for authentication and
// request logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "TradeSentry/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ErrUnauthorized is returned when a guarded endpoint is hit without a
// valid admin token.
var ErrUnauthorized = errors.Unauthorized("UNAUTHORIZED", "invalid or missing admin token")

// guardedPrefixes lists the mutating endpoints that require the admin
// token. Read-only endpoints stay open for dashboards and probes.
var guardedPrefixes = []string{
	"/api/v1/risk/reset",
}

// AdminAuth 返回一个 HTTP 认证中间件
// 仅对写操作（手动重置熔断器）校验 admin token，只读端点不拦截
//
// 日志输出示例:
//
//	🔗 Admin action authorized (tok-1234***) | {"type":"auth","token_masked":"tok-1234***"}
func AdminAuth(adminToken string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}
			ht, ok := tr.(http.Transporter)
			if !ok {
				return handler(ctx, req)
			}

			httpReq := ht.Request()
			if !isGuarded(httpReq.URL.Path) {
				return handler(ctx, req)
			}

			// token 未配置时写接口直接关闭，避免裸跑
			if adminToken == "" {
				logger.Auth("Admin endpoint hit but no admin token configured, rejecting",
					"path", httpReq.URL.Path)
				return nil, ErrUnauthorized
			}

			token := extractToken(httpReq.Header.Get("Authorization"), httpReq.Header.Get("X-API-Key"))
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				logger.Auth("Admin action rejected, bad token",
					"path", httpReq.URL.Path,
					"token_masked", maskToken(token))
				return nil, ErrUnauthorized
			}

			logger.Auth("Admin action authorized ("+maskToken(token)+")",
				"path", httpReq.URL.Path,
				"token_masked", maskToken(token))
			return handler(ctx, req)
		}
	}
}

func isGuarded(path string) bool {
	for _, prefix := range guardedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractToken supports "Authorization: Bearer {token}" and the
// X-API-Key header.
func extractToken(authHeader, apiKeyHeader string) string {
	if authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(apiKeyHeader)
}

// maskToken 脱敏 token，仅显示前 8 位
// 示例: "tok-1234567890" -> "tok-1234***"
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "***"
}
