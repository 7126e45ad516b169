package server

import (
	"TradeSentry/internal/conf"
	"TradeSentry/internal/server/middleware"
	"TradeSentry/internal/service"
	pkglog "TradeSentry/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, riskService *service.RiskService, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	var adminToken string
	if c.Http != nil {
		adminToken = c.Http.AdminToken
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.AdminAuth(adminToken, logHelper), // 认证中间件：写接口校验 admin token
			middleware.Logging(logHelper),               // 请求日志中间件：记录请求方法、路径、耗时
		),
	}
	if c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	riskService.RegisterHTTP(srv)

	return srv
}
