package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey 是用于存储 CycleContext 的私有 key 类型
type contextKey string

const cycleContextKey contextKey = "tradesentry_cycle_context"

// CycleContext 存储一次决策周期的追踪信息
// 通过 Context 传递，风控、代理、交易所调用的日志都能关联到同一周期
type CycleContext struct {
	CycleID   string                 // 唯一周期 ID (10位短ID，如 mgrn0zfqda)
	Iteration int64                  // 会话内周期序号（持久化恢复）
	StartTime time.Time              // 周期开始时间
	Metadata  map[string]interface{} // 扩展元数据
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 字符集（小写字母 + 数字）
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateCycleID 生成10位随机周期ID
// 格式: 小写字母+数字，例如 mgrn0zfqda
func GenerateCycleID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithCycleContext 将 CycleContext 注入到 Context 中
// 在每个决策周期开始时调用
func WithCycleContext(ctx context.Context, cycleID string, iteration int64) context.Context {
	cc := &CycleContext{
		CycleID:   cycleID,
		Iteration: iteration,
		StartTime: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
	return context.WithValue(ctx, cycleContextKey, cc)
}

// GetCycleContext 从 Context 中提取 CycleContext
// 如果不存在，返回一个默认的空 CycleContext
func GetCycleContext(ctx context.Context) *CycleContext {
	if ctx == nil {
		return &CycleContext{
			CycleID:  "unknown",
			Metadata: make(map[string]interface{}),
		}
	}

	if cc, ok := ctx.Value(cycleContextKey).(*CycleContext); ok {
		return cc
	}

	// 返回默认值，避免 nil 检查
	return &CycleContext{
		CycleID:  "unknown",
		Metadata: make(map[string]interface{}),
	}
}

// GetCycleID 从 Context 中提取周期 ID
func GetCycleID(ctx context.Context) string {
	return GetCycleContext(ctx).CycleID
}

// GetIteration 从 Context 中提取周期序号
func GetIteration(ctx context.Context) int64 {
	return GetCycleContext(ctx).Iteration
}

// GetElapsedTime 获取周期已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	cc := GetCycleContext(ctx)
	if cc.StartTime.IsZero() {
		return 0
	}
	return time.Since(cc.StartTime).Milliseconds()
}
