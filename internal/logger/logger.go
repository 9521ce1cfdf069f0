// Package logger 封装 slog，统一输出格式与级别控制。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput 替换全局输出，常用于同时写 stdout 与日志文件。
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

// SetLevel 接受 debug/info/warn/error，未知值回落到 info。
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Enabled(level slog.Level) bool {
	return levelVar.Level() <= level
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) { activeLogger().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { activeLogger().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { activeLogger().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { activeLogger().Error(fmt.Sprintf(format, v...)) }

// InfoBlock 逐行输出多行文本（例如回测摘要）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}

// Component 为日志行加统一前缀，例如 "[screener]"。
type Component string

func (c Component) prefix(format string) string {
	if c == "" {
		return format
	}
	return "[" + string(c) + "] " + format
}

func (c Component) Debugf(format string, v ...any) { Debugf(c.prefix(format), v...) }
func (c Component) Infof(format string, v ...any)  { Infof(c.prefix(format), v...) }
func (c Component) Warnf(format string, v ...any)  { Warnf(c.prefix(format), v...) }
func (c Component) Errorf(format string, v ...any) { Errorf(c.prefix(format), v...) }
