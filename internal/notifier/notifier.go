// Package notifier 负责把提醒、回测摘要等文本推送出去。
package notifier

import (
	"pairlab/internal/config"
	"pairlab/internal/logger"
)

var log = logger.Component("notify")

// TextNotifier 是各组件依赖的最小推送接口。
type TextNotifier interface {
	SendText(text string) error
}

// New 按配置返回 Telegram 推送；未启用时退化为只写日志。
func New(cfg config.TelegramConfig) TextNotifier {
	if !cfg.Enabled {
		return LogNotifier{}
	}
	return NewTelegram(cfg.BotToken, cfg.ChatID)
}

// LogNotifier 把消息写进日志，便于本地调试。
type LogNotifier struct{}

func (LogNotifier) SendText(text string) error {
	log.Infof("notify (telegram disabled):\n%s", text)
	return nil
}
