package types

import "errors"

// 领域错误：调用方通过 errors.Is 判断，内部用 fmt.Errorf("...: %w") 包装上下文。
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrDataUnavailable  = errors.New("data unavailable")
	ErrAlreadyRunning   = errors.New("screening session already running")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrInvalidCapital   = errors.New("invalid capital")
	ErrNotFound         = errors.New("not found")
)
