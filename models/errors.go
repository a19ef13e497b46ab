package models

import "errors"

var (
	// ErrTargetNotFound 设备令牌不存在
	ErrTargetNotFound = errors.New("device target not found")
	// ErrInvalidPlatform 不支持的平台
	ErrInvalidPlatform = errors.New("unsupported platform")
)
