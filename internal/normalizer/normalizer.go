// Package normalizer 将远程 RMM API 的异构词汇表映射到本地封闭枚举。
// 所有函数都是纯函数、全函数：任何输入（包括空串）都有确定结果，不会报错。
package normalizer

import (
	"strings"
	"time"

	"domus-rmm-sync/internal/models"
)

// NormalizeSeverity 规范化报警级别，大小写不敏感
// 未识别的值回落到 warning：宁可误报级别也不静默丢弃报警
func NormalizeSeverity(raw string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "high", "error":
		return models.SeverityCritical
	case "warning", "medium", "warn":
		return models.SeverityWarning
	case "info", "information", "low":
		return models.SeverityInfo
	default:
		return models.SeverityWarning
	}
}

// NormalizeStatus 规范化报警状态，大小写不敏感
// 未识别的值回落到 open
func NormalizeStatus(raw string) models.AlertStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "acknowledged", "ack":
		return models.StatusAcknowledged
	case "resolved", "closed", "fixed":
		return models.StatusResolved
	default:
		return models.StatusOpen
	}
}

// timeLayouts 远程时间戳的候选格式（按出现频率排序）
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseRemoteTime 解析远程时间戳字符串
// 解析失败返回 fallback，绝不报错（上游载荷中的日期格式不可信）
func ParseRemoteTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}

// ParseRemoteTimePtr 同 ParseRemoteTime，但空串/不可解析返回 nil
func ParseRemoteTimePtr(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
