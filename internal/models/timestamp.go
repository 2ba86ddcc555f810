package models

import (
	"fmt"
	"strings"
	"time"
)

// 支持的时间格式：Apple Health 导出带时区偏移，Strong 导出为本地时间（按 UTC 解释）
var timestampLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp 按已知格式依次尝试解析时间
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParseSince 解析可选的下界日期，空字符串返回 nil
func ParseSince(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("invalid since date: %w", err)
	}
	return &t, nil
}
