package transformer

import (
	"strings"
	"unicode"
)

// typePrefixes Apple Health 类型前缀，按长度降序匹配，避免短前缀截断长前缀
var typePrefixes = []string{
	"HKQuantityTypeIdentifier",
	"HKCategoryTypeIdentifier",
	"HKDataType",
}

// StripTypePrefix 去掉 Apple Health 类型前缀
// 重复剥离直到没有前缀可匹配，因此对结果再次调用不会改变它
func StripTypePrefix(t string) string {
	for {
		stripped := false
		for _, p := range typePrefixes {
			if strings.HasPrefix(t, p) && len(t) > len(p) {
				t = t[len(p):]
				stripped = true
				break
			}
		}
		if !stripped {
			return t
		}
	}
}

// CamelToSnake 列名规范化
//
// 每个大写字母替换为 "_" + 小写，去掉开头的一个 "_"，再删除所有空白；
// 没有大写字母的名称只做小写与去空白。结果不含大写字母，因此重复调用结果不变。
//
//	"sourceName"   -> "source_name"
//	"StepCount"    -> "step_count"
//	"Workout Name" -> "workout_name"
func CamelToSnake(name string) string {
	var out string
	if hasUpper(name) {
		var b strings.Builder
		b.Grow(len(name) + 8)
		for _, r := range name {
			if unicode.IsUpper(r) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		}
		out = strings.TrimPrefix(b.String(), "_")
	} else {
		out = strings.ToLower(name)
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, out)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
