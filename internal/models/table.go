package models

import "fmt"

// ColumnKind 列的存储类型
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindFloat
	KindInt
	KindTimestamp
)

// String 返回类型名称
func (k ColumnKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Column 表列定义
type Column struct {
	Name string
	Kind ColumnKind
}

// Table 通用表：加载、回读和导出共用的行式结构
// 单元格取值：nil、string、float64、int64、time.Time
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnNames 返回列名列表
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate 检查每行宽度与列数一致
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("table %s row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
	}
	return nil
}
