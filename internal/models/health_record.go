package models

import "time"

// HealthRecord Apple Health 导出中的一条 <Record>（属性原样保留为字符串）
type HealthRecord struct {
	Type         string
	Value        string
	HasValue     bool // 导出中存在 value 属性
	Unit         string
	SourceName   string
	CreationDate string
	StartDate    string
	EndDate      string
}

// PivotKey 透视表行键
type PivotKey struct {
	EndDate      time.Time
	CreationDate time.Time
	StartDate    time.Time
	SourceName   string
}

// Less 按 (end_date, creation_date, start_date, source_name) 升序比较
func (k PivotKey) Less(o PivotKey) bool {
	if !k.EndDate.Equal(o.EndDate) {
		return k.EndDate.Before(o.EndDate)
	}
	if !k.CreationDate.Equal(o.CreationDate) {
		return k.CreationDate.Before(o.CreationDate)
	}
	if !k.StartDate.Equal(o.StartDate) {
		return k.StartDate.Before(o.StartDate)
	}
	return k.SourceName < o.SourceName
}

// PivotRow 透视表的一行，Values 与 PivotTable.Columns 对齐，nil 表示缺失
type PivotRow struct {
	PivotKey
	Values []*float64
}

// PivotTable 宽表：每个键一行，每个观测类型一列
type PivotTable struct {
	Columns []string // 观测类型列（snake_case，升序）
	Rows    []PivotRow
}

// ColumnIndex 返回列下标，不存在时返回 -1
func (t *PivotTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value 读取某行某列的值
func (t *PivotTable) Value(row int, column string) (float64, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return 0, false
	}
	v := t.Rows[row].Values[idx]
	if v == nil {
		return 0, false
	}
	return *v, true
}
