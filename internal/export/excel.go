// Package export 将数据仓库中的表导出为 xlsx 快照
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"health-etl/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	timeLayout    = "2006-01-02 15:04:05"
	defaultSheet  = "Sheet1"
	maxSheetName  = 31
	defaultColW   = 18.0
	timestampColW = 22.0
)

// WriteWorkbook 生成 xlsx 并写入 path（目录不存在时自动创建）
func WriteWorkbook(path string, tables ...*models.Table) error {
	data, err := GenerateWorkbook(tables...)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// GenerateWorkbook 生成 xlsx 内容：每张表一个工作表，首行为加粗表头
// tables 为空时返回错误
func GenerateWorkbook(tables ...*models.Table) ([]byte, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to export")
	}

	f := excelize.NewFile()
	// Note: WriteTo 需要文件保持打开

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, table := range tables {
		if err := table.Validate(); err != nil {
			f.Close()
			return nil, fmt.Errorf("invalid table: %w", err)
		}
		sheet := sheetName(table.Name)
		index, err := f.NewSheet(sheet)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, sheet, table, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 删除默认的 Sheet1（除非某张表恰好叫这个名字）
	if !hasSheet(tables, defaultSheet) {
		f.DeleteSheet(defaultSheet)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, table *models.Table, headerStyle int) error {
	for col, c := range table.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, c.Name); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		width := defaultColW
		if c.Kind == models.KindTimestamp {
			width = timestampColW
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, row := range table.Rows {
		r := rowIdx + 2 // 第1行是表头
		for colIdx, v := range row {
			value := cellValue(v)
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, r)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", r, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

// cellValue 时间格式化为字符串，其余值原样写入
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(timeLayout)
	case string:
		if t == "" {
			return nil
		}
		return t
	}
	return v
}

// sheetName 工作表名称最长 31 个字符
func hasSheet(tables []*models.Table, name string) bool {
	for _, table := range tables {
		if sheetName(table.Name) == name {
			return true
		}
	}
	return false
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}
