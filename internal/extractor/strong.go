package extractor

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"health-etl/internal/models"
)

// ExtractStrong 读取 Strong 导出的 CSV 文件
// since 不为空时仅保留 Date >= since 的行
func ExtractStrong(path string, since *time.Time) (*models.StrongExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open strong export: %w", err)
	}
	defer f.Close()

	return ReadStrong(f, since)
}

// ReadStrong 从 reader 解析 Strong CSV（自动识别 , 或 ; 分隔符）
func ReadStrong(r io.Reader, since *time.Time) (*models.StrongExport, error) {
	br := bufio.NewReader(r)
	delimiter := sniffDelimiter(br)

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read strong header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	export := &models.StrongExport{Header: header}
	dateIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "date") {
			dateIdx = i
			break
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return export, fmt.Errorf("failed to read strong row %d: %w", len(export.Rows)+1, err)
		}
		if since != nil {
			if dateIdx < 0 || dateIdx >= len(row) || !startsOnOrAfter(row[dateIdx], *since) {
				continue
			}
		}
		export.Rows = append(export.Rows, row)
	}

	return export, nil
}

// sniffDelimiter 根据表头行判断分隔符
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	if bytes.Count(peek, []byte{';'}) > bytes.Count(peek, []byte{','}) {
		return ';'
	}
	return ','
}
