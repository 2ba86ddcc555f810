// Package extractor 读取原始导出文件
//
// - Apple Health export.xml：流式解析所有 <Record> 元素
// - Strong CSV：表头 + 行
//
// 解析失败时返回已读取的部分数据以及错误，由调用方决定是否继续。
package extractor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"health-etl/internal/models"
)

// ErrNoRecords 导出中没有任何记录
var ErrNoRecords = errors.New("no records found")

// ExtractAppleHealth 读取 Apple Health 导出文件
// since 不为空时仅保留 startDate >= since 的记录
func ExtractAppleHealth(path string, since *time.Time) ([]models.HealthRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open apple health export: %w", err)
	}
	defer f.Close()

	return ReadAppleHealth(f, since)
}

// ReadAppleHealth 从 reader 流式解析 <Record> 元素
func ReadAppleHealth(r io.Reader, since *time.Time) ([]models.HealthRecord, error) {
	decoder := xml.NewDecoder(r)
	var records []models.HealthRecord

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, fmt.Errorf("failed to parse apple health export after %d records: %w", len(records), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Record" {
			continue
		}

		rec := recordFromAttrs(start.Attr)
		if since != nil && !startsOnOrAfter(rec.StartDate, *since) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func recordFromAttrs(attrs []xml.Attr) models.HealthRecord {
	var rec models.HealthRecord
	for _, a := range attrs {
		switch a.Name.Local {
		case "type":
			rec.Type = a.Value
		case "value":
			rec.Value = a.Value
			rec.HasValue = true
		case "unit":
			rec.Unit = a.Value
		case "sourceName":
			rec.SourceName = a.Value
		case "creationDate":
			rec.CreationDate = a.Value
		case "startDate":
			rec.StartDate = a.Value
		case "endDate":
			rec.EndDate = a.Value
		}
	}
	return rec
}

// startsOnOrAfter 无法解析的时间在设置了下界时视为不满足
func startsOnOrAfter(value string, since time.Time) bool {
	t, err := models.ParseTimestamp(value)
	if err != nil {
		return false
	}
	return !t.Before(since)
}
