// Package dashboard 仪表盘初始化：问题目录、字段过滤器和卡片创建流程
package dashboard

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultCatalog []byte

// 问题类型
const (
	KindSQL        = "sql"
	KindTimeseries = "timeseries"
)

// Catalog 问题目录
type Catalog struct {
	Collections []CollectionSpec `yaml:"collections"`
	Questions   []Question       `yaml:"questions"`
}

// CollectionSpec 需要存在的集合
type CollectionSpec struct {
	Name string `yaml:"name"`
}

// Question 一张原生 SQL 卡片的定义
type Question struct {
	Name          string        `yaml:"name"`
	Collection    string        `yaml:"collection"`
	Table         string        `yaml:"table"`
	Kind          string        `yaml:"kind"`
	Display       string        `yaml:"display"`
	Filters       []string      `yaml:"filters"`
	Visualization Visualization `yaml:"visualization"`
	Query         string        `yaml:"query"`
}

// Visualization 图表设置
type Visualization struct {
	HideValues bool     `yaml:"hide_values"`
	XAxisTitle string   `yaml:"x_axis_title"`
	YAxisTitle string   `yaml:"y_axis_title"`
	Dimensions []string `yaml:"dimensions"`
	Metrics    []string `yaml:"metrics"`
}

// LoadCatalog 加载内置问题目录
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog 解析并校验问题目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse question catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 校验目录
func (c *Catalog) Validate() error {
	collections := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection with empty name")
		}
		collections[col.Name] = true
	}

	names := make(map[string]bool, len(c.Questions))
	for i, q := range c.Questions {
		if q.Name == "" {
			return fmt.Errorf("question %d has no name", i)
		}
		if names[q.Name] {
			return fmt.Errorf("duplicate question %q", q.Name)
		}
		names[q.Name] = true

		if !collections[q.Collection] {
			return fmt.Errorf("question %q references unknown collection %q", q.Name, q.Collection)
		}
		if q.Table == "" {
			return fmt.Errorf("question %q has no table", q.Name)
		}
		switch q.Kind {
		case KindSQL:
		case KindTimeseries:
			if !strings.Contains(q.Query, "{{"+DateGranularityTag+"}}") {
				return fmt.Errorf("timeseries question %q does not use {{%s}}", q.Name, DateGranularityTag)
			}
		default:
			return fmt.Errorf("question %q has unknown kind %q", q.Name, q.Kind)
		}
		if len(q.Filters) > 0 && !strings.Contains(q.Query, filterAnchor) {
			return fmt.Errorf("question %q has filters but no %q clause", q.Name, filterAnchor)
		}
	}
	return nil
}

// Tables 目录中引用到的表（去重，保持出现顺序）
func (c *Catalog) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, q := range c.Questions {
		if !seen[q.Table] {
			seen[q.Table] = true
			tables = append(tables, q.Table)
		}
	}
	return tables
}
