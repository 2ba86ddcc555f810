package dashboard

import (
	"strings"

	"health-etl/internal/metabase"

	"github.com/google/uuid"
)

const (
	// DateGranularityTag 时间粒度文本参数名
	DateGranularityTag = "date_granularity"
	// DefaultDateGranularity 时间粒度默认值
	DefaultDateGranularity = "Week"

	filterAnchor = "where 1=1"
)

// ApplyFieldFilters 在第一个 "where 1=1" 之后插入可选字段过滤条件
//
//	where 1=1
//	    [[ and {{created_at}} ]]
func ApplyFieldFilters(query string, fields []string) string {
	if len(fields) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(filterAnchor)
	for _, f := range fields {
		b.WriteString("\n    [[ and {{")
		b.WriteString(f)
		b.WriteString("}} ]]")
	}
	return strings.Replace(query, filterAnchor, b.String(), 1)
}

// DateGranularity 时间粒度文本参数
func DateGranularity() metabase.TemplateTag {
	return metabase.TemplateTag{
		ID:          uuid.NewString(),
		Name:        DateGranularityTag,
		DisplayName: "Date Granularity",
		Type:        "text",
		Required:    true,
		Default:     DefaultDateGranularity,
	}
}

// FieldFilter 绑定到字段 ID 的维度过滤器
func FieldFilter(field metabase.Field) metabase.TemplateTag {
	return metabase.TemplateTag{
		ID:          uuid.NewString(),
		Name:        field.Name,
		DisplayName: field.DisplayName,
		Type:        "dimension",
		Dimension:   []any{"field", field.ID, nil},
		WidgetType:  WidgetType(field.BaseType),
	}
}

// WidgetType 按字段基础类型选择过滤控件
func WidgetType(baseType string) string {
	switch {
	case strings.Contains(baseType, "Date"), strings.Contains(baseType, "Time"):
		return "date/all-options"
	case strings.Contains(baseType, "Integer"), strings.Contains(baseType, "Float"),
		strings.Contains(baseType, "Decimal"), strings.Contains(baseType, "Number"):
		return "number/="
	default:
		return "string/="
	}
}

// VisualizationSettings 图表设置
func VisualizationSettings(v Visualization) map[string]any {
	settings := map[string]any{
		"graph.show_values": !v.HideValues,
	}
	if v.XAxisTitle != "" {
		settings["graph.x_axis.title_text"] = v.XAxisTitle
	}
	if v.YAxisTitle != "" {
		settings["graph.y_axis.title_text"] = v.YAxisTitle
	}
	if len(v.Dimensions) > 0 {
		settings["graph.dimensions"] = v.Dimensions
	}
	if len(v.Metrics) > 0 {
		settings["graph.metrics"] = v.Metrics
	}
	return settings
}

// BuildCard 组装卡片请求
// fields 与 q.Filters 一一对应，已解析为字段元数据
func BuildCard(q Question, databaseID int, collectionID *int, tableID int, fields []metabase.Field) *metabase.Card {
	tags := make(map[string]metabase.TemplateTag, len(fields)+1)
	if q.Kind == KindTimeseries {
		tags[DateGranularityTag] = DateGranularity()
	}
	for _, f := range fields {
		tags[f.Name] = FieldFilter(f)
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	display := q.Display
	if display == "" {
		display = "table"
	}

	return &metabase.Card{
		Name:         q.Name,
		Display:      display,
		CollectionID: collectionID,
		TableID:      &tableID,
		DatasetQuery: metabase.DatasetQuery{
			Database: databaseID,
			Type:     "native",
			Native: metabase.NativeQuery{
				Query:        strings.TrimSpace(ApplyFieldFilters(q.Query, names)),
				TemplateTags: tags,
			},
		},
		VisualizationSettings: VisualizationSettings(q.Visualization),
	}
}
