// Package metabase BI 服务 HTTP API 客户端
//
// 只覆盖仪表盘初始化需要的接口：健康检查、登录、集合、数据库、表元数据和创建卡片。
package metabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SessionHeader 会话令牌请求头
const SessionHeader = "X-Metabase-Session"

// ErrNotReady 等待超过最大次数后服务仍不可用
var ErrNotReady = errors.New("metabase is not ready")

// APIError 非 2xx 响应
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metabase %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client BI 服务 API 客户端
type Client struct {
	httpClient *resty.Client
	probe      *resty.Client // 健康检查专用，不做传输层重试
	logger     *zap.Logger
}

// NewClient 创建客户端
func NewClient(baseURL string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryableRead).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	probe := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		probe:      probe,
		logger:     logger,
	}
}

// WaitUntilReady 固定间隔轮询 /api/health，直到返回 ok 或次数用尽
func (c *Client) WaitUntilReady(ctx context.Context, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		var health struct {
			Status string `json:"status"`
		}
		resp, err := c.probe.R().
			SetContext(ctx).
			SetResult(&health).
			Get("/api/health")
		if err == nil && resp.IsSuccess() && health.Status == "ok" {
			c.logger.Info("Metabase is ready", zap.Int("attempt", i))
			return nil
		}

		remaining := attempts - i
		if remaining%25 == 0 {
			c.logger.Info("Waiting for Metabase to start", zap.Int("attempts_remaining", remaining))
		}
		if remaining == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotReady, attempts)
}

// Login 登录并在后续请求中携带会话令牌
func (c *Client) Login(ctx context.Context, email, password string) error {
	var session struct {
		ID string `json:"id"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": email, "password": password}).
		SetResult(&session).
		Post("/api/session")
	if err := checkResponse(resp, err); err != nil {
		c.logger.Error("Could not connect to Metabase API", zap.Error(err))
		return fmt.Errorf("failed to login: %w", err)
	}
	if session.ID == "" {
		return fmt.Errorf("failed to login: empty session token")
	}

	c.httpClient.SetHeader(SessionHeader, session.ID)
	c.logger.Info("Connected to Metabase API")
	return nil
}

// ListCollections 列出全部集合
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var collections []Collection
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&collections).
		Get("/api/collection")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return collections, nil
}

// CreateCollection 创建集合，parentID 为 nil 时创建在根集合下
func (c *Client) CreateCollection(ctx context.Context, name string, parentID *int) (*Collection, error) {
	body := map[string]any{
		"name":  name,
		"color": "#509EE3",
	}
	if parentID != nil {
		body["parent_id"] = *parentID
	}

	var collection Collection
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&collection).
		Post("/api/collection")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return &collection, nil
}

// ListDatabases 列出数据库
// 新版本返回 {"data": [...]}，旧版本直接返回数组，两种都兼容
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/api/database")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	body := resp.Body()
	var list []Database
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data []Database `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode databases: %w", err)
	}
	return wrapped.Data, nil
}

// ListTables 列出全部已同步的表
func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var tables []Table
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&tables).
		Get("/api/table")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// TableMetadata 获取表的字段元数据
func (c *Client) TableMetadata(ctx context.Context, tableID int) (*TableMetadata, error) {
	var meta TableMetadata
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(tableID)).
		SetResult(&meta).
		Get("/api/table/{id}/query_metadata")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to get metadata of table %d: %w", tableID, err)
	}
	return &meta, nil
}

// CreateCard 创建原生 SQL 卡片
func (c *Client) CreateCard(ctx context.Context, card *Card) (*Card, error) {
	var created Card
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(card).
		SetResult(&created).
		Post("/api/card")
	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to create card %q: %w", card.Name, err)
	}
	return &created, nil
}

// retryableRead 只重试 GET 请求的传输错误，创建类 POST 不重试
func retryableRead(resp *resty.Response, err error) bool {
	if err == nil || resp == nil || resp.Request == nil {
		return false
	}
	return resp.Request.Method == http.MethodGet
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{
			Method:     resp.Request.Method,
			Path:       resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}
	return nil
}
