// Package crm talks to the remote CRM REST API. It provides entity metadata
// for discovery and a paginated record iterator for sync.
package crm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/crmtap/pkg/catalog"
	"github.com/ajitpratap0/crmtap/pkg/clients"
	"github.com/ajitpratap0/crmtap/pkg/config"
	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/metrics"
)

// LimitInfoHeader carries the daily API usage on every response.
const LimitInfoHeader = "Sforce-Limit-Info"

// Client is the remote API adapter.
type Client struct {
	cfg    config.Config
	http   *clients.HTTPClient
	logger *zap.Logger

	mu          sync.RWMutex
	instanceURL string
	limitInfo   string
}

// New creates a Client. Login must succeed before any other call.
func New(cfg config.Config, logger *zap.Logger) *Client {
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.RequestTimeout
	httpCfg.RetryAttempts = cfg.RetryAttempts
	httpCfg.RetryDelay = cfg.RetryDelay
	httpCfg.RateLimit = float64(cfg.RateLimitPerSec)

	return &Client{
		cfg:         cfg,
		http:        clients.NewHTTPClient(httpCfg, logger),
		logger:      logger.With(zap.String("component", "crm")),
		instanceURL: strings.TrimRight(cfg.InstanceURL, "/"),
	}
}

// Login obtains the first access token and resolves the instance URL.
func (c *Client) Login(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http.BaseClient())
	ts := newTokenSource(ctx, c.cfg)

	tok, err := ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			return errors.Wrap(err, errors.ErrorTypeAuthentication, "token refresh rejected")
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "token request failed")
	}

	c.mu.Lock()
	if c.instanceURL == "" {
		c.instanceURL = instanceURL(tok)
	}
	host := c.instanceURL
	c.mu.Unlock()

	if host == "" {
		return errors.New(errors.ErrorTypeAuthentication, "token response carried no instance_url")
	}

	c.http.UseTokenSource(ts)
	c.logger.Info("authenticated", zap.String("instance_url", host))
	return nil
}

// ListObjects returns the queryable entity names in API order.
func (c *Client) ListObjects(ctx context.Context) ([]string, error) {
	var resp struct {
		SObjects []struct {
			Name      string `json:"name"`
			Queryable bool   `json:"queryable"`
		} `json:"sobjects"`
	}
	if err := c.get(ctx, c.dataURL("/sobjects"), nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.SObjects))
	for _, o := range resp.SObjects {
		if !o.Queryable {
			c.logger.Debug("skipping unqueryable object", zap.String("object", o.Name))
			continue
		}
		names = append(names, o.Name)
	}
	return names, nil
}

// DescribeObject returns the fields of one entity.
func (c *Client) DescribeObject(ctx context.Context, name string) ([]catalog.Field, error) {
	var resp struct {
		Fields []struct {
			Name              string  `json:"name"`
			Type              string  `json:"type"`
			Nillable          bool    `json:"nillable"`
			CompoundFieldName *string `json:"compoundFieldName"`
		} `json:"fields"`
	}
	if err := c.get(ctx, c.dataURL("/sobjects/"+url.PathEscape(name)+"/describe"), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Fields) == 0 {
		return nil, errors.New(errors.ErrorTypeMetadata, "describe returned no fields").
			WithDetail("object", name)
	}

	fields := make([]catalog.Field, 0, len(resp.Fields))
	for _, f := range resp.Fields {
		field := catalog.Field{Name: f.Name, Type: f.Type, Nullable: f.Nillable}
		if f.CompoundFieldName != nil {
			field.CompositeGroup = *f.CompoundFieldName
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// RateLimitInfo returns the last Sforce-Limit-Info header value seen.
func (c *Client) RateLimitInfo() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limitInfo
}

// Stats returns HTTP request statistics
func (c *Client) Stats() clients.HTTPStats {
	return c.http.Stats()
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) get(ctx context.Context, endpoint string, headers map[string]string, out any) error {
	header, err := c.http.GetJSON(ctx, endpoint, headers, out)
	if header != nil {
		c.recordLimitInfo(header)
	}
	return err
}

func (c *Client) recordLimitInfo(header http.Header) {
	info := header.Get(LimitInfoHeader)
	if info == "" {
		return
	}

	c.mu.Lock()
	c.limitInfo = info
	c.mu.Unlock()

	if used, total, ok := catalog.ParseAPIUsage(info); ok {
		metrics.APIUsage.WithLabelValues("used").Set(float64(used))
		metrics.APIUsage.WithLabelValues("total").Set(float64(total))
	}
}

func (c *Client) dataURL(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s/services/data/v%s%s", c.instanceURL, c.cfg.APIVersion, path)
}

// absoluteURL resolves a server-relative path such as nextRecordsUrl.
func (c *Client) absoluteURL(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceURL + path
}

var _ catalog.MetadataSource = (*Client)(nil)
