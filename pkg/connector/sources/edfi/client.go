// Package edfi implements the change-feed source for Ed-Fi ODS/API
// instances: client-credentials authentication, offset pagination bounded by
// change versions, and the write-back delete and post operations.
package edfi

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/edsync/pkg/clients"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/metrics"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/retry"
	"go.uber.org/zap"
)

// DeletesPageCeiling caps the page size of delete feeds.
const DeletesPageCeiling = 5000

// maxErrorBody bounds the response excerpt attached to errors
const maxErrorBody = 512

// Client talks to one Ed-Fi API instance. It is safe for concurrent use;
// the access token is shared by all callers.
type Client struct {
	baseURL      string
	yearSpecific bool
	pageLimit    int

	http   *clients.HTTPClient
	tokens *TokenManager
	policy *retry.Policy
	logger *zap.Logger
}

var _ core.WritableSource = (*Client)(nil)

// NewClient creates a client. A nil policy selects retry.DefaultPolicy.
func NewClient(cfg *config.SourceConfig, httpClient *clients.HTTPClient, policy *retry.Policy, logger *zap.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid source base_url")
	}
	if cfg.PageLimit <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "source page_limit must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpCfg := clients.DefaultHTTPConfig()
		httpCfg.RequestTimeout = cfg.RequestTimeout
		if cfg.IsRateLimited() {
			httpCfg.RateLimit = cfg.RateLimitPerSec
			httpCfg.RateBurst = cfg.RateLimitBurst
			logger.Debug("rate limiting source requests",
				zap.Float64("requests_per_second", cfg.RateLimitPerSec),
				zap.Int("burst", cfg.RateLimitBurst))
		}
		httpClient = clients.NewHTTPClient(httpCfg, logger)
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}

	logger = logger.With(zap.String("component", "edfi_source"))
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		baseURL:      baseURL,
		yearSpecific: cfg.IsYearSpecific(),
		pageLimit:    cfg.PageLimit,
		http:         httpClient,
		tokens:       NewTokenManager(baseURL, cfg.ClientID, cfg.ClientSecret, httpClient.StdClient(), logger),
		policy:       policy,
		logger:       logger,
	}, nil
}

type availableChangeVersions struct {
	OldestChangeVersion int64 `json:"OldestChangeVersion"`
	NewestChangeVersion int64 `json:"NewestChangeVersion"`
}

// CurrentVersion returns the newest change version of the instance.
func (c *Client) CurrentVersion(ctx context.Context, sourceKey string) (int64, error) {
	scope, err := c.scope(sourceKey)
	if err != nil {
		return 0, err
	}

	resp, err := c.execute(ctx, "current_version", http.MethodGet, c.baseURL+"/changeQueries/v1"+scope+"/availableChangeVersions", nil, nil, retryRead)
	if err != nil {
		return 0, err
	}

	var versions availableChangeVersions
	if err := jsonpool.Unmarshal(resp.body, &versions); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeData, "failed to decode available change versions")
	}

	c.logger.Info("resolved current change version",
		zap.String("source_key", sourceKey),
		zap.Int64("newest_change_version", versions.NewestChangeVersion))
	return versions.NewestChangeVersion, nil
}

// FetchPages yields the pages of endpoint from offset zero until the first
// empty page, which is yielded as well. Requests are only issued while the
// consumer keeps pulling.
func (c *Client) FetchPages(ctx context.Context, sourceKey string, endpoint models.Endpoint, bounds *models.VersionRange) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		scope, err := c.scope(sourceKey)
		if err != nil {
			yield(models.Page{}, err)
			return
		}

		limit := c.PageSize(endpoint)
		base := c.baseURL + "/data/v3" + scope + endpoint.Path

		for offset := 0; ; offset += limit {
			if err := ctx.Err(); err != nil {
				yield(models.Page{Offset: offset}, err)
				return
			}

			page, err := c.fetchPage(ctx, base, limit, offset, bounds)
			if err != nil {
				if !errors.IsCancellation(err) {
					err = errors.Wrap(err, errors.ErrorTypeConnection,
						fmt.Sprintf("failed to fetch %s at offset %d", endpoint.Path, offset))
				}
				yield(models.Page{Offset: offset}, err)
				return
			}
			metrics.PagesExtracted.WithLabelValues(endpoint.Path).Inc()

			if !yield(page, nil) || page.Empty() {
				return
			}
		}
	}
}

// PageSize returns the number of records requested per page of endpoint.
func (c *Client) PageSize(endpoint models.Endpoint) int {
	if endpoint.IsDeleteVariant && c.pageLimit > DeletesPageCeiling {
		return DeletesPageCeiling
	}
	return c.pageLimit
}

func (c *Client) fetchPage(ctx context.Context, base string, limit, offset int, bounds *models.VersionRange) (models.Page, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	if bounds != nil {
		query.Set("minChangeVersion", strconv.FormatInt(bounds.From+1, 10))
		query.Set("maxChangeVersion", strconv.FormatInt(bounds.To, 10))
	}

	resp, err := c.execute(ctx, "fetch_page", http.MethodGet, base+"?"+query.Encode(), nil, nil, retryRead)
	if err != nil {
		return models.Page{}, err
	}

	var records []stdjson.RawMessage
	if err := jsonpool.Unmarshal(resp.body, &records); err != nil {
		return models.Page{}, errors.Wrap(err, errors.ErrorTypeData, "failed to decode page")
	}
	return models.Page{Offset: offset, Records: records}, nil
}

// Delete removes the record id from endpoint. A record that is already gone
// yields DeleteAbsent.
func (c *Client) Delete(ctx context.Context, sourceKey string, endpoint models.Endpoint, id string) (core.DeleteOutcome, error) {
	if id == "" {
		return "", errors.New(errors.ErrorTypeValidation, "record id is required")
	}
	scope, err := c.scope(sourceKey)
	if err != nil {
		return "", err
	}

	target := c.baseURL + "/data/v3" + scope + endpoint.Path + "/" + url.PathEscape(id)
	resp, err := c.execute(ctx, "delete", http.MethodDelete, target, nil, func(status int) bool {
		return status == http.StatusNotFound
	}, retryRead)
	if err != nil {
		return "", err
	}

	if resp.status == http.StatusNotFound {
		c.logger.Debug("record already absent", zap.String("endpoint", endpoint.Path), zap.String("id", id))
		return core.DeleteAbsent, nil
	}
	return core.DeleteRemoved, nil
}

// Post creates records one request at a time and returns the Location of
// each. The first failure stops the batch.
func (c *Client) Post(ctx context.Context, sourceKey string, endpoint models.Endpoint, records [][]byte) ([]string, error) {
	scope, err := c.scope(sourceKey)
	if err != nil {
		return nil, err
	}

	target := c.baseURL + "/data/v3" + scope + endpoint.Path
	locations := make([]string, 0, len(records))
	for i, record := range records {
		resp, err := c.execute(ctx, "post", http.MethodPost, target, record, nil, retryWrite)
		if err != nil {
			return locations, errors.Wrap(err, errors.ErrorTypeQuery,
				fmt.Sprintf("post %d of %d to %s failed", i+1, len(records), endpoint.Path)).
				WithDetail("created", len(locations))
		}
		locations = append(locations, resp.header.Get("Location"))
	}
	return locations, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	stats := c.http.GetStats()
	c.logger.Debug("source client closed",
		zap.Int64("requests", stats.TotalRequests),
		zap.Int64("failed_requests", stats.FailedRequests))
	return c.http.Close()
}

func (c *Client) scope(sourceKey string) (string, error) {
	if !c.yearSpecific {
		return "", nil
	}
	if sourceKey == "" {
		return "", errors.New(errors.ErrorTypeValidation, "source key (school year) is required in YearSpecific mode")
	}
	return "/" + url.PathEscape(sourceKey), nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// retryRead retries every failure except rejected credentials and requests
// that could not be built.
func retryRead(err error) bool {
	return !errors.IsType(err, errors.ErrorTypeAuthentication) && !errors.IsType(err, errors.ErrorTypeValidation)
}

// retryWrite retries only transport failures. A record the server answered
// for, accepted or not, is never sent again.
func retryWrite(err error) bool {
	return errors.StatusCode(err) == 0 && errors.IsType(err, errors.ErrorTypeConnection)
}

// execute performs one logical call under the retry policy, retrying the
// failures retryIf accepts. A 401 refreshes the token once within the
// attempt; a second 401 is permanent. Statuses accepted by accept are
// returned instead of failing.
func (c *Client) execute(ctx context.Context, operation, method, target string, body []byte, accept func(int) bool, retryIf func(error) bool) (*response, error) {
	policy := c.policy.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		metrics.Retries.WithLabelValues(operation).Inc()
		c.logger.Warn("request failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})

	var out *response
	err := policy.ExecuteWithCondition(ctx, func() error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		resp, err := c.send(ctx, method, target, body, token)
		if err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized {
			if token, err = c.tokens.Refresh(ctx, token); err != nil {
				return err
			}
			if resp, err = c.send(ctx, method, target, body, token); err != nil {
				return err
			}
		}

		if (resp.status >= 200 && resp.status < 300) || (accept != nil && accept(resp.status)) {
			out = resp
			return nil
		}
		return errors.FromStatus(resp.status, fmt.Sprintf("%s %s returned %d", method, stripQuery(target), resp.status)).
			WithDetail("body", excerpt(resp.body))
	}, retryIf)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, token string) (*response, error) {
	var reader io.Reader
	headers := map[string]string{"Authorization": "Bearer " + token}
	if body != nil {
		reader = bytes.NewReader(body)
		headers["Content-Type"] = "application/json"
	}

	req, err := c.http.NewRequest(ctx, method, target, reader, headers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.IsCancellation(err) && ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").WithDetail("url", stripQuery(target))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// stripQuery drops the query string from URLs attached to errors.
func stripQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func excerpt(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
