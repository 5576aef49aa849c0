// Package client talks to a hosted data view service over its REST api,
// authenticating with the OAuth2 client credentials grant.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataview_client_requests_total",
		Help: "The total number of requests sent to the data view service",
	}, []string{"op", "code"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataview_client_request_duration_seconds",
		Help:    "Round trip time of data view service requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// maxPages stops a paged read that keeps returning next links.
const maxPages = 1000

type Config struct {
	Resource     string
	Tenant       string
	ApiVersion   string
	ClientID     string
	ClientSecret string
}

func (c Config) TokenURL() string {
	return strings.TrimRight(c.Resource, "/") + "/identity/connect/token"
}

type Client struct {
	Config     Config
	HttpClient *http.Client
	tokens     oauth2.TokenSource
	types      *lru.Cache[string, *types.SdsType]
}

var _ types.RemoteStore = (*Client)(nil)

// New returns a client that fetches and refreshes access tokens from the
// identity endpoint of cfg.Resource.
func New(ctx context.Context, cfg Config) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
	}
	tokens := cc.TokenSource(ctx)
	c := NewWithHTTPClient(cfg, oauth2.NewClient(ctx, tokens))
	c.tokens = tokens
	return c
}

// NewWithHTTPClient uses httpClient as is, without acquiring tokens.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.ApiVersion == "" {
		cfg.ApiVersion = "v1"
	}
	cache, err := lru.New[string, *types.SdsType](1024)
	if err != nil {
		panic(err)
	}
	return &Client{Config: cfg, HttpClient: httpClient, types: cache}
}

// Uri is the tenant base address every namespace call is made under.
func (c *Client) Uri() string {
	return fmt.Sprintf("%s/api/%s/Tenants/%s",
		strings.TrimRight(c.Config.Resource, "/"),
		url.PathEscape(c.Config.ApiVersion),
		url.PathEscape(c.Config.Tenant))
}

func (c *Client) namespaceURL(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(c.Uri())
	b.WriteString("/Namespaces/")
	b.WriteString(url.PathEscape(namespace))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// TokenInfo returns the claims of the current access token. The signature is
// not checked; the claims are only used for display.
func (c *Client) TokenInfo(ctx context.Context) (jwt.MapClaims, error) {
	if c.tokens == nil {
		return nil, errors.New("client has no token source")
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

type call struct {
	op     string
	kind   string
	id     string
	method string
	url    string
	body   any
	out    any
}

type errorBody struct {
	Error  string `json:"Error"`
	Reason string `json:"Reason"`
}

func (c *Client) do(ctx context.Context, cl call) (http.Header, error) {
	var body io.Reader
	switch b := cl.body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		data, err := jsoncompat.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%s: error marshaling request: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: error creating request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HttpClient.Do(req)
	requestDuration.WithLabelValues(cl.op).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(cl.op, "error").Inc()
		return nil, fmt.Errorf("%s: %w", cl.op, err)
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(cl.op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", cl.op, types.NotFoundError{Kind: cl.kind, ID: cl.id})
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, types.RemoteStoreError{Op: cl.op, StatusCode: resp.StatusCode, Message: readReason(resp.Body)}
	}
	if cl.out != nil && resp.StatusCode != http.StatusNoContent {
		if err := jsoncompat.NewDecoder(resp.Body).Decode(cl.out); err != nil {
			return nil, fmt.Errorf("%s: error decoding response: %w", cl.op, err)
		}
	}
	return resp.Header, nil
}

func readReason(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body errorBody
	if err := jsoncompat.Unmarshal(data, &body); err == nil && body.Reason != "" {
		return body.Reason
	}
	return strings.TrimSpace(string(data))
}

func typeCacheKey(namespace, typeID string) string {
	return namespace + "/" + typeID
}

// CreateType creates the type or returns the one stored under the same id.
// Types seen before are answered from a local cache.
func (c *Client) CreateType(ctx context.Context, namespace string, t *types.SdsType) (*types.SdsType, error) {
	key := typeCacheKey(namespace, t.Id)
	if cached, ok := c.types.Get(key); ok {
		return cached, nil
	}
	created := &types.SdsType{}
	if _, err := c.do(ctx, call{
		op: "create type", kind: "Type", id: t.Id,
		method: http.MethodPost, url: c.namespaceURL(namespace, "Types", t.Id),
		body: t, out: created,
	}); err != nil {
		return nil, err
	}
	c.types.Add(key, created)
	return created, nil
}

func (c *Client) DeleteType(ctx context.Context, namespace, typeID string) error {
	c.types.Remove(typeCacheKey(namespace, typeID))
	_, err := c.do(ctx, call{
		op: "delete type", kind: "Type", id: typeID,
		method: http.MethodDelete, url: c.namespaceURL(namespace, "Types", typeID),
	})
	return err
}

func (c *Client) CreateOrUpdateStream(ctx context.Context, namespace string, s *types.SdsStream) error {
	_, err := c.do(ctx, call{
		op: "create stream", kind: "Type", id: s.TypeId,
		method: http.MethodPost, url: c.namespaceURL(namespace, "Streams", s.Id),
		body: s,
	})
	return err
}

func (c *Client) InsertValues(ctx context.Context, namespace, streamID string, values []byte) error {
	_, err := c.do(ctx, call{
		op: "insert values", kind: "Stream", id: streamID,
		method: http.MethodPost, url: c.namespaceURL(namespace, "Streams", streamID, "Data"),
		body: values,
	})
	return err
}

func (c *Client) DeleteStream(ctx context.Context, namespace, streamID string) error {
	_, err := c.do(ctx, call{
		op: "delete stream", kind: "Stream", id: streamID,
		method: http.MethodDelete, url: c.namespaceURL(namespace, "Streams", streamID),
	})
	return err
}

func (c *Client) CreateView(ctx context.Context, namespace string, view *types.DataView) error {
	_, err := c.do(ctx, call{
		op: "create data view", kind: "Namespace", id: namespace,
		method: http.MethodPost, url: c.namespaceURL(namespace, "DataViews", view.Id),
		body: view,
	})
	return err
}

func (c *Client) GetView(ctx context.Context, namespace, viewID string) (*types.DataView, error) {
	view := &types.DataView{}
	if _, err := c.do(ctx, call{
		op: "get data view", kind: "DataView", id: viewID,
		method: http.MethodGet, url: c.namespaceURL(namespace, "DataViews", viewID),
		out: view,
	}); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *Client) PutView(ctx context.Context, namespace string, view *types.DataView) error {
	_, err := c.do(ctx, call{
		op: "put data view", kind: "DataView", id: view.Id,
		method: http.MethodPut, url: c.namespaceURL(namespace, "DataViews", view.Id),
		body: view,
	})
	return err
}

func (c *Client) DeleteView(ctx context.Context, namespace, viewID string) error {
	_, err := c.do(ctx, call{
		op: "delete data view", kind: "DataView", id: viewID,
		method: http.MethodDelete, url: c.namespaceURL(namespace, "DataViews", viewID),
	})
	return err
}

func (c *Client) resolvedItems(ctx context.Context, op, namespace, viewID, queryID, resource string) (*types.ResolvedItems, error) {
	items := &types.ResolvedItems{}
	if _, err := c.do(ctx, call{
		op: op, kind: "Query", id: queryID,
		method: http.MethodGet, url: c.namespaceURL(namespace, "DataViews", viewID, "Resolved", resource, queryID),
		out: items,
	}); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) ResolveDataItems(ctx context.Context, namespace, viewID, queryID string) (*types.ResolvedItems, error) {
	return c.resolvedItems(ctx, "resolve data items", namespace, viewID, queryID, "DataItems")
}

func (c *Client) ResolveIneligibleDataItems(ctx context.Context, namespace, viewID, queryID string) (*types.ResolvedItems, error) {
	return c.resolvedItems(ctx, "resolve ineligible data items", namespace, viewID, queryID, "IneligibleDataItems")
}

func (c *Client) ResolveAvailableFieldSets(ctx context.Context, namespace, viewID string) (*types.ResolvedFieldSets, error) {
	sets := &types.ResolvedFieldSets{}
	if _, err := c.do(ctx, call{
		op: "resolve available field sets", kind: "DataView", id: viewID,
		method: http.MethodGet, url: c.namespaceURL(namespace, "DataViews", viewID, "Resolved", "AvailableFieldSets"),
		out: sets,
	}); err != nil {
		return nil, err
	}
	return sets, nil
}

// GetInterpolatedData reads every page of the interpolated table, following
// the next links the service returns.
func (c *Client) GetInterpolatedData(ctx context.Context, namespace, viewID string, start, end time.Time, interval time.Duration) (types.Table, error) {
	values, err := types.NewInterpolationRequest(start, end, interval).Values()
	if err != nil {
		return nil, fmt.Errorf("get interpolated data: encode query: %w", err)
	}
	next := c.namespaceURL(namespace, "DataViews", viewID, "Data", "Interpolated") + "?" + values.Encode()
	table := types.Table{}
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("get interpolated data: more than %d pages", maxPages)
		}
		var rows types.Table
		header, err := c.do(ctx, call{
			op: "get interpolated data", kind: "DataView", id: viewID,
			method: http.MethodGet, url: next,
			out: &rows,
		})
		if err != nil {
			return nil, err
		}
		table = append(table, rows...)
		next = nextLink(header.Get("Link"))
	}
	return table, nil
}

// nextLink extracts the rel="next" target of a Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok {
			continue
		}
		for _, p := range strings.Split(params, ";") {
			if strings.EqualFold(strings.ReplaceAll(strings.TrimSpace(p), " ", ""), `rel="next"`) {
				return strings.Trim(strings.TrimSpace(target), "<>")
			}
		}
	}
	return ""
}
