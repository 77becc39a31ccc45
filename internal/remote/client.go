package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/syncerr"
)

// EntityAPI is the per-kind contract the sync layer consumes. It is implemented
// by *Resource and by remotetest.Fake.
type EntityAPI interface {
	List(ctx context.Context) ([]entity.Entity, error)
	Create(ctx context.Context, draft entity.Entity) (entity.Entity, error)
	Update(ctx context.Context, id string, patch entity.Patch) (entity.Entity, error)
	Delete(ctx context.Context, id string) error
}

// Ensure Resource implements EntityAPI at compile time.
var _ EntityAPI = (*Resource)(nil)

// Client talks to the fleet management HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	token     string
}

const (
	defaultAPIBind   = "127.0.0.1:8080"
	defaultUserAgent = "fleetdash/0.1"
	requestTimeout   = 10 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a Client using the provided apiBind host:port value.
func NewClient(apiBind string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(apiBind)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resource binds the client to one entity kind. A non-empty scope restricts
// List to children of that parent id.
func (c *Client) Resource(kind entity.Kind, scope string) *Resource {
	return &Resource{client: c, kind: kind, scope: strings.TrimSpace(scope)}
}

// Resource is the EntityAPI for one kind and scope.
type Resource struct {
	client *Client
	kind   entity.Kind
	scope  string
}

// List retrieves every record in the collection.
func (r *Resource) List(ctx context.Context) ([]entity.Entity, error) {
	rel := &url.URL{Path: r.collectionPath()}
	if r.scope != "" {
		rel.RawQuery = url.Values{"parent": []string{r.scope}}.Encode()
	}
	var payload ListResponse
	if err := r.client.doURL(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return nil, err
	}
	items := make([]entity.Entity, 0, len(payload.Items))
	for _, rec := range payload.Items {
		items = append(items, rec.Entity())
	}
	return items, nil
}

// Create posts draft and returns the stored record with its server-assigned id.
// The draft's id is never sent.
func (r *Resource) Create(ctx context.Context, draft entity.Entity) (entity.Entity, error) {
	rec := RecordOf(draft)
	rec.ID = ""
	if rec.ParentID == "" {
		rec.ParentID = r.scope
	}
	var created Record
	if err := r.client.doURL(ctx, http.MethodPost, &url.URL{Path: r.collectionPath()}, rec, &created); err != nil {
		return entity.Entity{}, err
	}
	if created.ID == "" {
		return entity.Entity{}, syncerr.New(syncerr.CodeSerializationFailure, "create response carried no id")
	}
	return created.Entity(), nil
}

// Update sends only the patched fields.
func (r *Resource) Update(ctx context.Context, id string, patch entity.Patch) (entity.Entity, error) {
	if strings.TrimSpace(id) == "" {
		return entity.Entity{}, fmt.Errorf("update %s: id required", r.kind)
	}
	var updated Record
	if err := r.client.doURL(ctx, http.MethodPatch, &url.URL{Path: r.itemPath(id)}, patch, &updated); err != nil {
		return entity.Entity{}, err
	}
	return updated.Entity(), nil
}

// Delete removes the record. A 404 is treated as already deleted.
func (r *Resource) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete %s: id required", r.kind)
	}
	err := r.client.doURL(ctx, http.MethodDelete, &url.URL{Path: r.itemPath(id)}, nil, nil)
	if syncerr.StatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (r *Resource) collectionPath() string {
	return "/api/" + url.PathEscape(string(r.kind))
}

func (r *Resource) itemPath(id string) string {
	return r.collectionPath() + "/" + url.PathEscape(id)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return syncerr.Wrap(syncerr.CodeSerializationFailure, "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return syncerr.Wrap(syncerr.CodeNetworkUnavailable, "execute request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return syncerr.Rejected(rel.Path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return syncerr.Wrap(syncerr.CodeSerializationFailure, "decode response", err)
	}
	return nil
}

func parseBaseURL(apiBind string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBind)
	if trimmed == "" {
		trimmed = defaultAPIBind
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_bind %q: %w", apiBind, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
