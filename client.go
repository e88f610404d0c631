package docview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/emrgen/docview/internal/server"
	"github.com/emrgen/docview/internal/service"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type (
	Document        = server.DocumentResponse
	Link            = server.LinkResponse
	View            = server.ViewResponse
	Session         = server.SessionResponse
	Event           = server.EventRequest
	EventResult     = server.EventResponse
	DocumentRollup  = service.DocumentRollup
	SessionSummary  = service.SessionSummary
	SessionDetail   = service.SessionDetail
	DashboardEntry  = service.DashboardEntry
	RegisterRequest = server.RegisterDocumentRequest
)

// APIError is a non-2xx response of the docview api.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the api.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to a docview server over http.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL. An empty token makes
// the client a public viewer.
func NewClient(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "docview-cli/1.0")
	if token != "" {
		c.SetAuthToken(token)
	}

	c.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logrus.Debugf("%s %s: %d", resp.Request.Method, resp.Request.URL, resp.StatusCode())
		return nil
	})

	return &Client{http: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doQuery(ctx, method, path, nil, body, result)
}

func (c *Client) doQuery(ctx context.Context, method, path string, query map[string]string, body, result any) error {
	req := c.http.R().SetContext(ctx).SetError(&errorResponse{}).SetQueryParams(query)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
		if e, ok := resp.Error().(*errorResponse); ok && e.Error.Code != "" {
			apiErr.Code = e.Error.Code
			apiErr.Message = e.Error.Message
		}
		return apiErr
	}

	return nil
}

func (c *Client) RegisterDocument(ctx context.Context, req RegisterRequest) (*Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodPost, "/v1/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.do(ctx, http.MethodGet, "/v1/documents", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) SetPageCount(ctx context.Context, docID string, pages int) (*Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodPut, "/v1/documents/"+docID+"/pages", server.PageCountRequest{PageCount: pages}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument soft-deletes a document, or erases it with all its sessions.
func (c *Client) DeleteDocument(ctx context.Context, docID string, erase bool) error {
	query := map[string]string{"erase": strconv.FormatBool(erase)}
	return c.doQuery(ctx, http.MethodDelete, "/v1/documents/"+docID, query, nil, nil)
}

func (c *Client) IssueLink(ctx context.Context, docID string) (*Link, error) {
	var link Link
	if err := c.do(ctx, http.MethodPost, "/v1/documents/"+docID+"/links", nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) CurrentLink(ctx context.Context, docID string) (*Link, error) {
	var link Link
	if err := c.do(ctx, http.MethodGet, "/v1/documents/"+docID+"/links/current", nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) Resolve(ctx context.Context, publicToken string) (*View, error) {
	var view View
	if err := c.do(ctx, http.MethodGet, "/v1/view/"+publicToken, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) OpenSession(ctx context.Context, publicToken, sessionToken, email string) (*Session, error) {
	var session Session
	req := server.OpenSessionRequest{SessionToken: sessionToken, Email: email}
	if err := c.do(ctx, http.MethodPost, "/v1/view/"+publicToken+"/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SendEvent(ctx context.Context, event Event) (*EventResult, error) {
	var res EventResult
	if err := c.do(ctx, http.MethodPost, "/v1/events", event, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Rollup(ctx context.Context, docID, from, to string) (*DocumentRollup, error) {
	var rollup DocumentRollup
	path := "/v1/documents/" + docID + "/analytics"
	if err := c.doQuery(ctx, http.MethodGet, path, window(from, to, 0), nil, &rollup); err != nil {
		return nil, err
	}
	return &rollup, nil
}

func (c *Client) ListSessions(ctx context.Context, docID, from, to string, limit int) ([]SessionSummary, error) {
	var sessions []SessionSummary
	path := "/v1/documents/" + docID + "/sessions"
	if err := c.doQuery(ctx, http.MethodGet, path, window(from, to, limit), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) SessionDetail(ctx context.Context, sessionToken string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionToken, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) Dashboard(ctx context.Context) ([]DashboardEntry, error) {
	var entries []DashboardEntry
	if err := c.do(ctx, http.MethodGet, "/v1/dashboard", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func window(from, to string, limit int) map[string]string {
	query := map[string]string{}
	if from != "" {
		query["from"] = from
	}
	if to != "" {
		query["to"] = to
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	return query
}
