// Package api is the authenticated REST client of the rental marketplace.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"rentmarket/pkg/client/session"
)

// APIError is returned for every non-2xx response. Message is the server's
// message verbatim and may be empty.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// ServerMessage returns the server-provided message of err, or fallback.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Client struct {
	http    *resty.Client
	session *session.Session
	log     interface {
		Printf(string, ...any)
	}
}

// New builds a client for baseURL. The bearer token is read from sess on
// every request, and a 401 logs the session out before the error is returned.
func New(baseURL string, sess *session.Session) *Client {
	c := &Client{
		session: sess,
		log:     log.New(log.Writer(), "[api] ", log.LstdFlags),
	}

	c.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetRetryCount(0).
		OnBeforeRequest(c.authorize).
		OnAfterResponse(c.checkResponse)
	return c
}

func (c *Client) Session() *session.Session {
	return c.session
}

func (c *Client) authorize(_ *resty.Client, r *resty.Request) error {
	if token := c.session.Token(); token != "" {
		r.SetAuthToken(token)
	}
	return nil
}

func (c *Client) checkResponse(_ *resty.Client, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Message
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.log.Printf("%s %s: unauthorized, logging out", resp.Request.Method, resp.Request.URL)
		if err := c.session.Logout(); err != nil {
			c.log.Printf("logout failed: %v", err)
		}
	}
	return apiErr
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

// call executes the request and unwraps the data field of the response envelope.
func call[T any](r *resty.Request, method, path string) (T, error) {
	var env envelope[T]
	var zero T

	resp, err := r.SetResult(&env).Execute(method, path)
	if err != nil {
		return zero, err
	}
	if resp.IsError() {
		return zero, &APIError{StatusCode: resp.StatusCode()}
	}
	return env.Data, nil
}

// raw executes the request and returns the body unparsed.
func raw(r *resty.Request, method, path string) ([]byte, error) {
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
