// Package client talks to the classpoll REST API and live-count stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/editor"
	"github.com/stemsi/classpoll/internal/model"
	"github.com/stemsi/classpoll/internal/response"
)

const apiPrefix = "/api/v1"

// APIError is a request the server answered with an error envelope.
// Transport failures are returned as plain errors instead.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code response.ErrCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// HTTP implements editor.Backend over the REST API.
type HTTP struct {
	baseURL string
	token   string
	hc      *http.Client
	log     zerolog.Logger
}

var _ editor.Backend = (*HTTP)(nil)

// NewHTTP creates a client for the API at baseURL using a bearer token.
func NewHTTP(baseURL, token string, log zerolog.Logger) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// do sends body as JSON and decodes the envelope's data into out, if out is non-nil.
func (c *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: response.ErrInternal, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode, Code: response.ErrInternal, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// FetchSession returns the full question tree of a session.
func (c *HTTP) FetchSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	var s model.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID.String(), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTP) UpdateQuestionField(ctx context.Context, questionID uuid.UUID, field model.QuestionField, value any) error {
	return c.patchField(ctx, "/questions/"+questionID.String(), string(field), value)
}

func (c *HTTP) UpdateOptionField(ctx context.Context, optionID uuid.UUID, field model.OptionField, value any) error {
	return c.patchField(ctx, "/options/"+optionID.String(), string(field), value)
}

func (c *HTTP) patchField(ctx context.Context, path, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	return c.do(ctx, http.MethodPatch, path, model.UpdateFieldRequest{Field: field, Value: raw}, nil)
}

func (c *HTTP) UpdateQuestionsOrder(ctx context.Context, sessionID uuid.UUID, items []model.OrderItem) error {
	return c.do(ctx, http.MethodPut, "/sessions/"+sessionID.String()+"/questions/order", model.UpdateOrderRequest{Items: items}, nil)
}

func (c *HTTP) UpdateOptionsOrder(ctx context.Context, questionID uuid.UUID, items []model.OrderItem) error {
	return c.do(ctx, http.MethodPut, "/questions/"+questionID.String()+"/options/order", model.UpdateOrderRequest{Items: items}, nil)
}

func (c *HTTP) CreateQuestion(ctx context.Context, sessionID uuid.UUID, title string) (*model.Question, error) {
	var q model.Question
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID.String()+"/questions", model.CreateQuestionRequest{Title: title}, &q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTP) DuplicateQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, http.MethodPost, "/questions/"+questionID.String()+"/duplicate", nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTP) DeleteQuestion(ctx context.Context, questionID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/questions/"+questionID.String(), nil, nil)
}

func (c *HTTP) CreateOption(ctx context.Context, questionID uuid.UUID, title string) (*model.Option, error) {
	var o model.Option
	err := c.do(ctx, http.MethodPost, "/questions/"+questionID.String()+"/options", model.CreateOptionRequest{Title: title}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) DuplicateOption(ctx context.Context, optionID uuid.UUID) (*model.Option, error) {
	var o model.Option
	if err := c.do(ctx, http.MethodPost, "/options/"+optionID.String()+"/duplicate", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) DeleteOption(ctx context.Context, optionID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/options/"+optionID.String(), nil, nil)
}

// Login exchanges credentials for a token and uses it for later calls.
func (c *HTTP) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", model.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// Token returns the bearer token in use.
func (c *HTTP) Token() string { return c.token }

// BaseURL returns the API root the client talks to.
func (c *HTTP) BaseURL() string { return c.baseURL }
