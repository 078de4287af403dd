package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AnTengye/leaseflow/handler"
)

// apiError is a failed API call as reported by the server.
type apiError struct {
	Status  int
	Code    string
	Message string
	Guard   string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	if e.Guard != "" {
		msg += ": guard " + e.Guard
	}
	return msg
}

type client struct {
	http *resty.Client
}

func newClient(server, token string) *client {
	c := resty.New().
		SetBaseURL(server+"/api").
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &client{http: c}
}

func (c *client) check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &apiError{Status: resp.StatusCode(), Message: resp.Status()}
	if body, ok := resp.Error().(*handler.ErrorResponse); ok && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Guard = body.Guard
	}
	return apiErr
}

func (c *client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&handler.ErrorResponse{})
}

func (c *client) Login(ctx context.Context, username, password string) (*handler.LoginResponse, error) {
	var out handler.LoginResponse
	resp, err := c.request(ctx).
		SetBody(handler.LoginRequest{Username: username, Password: password}).
		SetResult(&out).
		Post("/auth/login")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

type listOptions struct {
	Status        string
	BuildingID    string
	RequestStatus string
	Workflow      string
	Page          int
	Limit         int
}

func (c *client) List(ctx context.Context, opts listOptions) (*handler.ListResponse, error) {
	params := map[string]string{}
	for key, value := range map[string]string{
		"status":         opts.Status,
		"building_id":    opts.BuildingID,
		"request_status": opts.RequestStatus,
		"workflow":       opts.Workflow,
	} {
		if value != "" {
			params[key] = value
		}
	}
	if opts.Page > 0 {
		params["page"] = strconv.Itoa(opts.Page)
	}
	if opts.Limit > 0 {
		params["limit"] = strconv.Itoa(opts.Limit)
	}

	var out handler.ListResponse
	resp, err := c.request(ctx).SetQueryParams(params).SetResult(&out).Get("/contracts")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Get(ctx context.Context, id string) (*handler.ContractResponse, error) {
	var out handler.ContractResponse
	resp, err := c.request(ctx).SetPathParam("id", id).SetResult(&out).Get("/contracts/{id}")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

type actionsResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
}

func (c *client) Actions(ctx context.Context, id string) (*actionsResponse, error) {
	var out actionsResponse
	resp, err := c.request(ctx).SetPathParam("id", id).SetResult(&out).Get("/contracts/{id}/actions")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Create(ctx context.Context, req handler.CreateContractRequest) (*handler.ContractResponse, error) {
	var out handler.ContractResponse
	resp, err := c.request(ctx).SetBody(req).SetResult(&out).Post("/contracts")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Perform(ctx context.Context, id, action string, body handler.ActionRequest) (*handler.ContractResponse, error) {
	var out handler.ContractResponse
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"id": id, "action": action}).
		SetBody(body).
		SetResult(&out).
		Post("/contracts/{id}/actions/{action}")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm opens a confirmation for action and commits it.
func (c *client) Confirm(ctx context.Context, id, action string, body handler.ActionRequest) (*handler.ContractResponse, error) {
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetBody(handler.ConfirmationRequest{Action: action}).
		Post("/contracts/{id}/confirmations")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}

	var out handler.ContractResponse
	resp, err = c.request(ctx).
		SetPathParam("id", id).
		SetBody(body).
		SetResult(&out).
		Post("/contracts/{id}/confirmations/commit")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) CaptureSignature(ctx context.Context, id string, image []byte) (string, error) {
	var out struct {
		SignatureURL string `json:"signature_url"`
	}
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&out).
		Post("/contracts/{id}/signature")
	if err := c.check(resp, err); err != nil {
		return "", err
	}
	return out.SignatureURL, nil
}
