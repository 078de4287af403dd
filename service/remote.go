package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/AnTengye/leaseflow/config"
	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
)

// RemoteStore is a ContractRepository backed by an external contract service
// over HTTP.
//
//	GET  /contracts/{id}
//	GET  /contracts?account=&building_id=&status=&request_status=&workflow=&page=&limit=
//	POST /contracts
//	PUT  /contracts/{id}   (If-Match: <version>)
type RemoteStore struct {
	client *resty.Client
}

// RemoteListResponse is the body returned by the remote listing endpoint
type RemoteListResponse struct {
	Contracts []*model.Contract `json:"contracts"`
	Total     int               `json:"total"`
}

// RemoteUpdateRequest is the body sent when storing a transition result
type RemoteUpdateRequest struct {
	Action   lifecycle.Action `json:"action"`
	Contract *model.Contract  `json:"contract"`
}

func NewRemoteStore(cfg *config.StoreConfig) *RemoteStore {
	client := resty.New().
		SetBaseURL(cfg.RemoteURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.RemoteToken != "" {
		client.SetAuthToken(cfg.RemoteToken)
	}

	slog.Info("contract store initialized", "driver", "remote", "url", cfg.RemoteURL)
	return &RemoteStore{client: client}
}

// remoteError maps a transport failure or an unexpected status to the
// repository error vocabulary.
func remoteError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", lifecycle.ErrPersistenceUnavailable, op, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return lifecycle.ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w: %s: remote status %d", lifecycle.ErrPersistenceUnavailable, op, code)
	default:
		return fmt.Errorf("%s: unexpected remote status %d: %s", op, code, resp.String())
	}
}

func (s *RemoteStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	var contract model.Contract
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&contract).
		Get("/contracts/{id}")
	if err != nil || resp.StatusCode() != http.StatusOK {
		return nil, remoteError("get contract", resp, err)
	}
	return &contract, nil
}

func (s *RemoteStore) List(ctx context.Context, filter ListFilter, page Page) ([]*model.Contract, int, error) {
	page = page.Normalize()
	params := map[string]string{
		"page":  strconv.Itoa(page.Page),
		"limit": strconv.Itoa(page.Limit),
	}
	for key, value := range map[string]string{
		"account":        filter.Account,
		"building_id":    filter.BuildingID,
		"status":         string(filter.Status),
		"request_status": filter.RequestStatus,
		"workflow":       filter.Workflow,
	} {
		if value != "" {
			params[key] = value
		}
	}

	var result RemoteListResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Get("/contracts")
	if err != nil || resp.StatusCode() != http.StatusOK {
		return nil, 0, remoteError("list contracts", resp, err)
	}
	return result.Contracts, result.Total, nil
}

func (s *RemoteStore) Create(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	var created model.Contract
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(c).
		SetResult(&created).
		Post("/contracts")
	if err != nil {
		return nil, remoteError("create contract", resp, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return &created, nil
	case http.StatusConflict:
		return nil, ErrAlreadyExists
	default:
		return nil, remoteError("create contract", resp, nil)
	}
}

func (s *RemoteStore) Update(ctx context.Context, c *model.Contract, action lifecycle.Action) (*model.Contract, error) {
	var updated model.Contract
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", c.ID).
		SetHeader("If-Match", strconv.FormatInt(c.Version, 10)).
		SetBody(RemoteUpdateRequest{Action: action, Contract: c}).
		SetResult(&updated).
		Put("/contracts/{id}")
	if err != nil {
		return nil, remoteError("update contract", resp, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &updated, nil
	case http.StatusConflict, http.StatusPreconditionFailed:
		return nil, ErrVersionConflict
	default:
		return nil, remoteError("update contract", resp, nil)
	}
}
