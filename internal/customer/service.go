package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"docintake/internal/credential"
	"docintake/internal/model"
	"docintake/internal/upstream"
)

const defaultName = "Customer"

// Cache remembers customer names between lookups.
type Cache interface {
	Get(ctx context.Context, customerID string) (name string, ok bool, err error)
	Set(ctx context.Context, customerID, name string) error
}

// Service resolves customer names through the banking API.
type Service interface {
	// Lookup returns model.ErrCustomerNotFound when the API does not know customerID.
	Lookup(ctx context.Context, customerID string) (*model.Customer, error)
}

type lookupBody struct {
	Customer struct {
		Name string `json:"name"`
	} `json:"customer"`
	Body []struct {
		CustomerName string `json:"customerName"`
	} `json:"body"`
}

type service struct {
	dispatcher upstream.Dispatcher
	creds      credential.Source
	path       string
	cache      Cache
	logger     *slog.Logger
}

// NewService builds a lookup Service querying <path>/<id>. cache may be nil.
func NewService(dispatcher upstream.Dispatcher, creds credential.Source, path string, cache Cache, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{dispatcher: dispatcher, creds: creds, path: path, cache: cache, logger: logger}
}

func (s *service) Lookup(ctx context.Context, customerID string) (*model.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, &model.ValidationError{Field: "customerId", Message: "Customer ID is required"}
	}

	if s.cache != nil {
		name, ok, err := s.cache.Get(ctx, customerID)
		if err != nil {
			s.logger.Warn("customer cache read failed", "customer_id", customerID, "error", err)
		} else if ok {
			return &model.Customer{ID: customerID, Name: name}, nil
		}
	}

	resp, err := s.fetch(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && s.creds != nil {
		s.creds.Invalidate(resp.IssuedWith)
		if resp, err = s.fetch(ctx, customerID); err != nil {
			return nil, err
		}
	}

	switch {
	case resp.OK():
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, model.ErrCustomerNotFound
	default:
		return nil, &model.DownstreamError{
			System: "core-banking",
			Detail: fmt.Sprintf("customer lookup returned status %d", resp.StatusCode),
		}
	}

	c := &model.Customer{ID: customerID, Name: customerName(resp.Body)}
	if s.cache != nil {
		if err := s.cache.Set(ctx, customerID, c.Name); err != nil {
			s.logger.Warn("customer cache write failed", "customer_id", customerID, "error", err)
		}
	}
	return c, nil
}

func (s *service) fetch(ctx context.Context, customerID string) (*upstream.ProxyResponse, error) {
	return s.dispatcher.Dispatch(ctx, upstream.ProxyRequest{
		Method:  http.MethodGet,
		SubPath: strings.TrimSuffix(s.path, "/") + "/" + url.PathEscape(customerID),
	})
}

func customerName(body []byte) string {
	var b lookupBody
	if err := json.Unmarshal(body, &b); err != nil {
		return defaultName
	}
	if b.Customer.Name != "" {
		return b.Customer.Name
	}
	if len(b.Body) > 0 && b.Body[0].CustomerName != "" {
		return b.Body[0].CustomerName
	}
	return defaultName
}
