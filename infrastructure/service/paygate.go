package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"
)

const (
	payPath     = "/pay"
	statusPath  = "/status"
	balancePath = "/check-balance"
)

type IGateway interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PayResponse, error)
	QueryStatus(ctx context.Context, txReference string) (*StatusResponse, error)
	QueryBalance(ctx context.Context) (json.RawMessage, error)
}

type payGateClient struct {
	client    *resty.Client
	authToken string
}

// NewPayGateClient never retries: a failed call is reported to the caller as is.
func NewPayGateClient(baseURL, authToken string, timeout time.Duration) IGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &payGateClient{client: client, authToken: authToken}
}

func (c *payGateClient) InitiatePayment(ctx context.Context, req PaymentRequest) (*PayResponse, error) {
	body := payBody{
		AuthToken:   c.authToken,
		PhoneNumber: req.PhoneNumber,
		Amount:      json.Number(req.Amount.String()),
		Description: req.Description,
		Identifier:  req.Identifier,
		Network:     req.Network,
	}

	raw, err := c.post(ctx, payPath, body)
	if err != nil {
		return nil, err
	}

	var out PayResponse
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, payPath, err)
	}
	out.Raw = raw

	log.Infow("payment initiated", "identifier", req.Identifier, "txReference", out.TxReference, "accepted", out.Accepted())
	return &out, nil
}

func (c *payGateClient) QueryStatus(ctx context.Context, txReference string) (*StatusResponse, error) {
	raw, err := c.post(ctx, statusPath, statusBody{AuthToken: c.authToken, TxReference: txReference})
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, statusPath, err)
	}
	out.Raw = raw

	log.Infow("transaction status", "txReference", txReference, "paymentReference", out.PaymentReference, "confirmed", out.Confirmed())
	return &out, nil
}

func (c *payGateClient) QueryBalance(ctx context.Context) (json.RawMessage, error) {
	raw, err := c.post(ctx, balancePath, balanceBody{AuthToken: c.authToken})
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, balancePath)
	}
	return raw, nil
}

func (c *payGateClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		log.Errorw("gateway request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, path, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		log.Errorw("gateway server error", "path", path, "status", resp.Status())
		return nil, fmt.Errorf("%w: %s returned %s", ErrGatewayUnavailable, path, resp.Status())
	}
	if resp.IsError() {
		log.Warnw("gateway rejected request", "path", path, "status", resp.Status(), "body", string(resp.Body()))
		return nil, fmt.Errorf("%w: %s returned %s", ErrGatewayRejected, path, resp.Status())
	}

	return resp.Body(), nil
}
