package service

import "errors"

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrMalformedResponse  = errors.New("malformed payment gateway response")
)
