package mainframe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rami-aouinti/shopware-sub000/internal/sanitize"
)

// Client talks to the mainframe over its query-parameter HTTP dialect.
type Client struct {
	http   *resty.Client
	params ProtocolParams
	logger *zap.Logger
	tracer trace.Tracer
	bearer string
}

func NewClient(params ProtocolParams, logger *zap.Logger) *Client {
	client := resty.New()
	client.SetRetryCount(0)

	return NewClientWithResty(params, client, logger)
}

// NewClientWithResty uses client as is. Per-call timeouts are applied through the request context.
func NewClientWithResty(params ProtocolParams, client *resty.Client, logger *zap.Logger) *Client {
	if client == nil {
		client = resty.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client.SetRetryCount(0)

	return &Client{
		http:   client,
		params: params,
		logger: logger,
		tracer: otel.Tracer("mainframe-order-sync/mainframe"),
	}
}

// WithBearer returns a copy sending an Authorization bearer header, for upstream order sources
// other than the mainframe itself.
func (c *Client) WithBearer(token string) *Client {
	clone := *c
	clone.bearer = strings.TrimSpace(token)
	return &clone
}

// FetchOrders reads the order list. Missing configuration or an unreadable body yields an empty
// list and a nil error; transport failures yield an empty list and the error.
func (c *Client) FetchOrders(ctx context.Context, baseURL, authToken string, timeout time.Duration, readFunction string) ([]map[string]any, error) {
	requestURL, ok := c.buildURL(baseURL, readFunction, authToken, nil)
	if !ok {
		return []map[string]any{}, nil
	}

	body, err := c.execute(ctx, http.MethodGet, requestURL, nil, timeout, readFunction)
	if err != nil {
		c.logger.Warn("mainframe order fetch failed",
			zap.String("function", readFunction),
			zap.String("error", sanitize.Mask(err.Error())),
		)
		return []map[string]any{}, err
	}

	tree, err := ParseTree([]byte(body))
	if err != nil {
		c.logger.Warn("mainframe order list is not readable xml",
			zap.String("function", readFunction),
			zap.String("error", sanitize.Mask(err.Error())),
		)
		return []map[string]any{}, nil
	}

	return ExtractOrders(tree), nil
}

// SendByDirectPost posts the order document as the request body and returns the raw response.
func (c *Client) SendByDirectPost(ctx context.Context, baseURL, authToken string, xmlBody []byte, timeout time.Duration, writeFunction string) (string, error) {
	requestURL, ok := c.buildURL(baseURL, writeFunction, authToken, nil)
	if !ok {
		return "", nil
	}

	return c.execute(ctx, http.MethodPost, requestURL, xmlBody, timeout, writeFunction)
}

// SendBySignedURLPull asks the mainframe to fetch the document from callbackURL itself.
func (c *Client) SendBySignedURLPull(ctx context.Context, baseURL, authToken, callbackURL string, timeout time.Duration, writeFunction string) (string, error) {
	extra := map[string]string{ParamFileTransferURL: callbackURL}
	requestURL, ok := c.buildURL(baseURL, writeFunction, authToken, extra)
	if !ok {
		return "", nil
	}

	return c.execute(ctx, http.MethodGet, requestURL, nil, timeout, writeFunction)
}

func (c *Client) buildURL(baseURL, function, authToken string, extra map[string]string) (string, bool) {
	requestURL, err := BuildRequestURL(baseURL, c.params, function, authToken, extra)
	if err == nil {
		return requestURL, true
	}

	var missing *MissingParamsError
	if errors.As(err, &missing) {
		c.logger.Warn("mainframe call skipped: configuration incomplete",
			zap.String("function", function),
			zap.Strings("missing", missing.Missing),
		)
	} else {
		c.logger.Warn("mainframe call skipped", zap.String("function", function), zap.Error(err))
	}
	return "", false
}

func (c *Client) execute(ctx context.Context, method, requestURL string, body []byte, timeout time.Duration, function string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "mainframe."+strings.ToLower(method), trace.WithAttributes(
		attribute.String("mainframe.function", function),
	))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	request := c.http.R().SetContext(ctx)
	if c.bearer != "" {
		request.SetAuthToken(c.bearer)
	}
	if body != nil {
		request.SetHeader("Content-Type", "application/xml").SetBody(body)
	}

	response, err := request.Execute(method, requestURL)
	if err != nil {
		transportErr := &TransportError{
			Message:   "mainframe request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
		span.RecordError(errors.New(sanitize.Mask(transportErr.Error())))
		span.SetStatus(codes.Error, "request failed")
		return "", transportErr
	}
	if response == nil {
		span.SetStatus(codes.Error, "empty response")
		return "", &TransportError{Message: "mainframe returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	responseBody := response.String()

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return responseBody, nil
	}

	span.SetStatus(codes.Error, fmt.Sprintf("status %d", statusCode))
	return "", &TransportError{
		StatusCode: statusCode,
		Message:    statusMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func statusMessage(statusCode int, body string) string {
	base := fmt.Sprintf("mainframe returned status %d", statusCode)
	if trimmed := trimBody(body); trimmed != "" {
		return base + ": " + trimmed
	}
	return base
}
