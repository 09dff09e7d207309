// Package ldbws is a minimal client for the National Rail Live Departure
// Boards Web Service (OpenLDBWS).
//
// Only the station board operations used by the ingest pipeline are
// implemented. Requests are plain SOAP 1.1 envelopes carrying the access
// token in the AccessToken header.
package ldbws

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://lite.realtime.nationalrail.co.uk/OpenLDBWS/ldb11.asmx"
	DefaultNumRows  = 10
	DefaultTimeout  = 30 * time.Second

	tokenNamespace  = "http://thalesgroup.com/RTTI/2013-11-28/Token/types"
	ldbNamespace    = "http://thalesgroup.com/RTTI/2017-10-01/ldb/"
	actionNamespace = "http://thalesgroup.com/RTTI/2015-05-14/ldb/"

	// upstream rejects larger boards
	maxNumRows = 150

	// a full 150 row board with calling points is well under this
	maxResponseBytes = 8 << 20
)

var (
	ErrMissingToken = errors.New("ldbws: access token is required")
	ErrInvalidCRS   = errors.New("ldbws: crs code must be 3 letters")

	ErrResponseTooLarge = errors.New("ldbws: response body too large")
)

type operation string

const (
	opDepartures         operation = "GetDepBoardWithDetails"
	opArrivals           operation = "GetArrBoardWithDetails"
	opArrivalsDepartures operation = "GetArrDepBoardWithDetails"
)

// FaultError is a SOAP fault or unexpected HTTP status returned by the
// service.
type FaultError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *FaultError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ldbws: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ldbws: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	endpoint   string
	token      string
	numRows    int
	httpClient *http.Client
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithNumRows(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxNumRows {
			c.numRows = n
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		endpoint:   DefaultEndpoint,
		token:      token,
		numRows:    DefaultNumRows,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DepartureBoard returns the next departures from the station identified by crs.
func (c *Client) DepartureBoard(ctx context.Context, crs string) (*StationBoard, error) {
	return c.board(ctx, opDepartures, crs)
}

func (c *Client) ArrivalBoard(ctx context.Context, crs string) (*StationBoard, error) {
	return c.board(ctx, opArrivals, crs)
}

func (c *Client) ArrivalDepartureBoard(ctx context.Context, crs string) (*StationBoard, error) {
	return c.board(ctx, opArrivalsDepartures, crs)
}

func (c *Client) board(ctx context.Context, op operation, crs string) (*StationBoard, error) {
	crs = strings.ToUpper(strings.TrimSpace(crs))
	if len(crs) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCRS, crs)
	}

	body, err := c.envelope(op, crs)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", actionNamespace+string(op))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ldbws: %s %s: %w", op, crs, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("ldbws: read response: %w", err)
	}
	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, op, crs, maxResponseBytes)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &FaultError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("ldbws: decode response: %w", err)
	}
	if env.Body.Fault != nil {
		return nil, &FaultError{
			StatusCode: resp.StatusCode,
			Code:       strings.TrimSpace(env.Body.Fault.Code),
			Message:    strings.TrimSpace(env.Body.Fault.String),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FaultError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return env.Body.Response.Result, nil
}

func (c *Client) envelope(op operation, crs string) ([]byte, error) {
	var token, code bytes.Buffer
	if err := xml.EscapeText(&token, []byte(c.token)); err != nil {
		return nil, err
	}
	if err := xml.EscapeText(&code, []byte(crs)); err != nil {
		return nil, err
	}

	return []byte(fmt.Sprintf(requestTemplate,
		tokenNamespace, ldbNamespace,
		token.String(),
		op, c.numRows, code.String(), op,
	)), nil
}

const requestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:typ="%s" xmlns:ldb="%s">
<soap:Header><typ:AccessToken><typ:TokenValue>%s</typ:TokenValue></typ:AccessToken></soap:Header>
<soap:Body><ldb:%sRequest><ldb:numRows>%d</ldb:numRows><ldb:crs>%s</ldb:crs></ldb:%sRequest></soap:Body>
</soap:Envelope>`

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *soapFault `xml:"Fault"`
		Response struct {
			Result *StationBoard `xml:"GetStationBoardResult"`
		} `xml:",any"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}
