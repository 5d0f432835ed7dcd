package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/business/schema"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

const (
	pathFinalizedHeader = "/eth/v1/beacon/headers/finalized"
	pathGetBlock        = "/eth/v2/beacon/blocks/%s"
	pathGetValidators   = "/eth/v1/beacon/states/%s/validators"

	markerFinalizedHeader = "can't be nil"
	markerBlock           = "could not find requested block"
	markerValidators      = "could not get validator container"

	maxLoggedBody = 2048
)

// Outcome tags what a single call produced before any schema validation happened.
type Outcome int

const (
	OutcomeNetworkFailure Outcome = iota
	OutcomeErrorEnvelope
	OutcomePayload
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNetworkFailure:
		return "network_failure"
	case OutcomeErrorEnvelope:
		return "error_envelope"
	case OutcomePayload:
		return "payload"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome  Outcome
	Body     []byte
	Envelope *entities.ErrorEnvelope
	Err      error
}

type Config struct {
	Url         string        `conf:"default:http://localhost:5052"`
	ReadTimeout time.Duration `conf:"default:60s"`
}

// Client reads from a beacon node REST API. It never retries, the polling loops decide when to call again.
type Client struct {
	hc          *http.Client
	host        string
	readTimeout time.Duration
	limits      schema.Limits
	logger      *zap.SugaredLogger
}

func NewClient(host string, readTimeout time.Duration, limits schema.Limits, logger *zap.SugaredLogger) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		hc:          &http.Client{Transport: transport},
		host:        strings.TrimSuffix(host, "/"),
		readTimeout: readTimeout,
		limits:      limits,
		logger:      logger,
	}
}

// Get performs one request and classifies the response. Non 200 bodies are read as well because the node
// reports errors through the json envelope.
func (c *Client) Get(ctx context.Context, path string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return networkFailure(path, errors.Wrap(err, "creating request"))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		return networkFailure(path, errors.Wrap(err, "calling beacon node"))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return networkFailure(path, errors.Wrap(err, "reading response body"))
	}
	c.logger.Debugw("Beacon node call finished", "path", path, "status", res.StatusCode, "duration", time.Since(start))

	if !json.Valid(body) {
		return networkFailure(path, errors.Errorf("response is not valid json, status [%s]", res.Status))
	}

	if envelope, ok := schema.DecodeEnvelope(body); ok {
		return Result{Outcome: OutcomeErrorEnvelope, Body: body, Envelope: envelope}
	}
	return Result{Outcome: OutcomePayload, Body: body}
}

func networkFailure(path string, err error) Result {
	return Result{Outcome: OutcomeNetworkFailure, Err: &entities.NetworkError{Path: path, Err: err}}
}

// fetchAndValidate turns a classified result into a validated value or a taxonomy error.
func fetchAndValidate[T any](ctx context.Context, c *Client, path, marker string, parse func([]byte) (T, error)) (T, error) {
	var zero T

	res := c.Get(ctx, path)
	switch res.Outcome {
	case OutcomeNetworkFailure:
		return zero, res.Err
	case OutcomeErrorEnvelope:
		if strings.Contains(strings.ToLower(res.Envelope.Message), marker) {
			return zero, &entities.MissingDataError{Path: path, Message: res.Envelope.Message}
		}
		switch res.Envelope.Code {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError:
			return zero, &entities.RemoteAPIError{Path: path, Code: res.Envelope.Code, Message: res.Envelope.Message}
		}
		c.logger.Warnw("Unexpected error envelope, validating as payload", "path", path, "code", res.Envelope.Code, "message", res.Envelope.Message)
	}

	value, err := parse(res.Body)
	if err != nil {
		var schemaErr *entities.SchemaValidationError
		if errors.As(err, &schemaErr) {
			c.logger.Errorw("Response failed schema validation", "path", path, "field", schemaErr.Path, "reason", schemaErr.Reason, "body", truncate(schemaErr.Body))
		}
		return zero, err
	}
	return value, nil
}

func truncate(body []byte) string {
	if len(body) <= maxLoggedBody {
		return string(body)
	}
	return string(body[:maxLoggedBody]) + "..."
}

func (c *Client) GetFinalizedSlot(ctx context.Context) (uint64, error) {
	return fetchAndValidate(ctx, c, pathFinalizedHeader, markerFinalizedHeader, schema.ParseFinalizedHeader)
}

func (c *Client) GetBlock(ctx context.Context, slot uint64) (*entities.BlockResponse, error) {
	path := fmt.Sprintf(pathGetBlock, strconv.FormatUint(slot, 10))
	return fetchAndValidate(ctx, c, path, markerBlock, func(body []byte) (*entities.BlockResponse, error) {
		return schema.ParseBlock(body, c.limits)
	})
}

func (c *Client) GetValidators(ctx context.Context, slot uint64) (*entities.ValidatorsResponse, error) {
	path := fmt.Sprintf(pathGetValidators, strconv.FormatUint(slot, 10))
	return fetchAndValidate(ctx, c, path, markerValidators, schema.ParseValidators)
}
