package etherscan

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

const statusOk = "1"

// Config defaults to mainnet, the deposit contract is the beacon chain deposit contract.
type Config struct {
	Url             string        `conf:"default:https://api.etherscan.io/api"`
	ApiKey          string        `conf:"optional,mask"`
	DepositContract string        `conf:"default:0x00000000219ab540356cBB839Cbe05303d7705Fa"`
	Timeout         time.Duration `conf:"default:30s"`
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type ethSupply2 struct {
	EthSupply      string `json:"EthSupply"`
	Eth2Staking    string `json:"Eth2Staking"`
	BurntFees      string `json:"BurntFees"`
	WithdrawnTotal string `json:"WithdrawnTotal"`
}

// Client reads supply statistics from the etherscan stats and account apis. The free tier allows one
// request every five seconds, callers have to space their calls.
type Client struct {
	hc              *http.Client
	baseUrl         string
	apiKey          string
	depositContract common.Address
}

func NewClient(cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.DepositContract) {
		return nil, errors.Errorf("invalid deposit contract address [%s]", cfg.DepositContract)
	}
	return &Client{
		hc:              &http.Client{Timeout: cfg.Timeout},
		baseUrl:         strings.TrimSuffix(cfg.Url, "/"),
		apiKey:          cfg.ApiKey,
		depositContract: common.HexToAddress(cfg.DepositContract),
	}, nil
}

func (c *Client) GetEthSupply(ctx context.Context) (*entities.EthSupply, error) {
	params := url.Values{}
	params.Set("module", "stats")
	params.Set("action", "ethsupply2")

	result, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var raw ethSupply2
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, &entities.SchemaValidationError{Path: "result", Reason: err.Error(), Body: result}
	}

	supply := entities.EthSupply{}
	for _, field := range []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"EthSupply", raw.EthSupply, &supply.ElSupply},
		{"BurntFees", raw.BurntFees, &supply.BurntFees},
		{"Eth2Staking", raw.Eth2Staking, &supply.StakingRewards},
		{"WithdrawnTotal", raw.WithdrawnTotal, &supply.StakingWithdrawals},
	} {
		value, err := parseWei("result."+field.name, field.value, result)
		if err != nil {
			return nil, err
		}
		*field.dst = value
	}
	return &supply, nil
}

// GetDepositContractBalance returns the balance of the beacon chain deposit contract in wei.
func (c *Client) GetDepositContractBalance(ctx context.Context) (*big.Int, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "balance")
	params.Set("address", c.depositContract.Hex())
	params.Set("tag", "latest")

	result, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var balance string
	if err := json.Unmarshal(result, &balance); err != nil {
		return nil, &entities.SchemaValidationError{Path: "result", Reason: err.Error(), Body: result}
	}
	return parseWei("result", balance, result)
}

func (c *Client) call(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	path := c.baseUrl + "?" + params.Encode()
	action := params.Get("action")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &entities.NetworkError{Path: action, Err: errors.Wrap(err, "creating request")}
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, &entities.NetworkError{Path: action, Err: errors.Wrap(err, "calling etherscan")}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &entities.NetworkError{Path: action, Err: errors.Wrap(err, "reading response body")}
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &entities.NetworkError{Path: action, Err: errors.Wrapf(err, "decoding response, status [%s]", res.Status)}
	}
	if decoded.Status != statusOk {
		// on failure etherscan puts the error text into result
		message := decoded.Message
		var detail string
		if json.Unmarshal(decoded.Result, &detail) == nil && detail != "" {
			message = message + ": " + detail
		}
		return nil, &entities.RemoteAPIError{Path: action, Code: res.StatusCode, Message: message}
	}
	return decoded.Result, nil
}

func parseWei(path, value string, body []byte) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, &entities.SchemaValidationError{Path: path, Reason: "expected a non negative integer", Body: body}
	}
	return parsed, nil
}
