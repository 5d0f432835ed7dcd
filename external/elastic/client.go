package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/pkg/errors"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type Config struct {
	Addresses   []string      `conf:"default:http://localhost:9200"`
	Username    string        `conf:"optional"`
	Password    string        `conf:"optional,mask"`
	IndexPrefix string        `conf:"default:eth-"`
	Timeout     time.Duration `conf:"default:30s"`
}

// Client indexes records with the bulk api, one index per stream. The record key is the document id.
type Client struct {
	indexPrefix string
	esClient    *elasticsearch.Client
}

func NewClient(cfg Config) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}

	esClient, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating elasticsearch client")
	}

	return &Client{
		indexPrefix: cfg.IndexPrefix,
		esClient:    esClient,
	}, nil
}

func (es *Client) Name() string {
	return "elastic"
}

func (es *Client) Publish(ctx context.Context, records []entities.Record) error {
	if len(records) == 0 {
		return nil
	}

	body, err := es.bulkBody(records)
	if err != nil {
		return err
	}

	res, err := es.esClient.Bulk(bytes.NewReader(body), es.esClient.Bulk.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "sending bulk request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("bulk request rejected: %s", res.String())
	}

	return checkBulkResponse(res.Body)
}

func (es *Client) bulkBody(records []entities.Record) ([]byte, error) {
	var buf bytes.Buffer

	for _, r := range records {
		// Metadata line for each document
		meta := []byte(fmt.Sprintf(`{ "index": { "_index": "%s", "_id": "%s" } }%s`, es.indexPrefix+string(r.Stream()), r.Key(), "\n"))
		buf.Write(meta)

		data, err := json.Marshal(r)
		if err != nil {
			return nil, errors.Wrapf(err, "serializing [%s] record", r.Stream())
		}
		buf.Write(data)
		buf.Write([]byte("\n"))
	}

	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Index  string `json:"_index"`
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// checkBulkResponse fails on the first rejected document, the bulk api answers 200 even if items failed.
func checkBulkResponse(body io.Reader) error {
	var resp bulkResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return errors.Wrap(err, "decoding bulk response")
	}
	if !resp.Errors {
		return nil
	}
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error != nil {
				return errors.Errorf("indexing document [%s] in [%s] failed with status [%d]: %s: %s",
					result.ID, result.Index, result.Status, result.Error.Type, result.Error.Reason)
			}
		}
	}
	return errors.New("bulk request reported errors")
}
