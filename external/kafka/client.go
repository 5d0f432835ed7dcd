package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type Config struct {
	BootstrapServers []string `conf:"default:localhost:9092"`
	TopicPrefix      string   `conf:"default:eth-"`
}

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Client produces one record per row. The topic is derived from the stream and the key is the record key
// so compacted topics keep a single row per slot.
type Client struct {
	kcl         KafkaClient
	topicPrefix string
	logger      *zap.SugaredLogger
}

func NewClient(kafkaClient KafkaClient, topicPrefix string, logger *zap.SugaredLogger) *Client {
	return &Client{
		kcl:         kafkaClient,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

func (kc *Client) Name() string {
	return "kafka"
}

func (kc *Client) Publish(ctx context.Context, records []entities.Record) error {
	wg := sync.WaitGroup{}
	errorChannel := make(chan error, len(records))

	for _, r := range records {
		record, err := kc.createRecord(r)
		if err != nil {
			kc.logger.Errorw("Error while creating kafka record", "stream", r.Stream(), "key", r.Key(), "error", err)
			errorChannel <- err
			break
		}

		wg.Add(1)
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				kc.logger.Errorw("Error while producing kafka record", "topic", record.Topic, "error", err)
				errorChannel <- err
				return
			}
			errorChannel <- nil
		})
	}

	wg.Wait()
	close(errorChannel)

	for err := range errorChannel {
		if err != nil {
			return errors.Wrap(err, "producing records")
		}
	}

	return nil
}

func (kc *Client) topic(stream entities.Stream) string {
	return kc.topicPrefix + string(stream)
}

func (kc *Client) createRecord(r entities.Record) (*kgo.Record, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s record to json: %w", r.Stream(), err)
	}

	return &kgo.Record{
		Topic: kc.topic(r.Stream()),
		Key:   []byte(r.Key()),
		Value: payload,
	}, nil
}
