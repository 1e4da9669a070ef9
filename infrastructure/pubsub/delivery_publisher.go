package pubsub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"echotree/domain/model"
	"echotree/infrastructure/logger"
)

// NewPubSub opens a client. PUBSUB_EMULATOR_HOST is honoured by the SDK.
func NewPubSub(ctx context.Context, projectID, credentialsFile string, opts ...option.ClientOption) (*pubsub.Client, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return pubsub.NewClient(ctx, projectID, opts...)
}

// DeliveryPublisher forwards delivery events to a Pub/Sub topic as JSON.
type DeliveryPublisher struct {
	client    *pubsub.Client
	topicName string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewDeliveryPublisher(client *pubsub.Client, topic string) *DeliveryPublisher {
	return &DeliveryPublisher{client: client, topicName: topic}
}

// ensureTopic caches the topic only once it is known to exist; failures are retried on the next event.
func (p *DeliveryPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	topic := p.client.Topic(p.topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
		if topic, err = p.client.CreateTopic(ctx, p.topicName); err != nil {
			return nil, err
		}
	}
	p.topic = topic
	return topic, nil
}

func (p *DeliveryPublisher) PublishDeliveryEvent(ctx context.Context, evt model.DeliveryEvent) error {
	if p == nil || p.client == nil {
		return nil
	}
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	serverID, err := topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     evt.Type,
			"post_id":  strconv.FormatInt(evt.PostID, 10),
			"platform": string(evt.Platform),
			"status":   string(evt.Status),
		},
	}).Get(ctx)
	if err != nil {
		return err
	}
	logger.GetLogger().WithField("server_id", serverID).WithField("delivery_id", evt.DeliveryID).Debug("delivery event published")
	return nil
}

func (p *DeliveryPublisher) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
	}
}
