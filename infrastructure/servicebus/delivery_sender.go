package servicebus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"echotree/domain/model"
	"echotree/infrastructure/logger"
)

// NewServiceBus connects to <namespace>.servicebus.windows.net with the default Azure credential chain.
func NewServiceBus(namespace string) (*azservicebus.Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(fmt.Sprintf("%s.servicebus.windows.net", namespace), cred, nil)
}

// IDeliverySender is the subset of *azservicebus.Sender the publisher needs.
type IDeliverySender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// DeliverySender queues delivery events on a Service Bus queue.
type DeliverySender struct {
	sender IDeliverySender
}

func NewDeliverySender(client *azservicebus.Client, queue string) (*DeliverySender, error) {
	if client == nil {
		return &DeliverySender{}, nil
	}
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while making new sender service bus.")
		return nil, err
	}
	return &DeliverySender{sender: sender}, nil
}

func NewDeliverySenderWith(sender IDeliverySender) *DeliverySender {
	return &DeliverySender{sender: sender}
}

func (s *DeliverySender) PublishDeliveryEvent(ctx context.Context, evt model.DeliveryEvent) error {
	if s == nil || s.sender == nil {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	contentType := "application/json"
	subject := evt.Type
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		ApplicationProperties: map[string]any{
			"post_id":  evt.PostID,
			"platform": string(evt.Platform),
			"status":   string(evt.Status),
		},
	}
	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

func (s *DeliverySender) Close(ctx context.Context) {
	if s == nil || s.sender == nil {
		return
	}
	if err := s.sender.Close(ctx); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while closing sender.")
	}
}
