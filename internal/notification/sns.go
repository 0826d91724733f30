// internal/notification/sns.go
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"cooin-core/internal/common/metrics"
)

// snsPublisher is the slice of the SNS client the dispatcher needs.
type snsPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSDispatcher publishes transition events to an SNS topic. Subscribers
// (mobile push, webhooks) fan out from there.
type SNSDispatcher struct {
	client   snsPublisher
	topicARN string
}

func NewSNSDispatcher(client snsPublisher, topicARN string) *SNSDispatcher {
	return &SNSDispatcher{client: client, topicARN: topicARN}
}

func (d *SNSDispatcher) Dispatch(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	_, err = d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(d.topicARN),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"transition": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(event.Transition()),
			},
		},
	})
	if err != nil {
		metrics.NotificationDispatchesTotal.WithLabelValues("sns", "error").Inc()
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	metrics.NotificationDispatchesTotal.WithLabelValues("sns", "success").Inc()
	return nil
}
