// internal/notification/ses.go
package notification

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"cooin-core/internal/common/metrics"
	"cooin-core/internal/models"
)

// sesSender is the slice of the SES client the dispatcher needs.
type sesSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// RecipientDirectory resolves a user id to a deliverable email address.
type RecipientDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// SESDispatcher emails the party that needs to act on (or hear about) a
// transition: the receiver for new proposals, the requester for responses.
type SESDispatcher struct {
	client    sesSender
	directory RecipientDirectory
	fromEmail string
}

func NewSESDispatcher(client sesSender, directory RecipientDirectory, fromEmail string) *SESDispatcher {
	return &SESDispatcher{client: client, directory: directory, fromEmail: fromEmail}
}

func (d *SESDispatcher) Dispatch(ctx context.Context, event Event) error {
	recipientID := event.ReceiverID
	if event.OldStatus == models.ConnectionPending {
		// Responses and blocks are news for the original requester.
		recipientID = event.RequesterID
	}

	address, err := d.directory.EmailFor(ctx, recipientID)
	if err != nil {
		metrics.NotificationDispatchesTotal.WithLabelValues("email", "error").Inc()
		return fmt.Errorf("failed to resolve notification recipient: %w", err)
	}

	subject, body := renderEmail(event)
	_, err = d.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(d.fromEmail),
		Destination: &types.Destination{ToAddresses: []string{address}},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body)},
			},
		},
	})
	if err != nil {
		metrics.NotificationDispatchesTotal.WithLabelValues("email", "error").Inc()
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	metrics.NotificationDispatchesTotal.WithLabelValues("email", "success").Inc()
	return nil
}

func renderEmail(event Event) (subject, body string) {
	switch event.NewStatus {
	case models.ConnectionPending:
		return "New connection request",
			"You have a new connection request waiting for your response."
	case models.ConnectionAccepted:
		return "Connection accepted",
			"Your connection request was accepted. You can now exchange messages."
	case models.ConnectionRejected:
		return "Connection declined",
			"Your connection request was declined."
	case models.ConnectionExpired:
		return "Connection request expired",
			"Your connection request expired without a response."
	default:
		return "Connection update",
			fmt.Sprintf("Connection %s changed state to %s.", event.ConnectionID, event.NewStatus)
	}
}
