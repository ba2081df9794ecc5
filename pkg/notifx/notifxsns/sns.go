package notifxsns

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/beejcap/lsp-auth/pkg/notifx"
)

// SNSProvider implements notifx.SMSSender using AWS SNS direct publish.
type SNSProvider struct {
	client   *sns.Client
	senderID string
}

// NewSNSProvider creates a new SNS SMS provider. senderID is optional.
func NewSNSProvider(client *sns.Client, senderID string) *SNSProvider {
	return &SNSProvider{
		client:   client,
		senderID: senderID,
	}
}

// SendSMS publishes the message directly to the phone number as a
// transactional SMS.
func (p *SNSProvider) SendSMS(ctx context.Context, msg notifx.SMSMessage) (*notifx.SendResult, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if p.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.senderID),
		}
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.PhoneNumber),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return nil, notifx.ErrRegistry.NewWithCause(notifx.CodeSendFailed, err).
			WithDetail("phone_number", msg.PhoneNumber)
	}

	return &notifx.SendResult{
		MessageID: aws.ToString(out.MessageId),
		Accepted:  true,
	}, nil
}
