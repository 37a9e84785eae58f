package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint/types"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
	"github.com/dayuer/chatgw/internal/utils"
)

const smsMaxText = 1600

// pinpointAPI is the subset of the Pinpoint client the SMS adapter calls.
type pinpointAPI interface {
	SendMessages(ctx context.Context, in *pinpoint.SendMessagesInput, optFns ...func(*pinpoint.Options)) (*pinpoint.SendMessagesOutput, error)
}

// SMSAdapter sends through an Amazon Pinpoint application and parses the
// two-way SMS notifications it publishes. It has no webhook surface.
type SMSAdapter struct {
	client            pinpointAPI
	applicationID     string
	originationNumber string
	log               *zap.Logger
}

// NewSMS creates an SMSAdapter.
func NewSMS(client pinpointAPI, applicationID, originationNumber string, log *zap.Logger) *SMSAdapter {
	return &SMSAdapter{
		client:            client,
		applicationID:     applicationID,
		originationNumber: originationNumber,
		log:               logger.OrNop(log).Named("sms"),
	}
}

// Channel returns SMS.
func (s *SMSAdapter) Channel() Channel { return SMS }

// ParseInbound reads one two-way SMS notification.
func (s *SMSAdapter) ParseInbound(_ context.Context, payload []byte) []NormalizedMessage {
	if !gjson.ValidBytes(payload) {
		s.log.Warn("ignoring non-JSON notification")
		return nil
	}
	n := gjson.ParseBytes(payload)

	from := n.Get("originationNumber").String()
	body := n.Get("messageBody").String()
	if from == "" || body == "" {
		s.log.Info("ignoring notification without sender or body")
		return nil
	}
	return []NormalizedMessage{{
		Channel:   SMS,
		VendorID:  from,
		Text:      body,
		MessageID: n.Get("inboundMessageId").String(),
	}}
}

// SendOutbound sends a transactional SMS and requires a SUCCESSFUL delivery status.
func (s *SMSAdapter) SendOutbound(ctx context.Context, vendorID, content string) error {
	if s.client == nil || s.applicationID == "" {
		return s.failed(vendorID, errors.New("sms: pinpoint application not configured"))
	}

	out, err := s.client.SendMessages(ctx, &pinpoint.SendMessagesInput{
		ApplicationId: aws.String(s.applicationID),
		MessageRequest: &types.MessageRequest{
			Addresses: map[string]types.AddressConfiguration{
				vendorID: {ChannelType: types.ChannelTypeSms},
			},
			MessageConfiguration: &types.DirectMessageConfiguration{
				SMSMessage: &types.SMSMessage{
					Body:              aws.String(utils.TruncateString(content, smsMaxText, "...")),
					MessageType:       types.MessageTypeTransactional,
					OriginationNumber: aws.String(s.originationNumber),
				},
			},
		},
	})
	if err != nil {
		return s.failed(vendorID, fmt.Errorf("sms: send: %w", err))
	}
	if out.MessageResponse == nil {
		return s.failed(vendorID, errors.New("sms: empty response"))
	}

	result, ok := out.MessageResponse.Result[vendorID]
	if !ok {
		return s.failed(vendorID, errors.New("sms: no result for recipient"))
	}
	switch result.DeliveryStatus {
	case types.DeliveryStatusSuccessful:
		return nil
	case types.DeliveryStatusPermanentFailure, types.DeliveryStatusOptOut:
		return s.failed(vendorID, fmt.Errorf("%w: sms: %s: %s",
			ErrRecipientGone, result.DeliveryStatus, aws.ToString(result.StatusMessage)))
	default:
		return s.failed(vendorID, fmt.Errorf("sms: %s: %s", result.DeliveryStatus, aws.ToString(result.StatusMessage)))
	}
}

func (s *SMSAdapter) failed(vendorID string, err error) error {
	s.log.Error("outbound delivery failed", zap.String("vendor_id", vendorID), zap.Error(err))
	return err
}
