package contactcenter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	connecttypes "github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/aws/aws-sdk-go-v2/service/connectparticipant"
	cptypes "github.com/aws/aws-sdk-go-v2/service/connectparticipant/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/logger"
)

const textPlain = "text/plain"

// Contact attributes attached to every chat started by the gateway.
const (
	AttrChannel  = "Channel"
	AttrVendorID = "VendorId"
)

type chatAPI interface {
	StartChatContact(ctx context.Context, in *connect.StartChatContactInput, optFns ...func(*connect.Options)) (*connect.StartChatContactOutput, error)
	StartContactStreaming(ctx context.Context, in *connect.StartContactStreamingInput, optFns ...func(*connect.Options)) (*connect.StartContactStreamingOutput, error)
}

type participantAPI interface {
	CreateParticipantConnection(ctx context.Context, in *connectparticipant.CreateParticipantConnectionInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.CreateParticipantConnectionOutput, error)
	SendMessage(ctx context.Context, in *connectparticipant.SendMessageInput, optFns ...func(*connectparticipant.Options)) (*connectparticipant.SendMessageOutput, error)
}

// ConnectOptions selects the Amazon Connect instance and flow.
type ConnectOptions struct {
	InstanceID    string
	ContactFlowID string
	// StreamingEndpointARN receives the chat's messages (agent replies)
	// when set; the outbound path consumes that stream.
	StreamingEndpointARN string
}

// ConnectClient implements Client on Amazon Connect.
type ConnectClient struct {
	chats        chatAPI
	participants participantAPI
	opts         ConnectOptions
	log          *zap.Logger
}

// NewConnect creates a ConnectClient.
func NewConnect(chats chatAPI, participants participantAPI, opts ConnectOptions, log *zap.Logger) *ConnectClient {
	return &ConnectClient{
		chats:        chats,
		participants: participants,
		opts:         opts,
		log:          logger.OrNop(log).Named("connect"),
	}
}

// StartChat starts a chat contact and, when configured, its message stream.
func (c *ConnectClient) StartChat(ctx context.Context, ch channels.Channel, vendorID string) (Session, error) {
	out, err := c.chats.StartChatContact(ctx, &connect.StartChatContactInput{
		InstanceId:    aws.String(c.opts.InstanceID),
		ContactFlowId: aws.String(c.opts.ContactFlowID),
		ParticipantDetails: &connecttypes.ParticipantDetails{
			DisplayName: aws.String(vendorID),
		},
		Attributes: map[string]string{
			AttrChannel:  string(ch),
			AttrVendorID: vendorID,
		},
		ClientToken:                    aws.String(uuid.NewString()),
		SupportedMessagingContentTypes: []string{textPlain},
	})
	if err != nil {
		return Session{}, fmt.Errorf("start chat contact: %w", err)
	}

	s := Session{
		ContactID:        aws.ToString(out.ContactId),
		ParticipantToken: aws.ToString(out.ParticipantToken),
	}
	if s.ContactID == "" || s.ParticipantToken == "" {
		return Session{}, errors.New("start chat contact: empty contact id or participant token")
	}

	if c.opts.StreamingEndpointARN != "" {
		_, err := c.chats.StartContactStreaming(ctx, &connect.StartContactStreamingInput{
			InstanceId: aws.String(c.opts.InstanceID),
			ContactId:  aws.String(s.ContactID),
			ChatStreamingConfiguration: &connecttypes.ChatStreamingConfiguration{
				StreamingEndpointArn: aws.String(c.opts.StreamingEndpointARN),
			},
			ClientToken: aws.String(uuid.NewString()),
		})
		if err != nil {
			return Session{}, fmt.Errorf("start contact streaming for %s: %w", s.ContactID, err)
		}
	}

	c.log.Info("chat started",
		zap.String("contact_id", s.ContactID),
		zap.String("channel", string(ch)))
	return s, nil
}

// CreateConnection connects the customer participant and returns its connection token.
func (c *ConnectClient) CreateConnection(ctx context.Context, participantToken string) (string, error) {
	out, err := c.participants.CreateParticipantConnection(ctx, &connectparticipant.CreateParticipantConnectionInput{
		ParticipantToken:   aws.String(participantToken),
		Type:               []cptypes.ConnectionType{cptypes.ConnectionTypeConnectionCredentials},
		ConnectParticipant: aws.Bool(true),
	})
	if err != nil {
		return "", classify("create participant connection", err)
	}
	if out.ConnectionCredentials == nil || aws.ToString(out.ConnectionCredentials.ConnectionToken) == "" {
		return "", errors.New("create participant connection: no connection token returned")
	}
	return aws.ToString(out.ConnectionCredentials.ConnectionToken), nil
}

// SendMessage posts plain text as the customer.
func (c *ConnectClient) SendMessage(ctx context.Context, connectionToken, content string) error {
	_, err := c.participants.SendMessage(ctx, &connectparticipant.SendMessageInput{
		ConnectionToken: aws.String(connectionToken),
		Content:         aws.String(content),
		ContentType:     aws.String(textPlain),
		ClientToken:     aws.String(uuid.NewString()),
	})
	if err != nil {
		return classify("send message", err)
	}
	return nil
}

// classify maps a rejected credential to ErrSessionEnded.
func classify(op string, err error) error {
	var denied *cptypes.AccessDeniedException
	if errors.As(err, &denied) {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionEnded, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
