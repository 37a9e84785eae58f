package contactcenter

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/connectparticipant"
	cptypes "github.com/aws/aws-sdk-go-v2/service/connectparticipant/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/chatgw/internal/channels"
)

type fakeChats struct {
	started   *connect.StartChatContactInput
	streaming *connect.StartContactStreamingInput
	err       error
}

func (f *fakeChats) StartChatContact(_ context.Context, in *connect.StartChatContactInput, _ ...func(*connect.Options)) (*connect.StartChatContactOutput, error) {
	f.started = in
	if f.err != nil {
		return nil, f.err
	}
	return &connect.StartChatContactOutput{
		ContactId:        aws.String("contact-1"),
		ParticipantId:    aws.String("participant-1"),
		ParticipantToken: aws.String("ptoken-1"),
	}, nil
}

func (f *fakeChats) StartContactStreaming(_ context.Context, in *connect.StartContactStreamingInput, _ ...func(*connect.Options)) (*connect.StartContactStreamingOutput, error) {
	f.streaming = in
	return &connect.StartContactStreamingOutput{StreamingId: aws.String("stream-1")}, nil
}

type fakeParticipants struct {
	connected *connectparticipant.CreateParticipantConnectionInput
	sent      *connectparticipant.SendMessageInput
	err       error
}

func (f *fakeParticipants) CreateParticipantConnection(_ context.Context, in *connectparticipant.CreateParticipantConnectionInput, _ ...func(*connectparticipant.Options)) (*connectparticipant.CreateParticipantConnectionOutput, error) {
	f.connected = in
	if f.err != nil {
		return nil, f.err
	}
	return &connectparticipant.CreateParticipantConnectionOutput{
		ConnectionCredentials: &cptypes.ConnectionCredentials{ConnectionToken: aws.String("ctoken-1")},
	}, nil
}

func (f *fakeParticipants) SendMessage(_ context.Context, in *connectparticipant.SendMessageInput, _ ...func(*connectparticipant.Options)) (*connectparticipant.SendMessageOutput, error) {
	f.sent = in
	if f.err != nil {
		return nil, f.err
	}
	return &connectparticipant.SendMessageOutput{Id: aws.String("msg-1")}, nil
}

// --- Amazon Connect ---

func TestConnect_StartChat(t *testing.T) {
	chats := &fakeChats{}
	c := NewConnect(chats, &fakeParticipants{}, ConnectOptions{InstanceID: "inst", ContactFlowID: "flow"}, nil)

	s, err := c.StartChat(context.Background(), channels.Zalo, "z-user")
	require.NoError(t, err)
	assert.Equal(t, Session{ContactID: "contact-1", ParticipantToken: "ptoken-1"}, s)

	require.NotNil(t, chats.started)
	assert.Equal(t, "inst", aws.ToString(chats.started.InstanceId))
	assert.Equal(t, "flow", aws.ToString(chats.started.ContactFlowId))
	assert.Equal(t, map[string]string{AttrChannel: "ZALO", AttrVendorID: "z-user"}, chats.started.Attributes)
	assert.NotEmpty(t, aws.ToString(chats.started.ClientToken))
	assert.Nil(t, chats.streaming, "no streaming endpoint configured")
}

func TestConnect_StartChatWithStreaming(t *testing.T) {
	chats := &fakeChats{}
	c := NewConnect(chats, &fakeParticipants{}, ConnectOptions{
		InstanceID: "inst", ContactFlowID: "flow", StreamingEndpointARN: "arn:aws:sns:topic",
	}, nil)

	_, err := c.StartChat(context.Background(), channels.WeChat, "o-1")
	require.NoError(t, err)
	require.NotNil(t, chats.streaming)
	assert.Equal(t, "contact-1", aws.ToString(chats.streaming.ContactId))
	assert.Equal(t, "arn:aws:sns:topic", aws.ToString(chats.streaming.ChatStreamingConfiguration.StreamingEndpointArn))
}

func TestConnect_StartChatError(t *testing.T) {
	c := NewConnect(&fakeChats{err: errors.New("throttled")}, &fakeParticipants{}, ConnectOptions{}, nil)
	_, err := c.StartChat(context.Background(), channels.SMS, "+1")
	assert.Error(t, err)
}

func TestConnect_CreateConnectionAndSend(t *testing.T) {
	parts := &fakeParticipants{}
	c := NewConnect(&fakeChats{}, parts, ConnectOptions{}, nil)

	token, err := c.CreateConnection(context.Background(), "ptoken-1")
	require.NoError(t, err)
	assert.Equal(t, "ctoken-1", token)
	assert.True(t, aws.ToBool(parts.connected.ConnectParticipant))
	assert.Equal(t, []cptypes.ConnectionType{cptypes.ConnectionTypeConnectionCredentials}, parts.connected.Type)

	require.NoError(t, c.SendMessage(context.Background(), token, "hello"))
	assert.Equal(t, "hello", aws.ToString(parts.sent.Content))
	assert.Equal(t, "text/plain", aws.ToString(parts.sent.ContentType))
	assert.Equal(t, "ctoken-1", aws.ToString(parts.sent.ConnectionToken))
}

func TestConnect_AccessDeniedMeansSessionEnded(t *testing.T) {
	parts := &fakeParticipants{err: &cptypes.AccessDeniedException{Message: aws.String("expired")}}
	c := NewConnect(&fakeChats{}, parts, ConnectOptions{}, nil)

	assert.ErrorIs(t, c.SendMessage(context.Background(), "old", "hi"), ErrSessionEnded)
	_, err := c.CreateConnection(context.Background(), "old")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestConnect_OtherErrorsAreNotSessionEnded(t *testing.T) {
	c := NewConnect(&fakeChats{}, &fakeParticipants{err: errors.New("timeout")}, ConnectOptions{}, nil)
	err := c.SendMessage(context.Background(), "tok", "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionEnded)
}

// --- Loopback ---

func TestLoopback_Flow(t *testing.T) {
	l := NewLoopback(nil)
	ctx := context.Background()

	s, err := l.StartChat(ctx, channels.Facebook, "u1")
	require.NoError(t, err)
	token, err := l.CreateConnection(ctx, s.ParticipantToken)
	require.NoError(t, err)

	require.NoError(t, l.SendMessage(ctx, token, "one"))
	require.NoError(t, l.SendMessage(ctx, token, "two"))
	assert.Equal(t, []string{"one", "two"}, l.Messages(s.ContactID))
	assert.Equal(t, 1, l.Sessions())
}

func TestLoopback_EndedSession(t *testing.T) {
	l := NewLoopback(nil)
	ctx := context.Background()

	s, _ := l.StartChat(ctx, channels.Facebook, "u1")
	token, _ := l.CreateConnection(ctx, s.ParticipantToken)
	l.End(s.ContactID)

	assert.ErrorIs(t, l.SendMessage(ctx, token, "late"), ErrSessionEnded)
	_, err := l.CreateConnection(ctx, s.ParticipantToken)
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.ErrorIs(t, l.SendMessage(ctx, "unknown", "x"), ErrSessionEnded)
}
