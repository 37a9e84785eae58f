package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dayuer/chatgw/internal/config"
)

func TestEventTopics(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Events.OutboundChannel = "out"
	cfg.Events.SMSInboundChannel = "sms-in"

	assert.Equal(t, map[string]string{"outbound": "out"}, eventTopics(cfg))

	cfg.Channels.SMS = config.SMSChannelConfig{ApplicationID: "app", OriginationNumber: "+15550100"}
	assert.Equal(t, map[string]string{"outbound": "out", "sms": "sms-in"}, eventTopics(cfg))
}
