package asyncmqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonCode(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "Success", ReasonSuccess.String())
		assert.Equal(t, "Keep Alive timeout", ReasonKeepAliveTimeout.String())
		assert.Equal(t, "Unknown reason code", ReasonCode(0x03).String())
	})

	t.Run("error range", func(t *testing.T) {
		assert.False(t, ReasonGrantedQoS2.IsError())
		assert.True(t, ReasonGrantedQoS2.IsSuccess())
		assert.True(t, ReasonUnspecifiedError.IsError())
		assert.False(t, ReasonPacketTooLarge.IsSuccess())
	})
}

func TestConnackReasonV311(t *testing.T) {
	tests := []struct {
		code byte
		want ReasonCode
	}{
		{0x00, ReasonSuccess},
		{0x01, ReasonUnsupportedProtocolVersion},
		{0x02, ReasonClientIDNotValid},
		{0x03, ReasonServerUnavailable},
		{0x04, ReasonBadUserNameOrPassword},
		{0x05, ReasonNotAuthorized},
		{0x06, ReasonUnspecifiedError},
		{0xFF, ReasonUnspecifiedError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, connackReasonV311(tt.code), "code 0x%02X", tt.code)
	}
}

func TestSubackReasonV311(t *testing.T) {
	assert.Equal(t, ReasonGrantedQoS0, subackReasonV311(0x00))
	assert.Equal(t, ReasonGrantedQoS1, subackReasonV311(0x01))
	assert.Equal(t, ReasonGrantedQoS2, subackReasonV311(0x02))
	assert.Equal(t, ReasonUnspecifiedError, subackReasonV311(0x80))
	assert.Equal(t, ReasonUnspecifiedError, subackReasonV311(0x03))
}
