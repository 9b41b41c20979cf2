package asyncmqtt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr error
	}{
		{"simple", "sensors/temp", nil},
		{"leading slash", "/a/b", nil},
		{"empty level", "a//b", nil},
		{"unicode", "дом/кухня", nil},
		{"empty", "", ErrEmptyTopic},
		{"single level wildcard", "a/+/b", ErrInvalidTopicName},
		{"multi level wildcard", "a/#", ErrInvalidTopicName},
		{"null character", "a\x00b", ErrInvalidTopicName},
		{"invalid utf8", "a/\xff", ErrInvalidTopicName},
		{"too long", strings.Repeat("a", 65536), ErrInvalidTopicName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr error
	}{
		{"plain", "a/b", nil},
		{"multi level alone", "#", nil},
		{"single level alone", "+", nil},
		{"multi level at end", "a/b/#", nil},
		{"single level in middle", "a/+/c", nil},
		{"both", "+/b/#", nil},
		{"shared subscription", "$share/group/a/+", nil},
		{"empty", "", ErrEmptyTopic},
		{"multi level not last", "a/#/c", ErrInvalidTopicFilter},
		{"multi level inside level", "a/b#", ErrInvalidTopicFilter},
		{"single level inside level", "a/b+/c", ErrInvalidTopicFilter},
		{"null character", "a/\x00", ErrInvalidTopicFilter},
		{"invalid utf8", "\xc3\x28", ErrInvalidTopicFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
