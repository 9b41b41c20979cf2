package asyncmqtt

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// ValidateTopicName checks a topic a message is published to. Wildcards are
// not allowed.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if len(topic) > maxUint16 || !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	if strings.ContainsAny(topic, "\x00"+singleLevelWildcard+multiLevelWildcard) {
		return ErrInvalidTopicName
	}

	return nil
}

// ValidateTopicFilter checks a subscription filter. '+' must fill a whole
// level and '#' must fill the last one.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if len(filter) > maxUint16 || !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return ErrInvalidTopicFilter
	}

	rest := filter
	for {
		level, tail, more := strings.Cut(rest, topicSeparator)

		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return ErrInvalidTopicFilter
		}

		if strings.Contains(level, multiLevelWildcard) && (level != multiLevelWildcard || more) {
			return ErrInvalidTopicFilter
		}

		if !more {
			return nil
		}
		rest = tail
	}
}
