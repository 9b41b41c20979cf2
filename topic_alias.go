package asyncmqtt

import "errors"

var (
	ErrTopicAliasInvalid  = errors.New("topic alias invalid")
	ErrTopicAliasNotFound = errors.New("topic alias not found")
)

// topicAliases resolves the v5.0 topic aliases a server uses on inbound
// PUBLISH packets. The mapping lives as long as the connection.
type topicAliases struct {
	max    uint16
	topics map[uint16]string
}

func newTopicAliases(maxAlias uint16) *topicAliases {
	return &topicAliases{
		max:    maxAlias,
		topics: make(map[uint16]string),
	}
}

// resolve records or applies the alias carried by msg. A message with a
// topic and an alias (re)defines the alias; one with only an alias gets the
// recorded topic filled in.
func (a *topicAliases) resolve(msg *Message) error {
	if !msg.Properties.Has(PropTopicAlias) {
		if msg.Topic == "" {
			return ErrEmptyTopic
		}
		return nil
	}

	alias := msg.Properties.GetUint16(PropTopicAlias)
	if alias == 0 || alias > a.max {
		return ErrTopicAliasInvalid
	}

	if msg.Topic != "" {
		a.topics[alias] = msg.Topic
		return nil
	}

	topic, ok := a.topics[alias]
	if !ok {
		return ErrTopicAliasNotFound
	}
	msg.Topic = topic
	return nil
}

func (a *topicAliases) clear() {
	clear(a.topics)
}
