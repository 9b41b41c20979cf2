package asyncmqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aliasedMessage(topic string, alias uint16) *Message {
	props := &Properties{}
	props.Set(PropTopicAlias, alias)
	return &Message{Topic: topic, Properties: props}
}

func TestTopicAliases(t *testing.T) {
	t.Run("define then use", func(t *testing.T) {
		a := newTopicAliases(3)

		require.NoError(t, a.resolve(aliasedMessage("a/b", 2)))

		msg := aliasedMessage("", 2)
		require.NoError(t, a.resolve(msg))
		assert.Equal(t, "a/b", msg.Topic)
	})

	t.Run("redefine", func(t *testing.T) {
		a := newTopicAliases(3)

		require.NoError(t, a.resolve(aliasedMessage("a/b", 1)))
		require.NoError(t, a.resolve(aliasedMessage("c/d", 1)))

		msg := aliasedMessage("", 1)
		require.NoError(t, a.resolve(msg))
		assert.Equal(t, "c/d", msg.Topic)
	})

	t.Run("no alias", func(t *testing.T) {
		a := newTopicAliases(3)

		assert.NoError(t, a.resolve(&Message{Topic: "a"}))
		assert.ErrorIs(t, a.resolve(&Message{}), ErrEmptyTopic)
	})

	t.Run("out of range", func(t *testing.T) {
		a := newTopicAliases(3)

		assert.ErrorIs(t, a.resolve(aliasedMessage("a", 0)), ErrTopicAliasInvalid)
		assert.ErrorIs(t, a.resolve(aliasedMessage("a", 4)), ErrTopicAliasInvalid)
		assert.ErrorIs(t, newTopicAliases(0).resolve(aliasedMessage("a", 1)), ErrTopicAliasInvalid)
	})

	t.Run("unknown alias", func(t *testing.T) {
		a := newTopicAliases(3)
		assert.ErrorIs(t, a.resolve(aliasedMessage("", 1)), ErrTopicAliasNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		a := newTopicAliases(3)
		require.NoError(t, a.resolve(aliasedMessage("a/b", 1)))

		a.clear()
		assert.ErrorIs(t, a.resolve(aliasedMessage("", 1)), ErrTopicAliasNotFound)
	})
}
