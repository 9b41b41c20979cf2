package asyncmqtt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnect(t *testing.T) {
	t.Run("minimal v3.1.1", func(t *testing.T) {
		f, err := buildConnect(ProtocolV311, &ConnectOptions{
			ClientID:     "dev1",
			CleanSession: true,
			KeepAlive:    15,
		})
		require.NoError(t, err)

		want := []byte{
			0x10, 0x10,
			0x00, 0x04, 'M', 'Q', 'T', 'T',
			0x04, 0x02, 0x00, 0x0F,
			0x00, 0x04, 'd', 'e', 'v', '1',
		}
		assert.Equal(t, want, f.Bytes())
		assert.Equal(t, len(want), f.Len())
	})

	t.Run("v5 adds empty property block", func(t *testing.T) {
		f, err := buildConnect(ProtocolV5, &ConnectOptions{
			ClientID:     "dev1",
			CleanSession: true,
			KeepAlive:    15,
		})
		require.NoError(t, err)

		got := f.Bytes()
		assert.Equal(t, byte(0x11), got[1])
		assert.Equal(t, byte(0x05), got[8])
		assert.Equal(t, byte(0x00), got[12])
	})

	t.Run("will and credentials", func(t *testing.T) {
		f, err := buildConnect(ProtocolV311, &ConnectOptions{
			ClientID:     "c",
			CleanSession: true,
			Username:     "user",
			Password:     []byte("pw"),
			Will: &Will{
				Topic:   "status/c",
				Payload: []byte("gone"),
				QoS:     1,
				Retain:  true,
			},
		})
		require.NoError(t, err)

		got := f.Bytes()
		assert.Equal(t, byte(0xEE), got[9])

		tail := string(got[12:])
		assert.Contains(t, tail, "status/c")
		assert.Contains(t, tail, "gone")
		assert.True(t, strings.HasSuffix(tail, "\x00\x04user\x00\x02pw"))
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			version ProtocolVersion
			opts    ConnectOptions
			wantErr error
		}{
			{
				name:    "bad version",
				version: ProtocolVersion(3),
				wantErr: ErrInvalidProtocolVersion,
			},
			{
				name:    "password without username",
				version: ProtocolV311,
				opts:    ConnectOptions{Password: []byte("pw")},
				wantErr: ErrPasswordWithoutUsername,
			},
			{
				name:    "will qos",
				version: ProtocolV311,
				opts:    ConnectOptions{Will: &Will{Topic: "a", QoS: 3}},
				wantErr: ErrInvalidQoS,
			},
			{
				name:    "will wildcard",
				version: ProtocolV311,
				opts:    ConnectOptions{Will: &Will{Topic: "a/#"}},
				wantErr: ErrInvalidTopicName,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := buildConnect(tt.version, &tt.opts)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("v5 password without username", func(t *testing.T) {
		_, err := buildConnect(ProtocolV5, &ConnectOptions{Password: []byte("token")})
		assert.NoError(t, err)
	})
}

func TestBuildPublish(t *testing.T) {
	t.Run("qos1 v3.1.1", func(t *testing.T) {
		f, err := buildPublish(ProtocolV311, "a/b", 1, false, 1, []byte("hi"), PublishOptions{})
		require.NoError(t, err)

		want := []byte{
			0x32, 0x09,
			0x00, 0x03, 'a', '/', 'b',
			0x00, 0x01,
			'h', 'i',
		}
		assert.Equal(t, want, f.Bytes())
	})

	t.Run("qos0 v5 retain dup", func(t *testing.T) {
		f, err := buildPublish(ProtocolV5, "t", 0, true, 0, []byte{0xAA}, PublishOptions{Duplicate: true})
		require.NoError(t, err)

		assert.Equal(t, []byte{0x39, 0x05, 0x00, 0x01, 't', 0x00, 0xAA}, f.Bytes())
	})

	t.Run("payload is referenced", func(t *testing.T) {
		payload := []byte("data")
		f, err := buildPublish(ProtocolV311, "t", 0, false, 0, payload, PublishOptions{})
		require.NoError(t, err)

		last := f.parts[len(f.parts)-1]
		assert.Same(t, &payload[0], &last[0])
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			topic   string
			qos     byte
			id      uint16
			wantErr error
		}{
			{name: "qos 3", topic: "t", qos: 3, id: 1, wantErr: ErrInvalidQoS},
			{name: "empty topic", topic: "", wantErr: ErrEmptyTopic},
			{name: "wildcard", topic: "a/+", wantErr: ErrInvalidTopicName},
			{name: "missing id", topic: "t", qos: 1, wantErr: ErrInvalidPacketID},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := buildPublish(ProtocolV311, tt.topic, tt.qos, false, tt.id, nil, PublishOptions{})
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}

func TestBuildSubscribe(t *testing.T) {
	subs := []Subscription{{TopicFilter: "a/#", QoS: 1, Options: SubscribeOptions{NoLocal: true}}}

	f, err := buildSubscribe(ProtocolV311, 1, subs, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x08, 0x00, 0x01, 0x00, 0x03, 'a', '/', '#', 0x01}, f.Bytes())

	f, err = buildSubscribe(ProtocolV5, 1, subs, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x09, 0x00, 0x01, 0x00, 0x00, 0x03, 'a', '/', '#', 0x05}, f.Bytes())

	_, err = buildSubscribe(ProtocolV311, 0, subs, nil)
	assert.ErrorIs(t, err, ErrInvalidPacketID)

	_, err = buildSubscribe(ProtocolV311, 1, nil, nil)
	assert.ErrorIs(t, err, ErrEmptySubscription)

	_, err = buildSubscribe(ProtocolV311, 1, []Subscription{{TopicFilter: "a/b#"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidTopicFilter)
}

func TestBuildUnsubscribe(t *testing.T) {
	f, err := buildUnsubscribe(ProtocolV311, 2, []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA2, 0x05, 0x00, 0x02, 0x00, 0x01, 'a'}, f.Bytes())

	f, err = buildUnsubscribe(ProtocolV5, 2, []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA2, 0x06, 0x00, 0x02, 0x00, 0x00, 0x01, 'a'}, f.Bytes())

	_, err = buildUnsubscribe(ProtocolV311, 2, nil, nil)
	assert.ErrorIs(t, err, ErrEmptySubscription)
}

func TestBuildControlFrames(t *testing.T) {
	ping := buildPingreq()
	assert.Equal(t, []byte{0xC0, 0x00}, ping.Bytes())
	assert.Equal(t, pingreqFrameSize, ping.Len())

	disconnect := buildDisconnect()
	assert.Equal(t, []byte{0xE0, 0x00}, disconnect.Bytes())
	assert.Equal(t, disconnectFrameSize, disconnect.Len())
}

func TestAckFrameEncode(t *testing.T) {
	tests := []struct {
		packetType PacketType
		want       [ackFrameSize]byte
	}{
		{PacketPUBACK, [ackFrameSize]byte{0x40, 0x02, 0x12, 0x34}},
		{PacketPUBREC, [ackFrameSize]byte{0x50, 0x02, 0x12, 0x34}},
		{PacketPUBREL, [ackFrameSize]byte{0x62, 0x02, 0x12, 0x34}},
		{PacketPUBCOMP, [ackFrameSize]byte{0x70, 0x02, 0x12, 0x34}},
	}

	for _, tt := range tests {
		t.Run(tt.packetType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ackFrame{packetType: tt.packetType, packetID: 0x1234}.encode())
		})
	}
}

func TestWriteFrame(t *testing.T) {
	f, err := buildPublish(ProtocolV311, "a/b", 1, false, 1, []byte("hi"), PublishOptions{})
	require.NoError(t, err)

	t.Run("no space writes nothing", func(t *testing.T) {
		ft := newFakeTransport(f.Len() - 1)
		ft.open = true

		assert.ErrorIs(t, writeFrame(ft, f), ErrNoSpace)
		assert.ErrorIs(t, writeFrame(ft, f), ErrNotSent)
		assert.Empty(t, ft.staged)
		assert.Empty(t, ft.takeSent())
	})

	t.Run("exact fit", func(t *testing.T) {
		ft := newFakeTransport(f.Len())
		ft.open = true

		require.NoError(t, writeFrame(ft, f))
		assert.Equal(t, f.Bytes(), ft.takeSent())
	})
}
