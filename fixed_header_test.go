package asyncmqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeString(t *testing.T) {
	tests := []struct {
		pt   PacketType
		want string
	}{
		{PacketCONNECT, "CONNECT"},
		{PacketCONNACK, "CONNACK"},
		{PacketPUBLISH, "PUBLISH"},
		{PacketPUBACK, "PUBACK"},
		{PacketPUBREC, "PUBREC"},
		{PacketPUBREL, "PUBREL"},
		{PacketPUBCOMP, "PUBCOMP"},
		{PacketSUBSCRIBE, "SUBSCRIBE"},
		{PacketSUBACK, "SUBACK"},
		{PacketUNSUBSCRIBE, "UNSUBSCRIBE"},
		{PacketUNSUBACK, "UNSUBACK"},
		{PacketPINGREQ, "PINGREQ"},
		{PacketPINGRESP, "PINGRESP"},
		{PacketDISCONNECT, "DISCONNECT"},
		{PacketType(0), "UNKNOWN"},
		{PacketType(15), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pt.String())
		})
	}
}

func TestFixedHeaderAppendTo(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		want    []byte
		wantErr error
	}{
		{
			name:   "pingreq",
			header: FixedHeader{PacketType: PacketPINGREQ},
			want:   []byte{0xC0, 0x00},
		},
		{
			name:   "publish qos1 retain",
			header: FixedHeader{PacketType: PacketPUBLISH, Flags: 0x03, RemainingLength: 200},
			want:   []byte{0x33, 0xC8, 0x01},
		},
		{
			name:   "subscribe",
			header: FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02, RemainingLength: 5},
			want:   []byte{0x82, 0x05},
		},
		{
			name:    "reserved type",
			header:  FixedHeader{PacketType: PacketType(0)},
			wantErr: ErrInvalidPacketType,
		},
		{
			name:    "too long",
			header:  FixedHeader{PacketType: PacketPUBLISH, RemainingLength: maxVarint + 1},
			wantErr: ErrRemainingLengthTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.header.AppendTo(nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), tt.header.Size())
		})
	}
}

func TestFixedHeaderValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		wantErr bool
	}{
		{name: "publish qos2 dup", header: FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0C}},
		{name: "publish qos3", header: FixedHeader{PacketType: PacketPUBLISH, Flags: 0x06}, wantErr: true},
		{name: "pubrel", header: FixedHeader{PacketType: PacketPUBREL, Flags: 0x02}},
		{name: "pubrel without flag", header: FixedHeader{PacketType: PacketPUBREL}, wantErr: true},
		{name: "puback", header: FixedHeader{PacketType: PacketPUBACK}},
		{name: "puback with flag", header: FixedHeader{PacketType: PacketPUBACK, Flags: 0x02}, wantErr: true},
		{name: "connack", header: FixedHeader{PacketType: PacketCONNACK}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.ValidateFlags()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPacketFlags)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFixedHeaderPublishFlags(t *testing.T) {
	h := FixedHeader{PacketType: PacketPUBLISH, Flags: publishFlags(true, 2, true)}

	assert.Equal(t, byte(0x0D), h.Flags)
	assert.True(t, h.DUP())
	assert.Equal(t, byte(2), h.QoS())
	assert.True(t, h.Retain())
}
