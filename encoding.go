package asyncmqtt

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed    = errors.New("malformed variable byte integer")
	ErrVarintIncomplete   = errors.New("variable byte integer needs more data")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455 // 0x0FFFFFFF
	maxVarintBytes    = 4
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// appendVarint appends the variable byte integer encoding of value to dst.
func appendVarint(dst []byte, value uint32) ([]byte, error) {
	if value > maxVarint {
		return dst, ErrVarintTooLarge
	}

	for {
		encodedByte := byte(value & varintValueMask)
		value >>= 7

		if value > 0 {
			encodedByte |= varintContinueBit
		}

		dst = append(dst, encodedByte)

		if value == 0 {
			return dst, nil
		}
	}
}

// varintSize returns the number of bytes needed to encode a variable byte integer.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// varintDecoder accumulates a variable byte integer one byte at a time so
// that the encoding may be split across any number of reads.
type varintDecoder struct {
	value      uint32
	multiplier uint32
	count      int
}

func (d *varintDecoder) reset() {
	*d = varintDecoder{}
}

// feed consumes one byte. It reports true once the terminating byte has been
// seen; false with a nil error means more bytes are needed.
func (d *varintDecoder) feed(b byte) (bool, error) {
	if d.count == 0 {
		d.multiplier = 1
	}

	d.count++
	d.value += uint32(b&varintValueMask) * d.multiplier

	if b&varintContinueBit == 0 {
		return true, nil
	}

	if d.count == maxVarintBytes {
		return false, ErrVarintMalformed
	}

	d.multiplier *= 128
	return false, nil
}

// decodeVarint decodes a variable byte integer from the front of data.
// It returns ErrVarintIncomplete when data ends before the final byte and
// ErrVarintMalformed when a fifth byte would be required.
func decodeVarint(data []byte) (uint32, int, error) {
	var d varintDecoder

	for i, b := range data {
		done, err := d.feed(b)
		if err != nil {
			return 0, i + 1, err
		}
		if done {
			return d.value, i + 1, nil
		}
	}

	return 0, len(data), ErrVarintIncomplete
}

// readVarint reads a variable byte integer from s, advancing it.
func readVarint(s *cryptobyte.String, out *uint32) error {
	value, n, err := decodeVarint(*s)
	if err != nil {
		return err
	}

	*out = value
	s.Skip(n)
	return nil
}

func validateString(s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}

	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}

	for i := range len(s) {
		if s[i] == 0 {
			return ErrStringContainsNull
		}
	}

	return nil
}

// addString writes a UTF-8 string with a 2-byte length prefix.
func addString(b *cryptobyte.Builder, s string) {
	if err := validateString(s); err != nil {
		b.SetError(err)
		return
	}

	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}

// addBinary writes binary data with a 2-byte length prefix.
func addBinary(b *cryptobyte.Builder, data []byte) {
	if len(data) > maxUint16 {
		b.SetError(ErrBinaryTooLong)
		return
	}

	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(data)
	})
}

// readString reads a 2-byte length prefixed UTF-8 string.
func readString(s *cryptobyte.String, out *string) error {
	var raw cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&raw) {
		return ErrPropertiesIncomplete
	}

	if !utf8.Valid(raw) {
		return ErrInvalidUTF8
	}

	for _, c := range raw {
		if c == 0 {
			return ErrStringContainsNull
		}
	}

	*out = string(raw)
	return nil
}

// readBinary reads 2-byte length prefixed binary data into a fresh slice.
func readBinary(s *cryptobyte.String, out *[]byte) error {
	var raw cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&raw) {
		return ErrPropertiesIncomplete
	}

	*out = append([]byte(nil), raw...)
	return nil
}

// StringPair represents a key-value string pair used in MQTT v5.0 properties.
type StringPair struct {
	Key   string
	Value string
}
