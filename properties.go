package asyncmqtt

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// PropertyID represents an MQTT v5.0 property identifier.
type PropertyID byte

// Property identifiers carried by MQTT v5.0 packets.
const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// PropertyType represents the data type of a property value.
type PropertyType byte

const (
	PropTypeByte        PropertyType = 0 // Single byte
	PropTypeTwoByteInt  PropertyType = 1 // Two byte integer (uint16)
	PropTypeFourByteInt PropertyType = 2 // Four byte integer (uint32)
	PropTypeVarInt      PropertyType = 3 // Variable byte integer
	PropTypeString      PropertyType = 4 // UTF-8 encoded string
	PropTypeBinary      PropertyType = 5 // Binary data
	PropTypeStringPair  PropertyType = 6 // UTF-8 string pair
)

// propertyTypeMap maps property IDs to their data types.
var propertyTypeMap = map[PropertyID]PropertyType{
	PropPayloadFormatIndicator:   PropTypeByte,
	PropMessageExpiryInterval:    PropTypeFourByteInt,
	PropContentType:              PropTypeString,
	PropResponseTopic:            PropTypeString,
	PropCorrelationData:          PropTypeBinary,
	PropSubscriptionIdentifier:   PropTypeVarInt,
	PropSessionExpiryInterval:    PropTypeFourByteInt,
	PropAssignedClientIdentifier: PropTypeString,
	PropServerKeepAlive:          PropTypeTwoByteInt,
	PropAuthenticationMethod:     PropTypeString,
	PropAuthenticationData:       PropTypeBinary,
	PropRequestProblemInfo:       PropTypeByte,
	PropWillDelayInterval:        PropTypeFourByteInt,
	PropRequestResponseInfo:      PropTypeByte,
	PropResponseInformation:      PropTypeString,
	PropServerReference:          PropTypeString,
	PropReasonString:             PropTypeString,
	PropReceiveMaximum:           PropTypeTwoByteInt,
	PropTopicAliasMaximum:        PropTypeTwoByteInt,
	PropTopicAlias:               PropTypeTwoByteInt,
	PropMaximumQoS:               PropTypeByte,
	PropRetainAvailable:          PropTypeByte,
	PropUserProperty:             PropTypeStringPair,
	PropMaximumPacketSize:        PropTypeFourByteInt,
	PropWildcardSubAvailable:     PropTypeByte,
	PropSubscriptionIDAvailable:  PropTypeByte,
	PropSharedSubAvailable:       PropTypeByte,
}

// PropertyType returns the data type for this property ID and whether the ID is known.
func (p PropertyID) PropertyType() (PropertyType, bool) {
	t, ok := propertyTypeMap[p]
	return t, ok
}

// Property errors.
var (
	ErrUnknownPropertyID    = errors.New("unknown property identifier")
	ErrInvalidPropertyType  = errors.New("invalid property type for identifier")
	ErrPropertiesIncomplete = errors.New("property block truncated")
)

// Properties is an ordered collection of MQTT v5.0 properties. Insertion
// order is kept and an identifier may repeat (user properties, subscription
// identifiers).
type Properties struct {
	props []property
}

type property struct {
	id    PropertyID
	value any
}

// Len returns the number of properties in the collection.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.props)
}

// Has returns true if the property with the given ID exists.
func (p *Properties) Has(id PropertyID) bool {
	if p == nil {
		return false
	}
	for i := range p.props {
		if p.props[i].id == id {
			return true
		}
	}
	return false
}

// Get returns the first value stored for id, or nil.
func (p *Properties) Get(id PropertyID) any {
	if p == nil {
		return nil
	}
	for i := range p.props {
		if p.props[i].id == id {
			return p.props[i].value
		}
	}
	return nil
}

// GetAll returns every value stored for id in insertion order.
func (p *Properties) GetAll(id PropertyID) []any {
	if p == nil {
		return nil
	}
	var result []any
	for i := range p.props {
		if p.props[i].id == id {
			result = append(result, p.props[i].value)
		}
	}
	return result
}

// Set replaces the first value stored for id, or appends it.
func (p *Properties) Set(id PropertyID, value any) {
	if p == nil {
		return
	}
	for i := range p.props {
		if p.props[i].id == id {
			p.props[i].value = value
			return
		}
	}
	p.props = append(p.props, property{id: id, value: value})
}

// Add appends a value, keeping any earlier value for the same id.
func (p *Properties) Add(id PropertyID, value any) {
	if p == nil {
		return
	}
	p.props = append(p.props, property{id: id, value: value})
}

// GetUint16 returns the uint16 value of a property, or 0 if not found.
func (p *Properties) GetUint16(id PropertyID) uint16 {
	u, _ := p.Get(id).(uint16)
	return u
}

// GetUint32 returns the uint32 value of a property, or 0 if not found.
func (p *Properties) GetUint32(id PropertyID) uint32 {
	u, _ := p.Get(id).(uint32)
	return u
}

// GetByte returns the byte value of a property, or 0 if not found.
func (p *Properties) GetByte(id PropertyID) byte {
	b, _ := p.Get(id).(byte)
	return b
}

// GetString returns the string value of a property, or empty string if not found.
func (p *Properties) GetString(id PropertyID) string {
	s, _ := p.Get(id).(string)
	return s
}

// GetBinary returns the binary value of a property, or nil if not found.
func (p *Properties) GetBinary(id PropertyID) []byte {
	b, _ := p.Get(id).([]byte)
	return b
}

// UserProperties returns all user properties in wire order.
func (p *Properties) UserProperties() []StringPair {
	all := p.GetAll(PropUserProperty)
	result := make([]StringPair, 0, len(all))
	for _, v := range all {
		if sp, ok := v.(StringPair); ok {
			result = append(result, sp)
		}
	}
	return result
}

// Encode returns the property block: a variable byte integer length followed
// by the entries.
func (p *Properties) Encode() ([]byte, error) {
	return p.appendBlock(nil)
}

func (p *Properties) appendBlock(dst []byte) ([]byte, error) {
	body, err := p.encodeEntries()
	if err != nil {
		return dst, err
	}

	dst, err = appendVarint(dst, uint32(len(body)))
	if err != nil {
		return dst, err
	}

	return append(dst, body...), nil
}

func (p *Properties) encodeEntries() ([]byte, error) {
	if p.Len() == 0 {
		return nil, nil
	}

	b := cryptobyte.NewBuilder(nil)
	for i := range p.props {
		prop := &p.props[i]

		propType, ok := prop.id.PropertyType()
		if !ok {
			return nil, ErrUnknownPropertyID
		}

		b.AddUint8(byte(prop.id))

		switch propType {
		case PropTypeByte:
			v, ok := prop.value.(byte)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			b.AddUint8(v)

		case PropTypeTwoByteInt:
			v, ok := prop.value.(uint16)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			b.AddUint16(v)

		case PropTypeFourByteInt:
			v, ok := prop.value.(uint32)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			b.AddUint32(v)

		case PropTypeVarInt:
			v, ok := prop.value.(uint32)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			enc, err := appendVarint(nil, v)
			if err != nil {
				return nil, err
			}
			b.AddBytes(enc)

		case PropTypeString:
			v, ok := prop.value.(string)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			addString(b, v)

		case PropTypeBinary:
			v, ok := prop.value.([]byte)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			addBinary(b, v)

		case PropTypeStringPair:
			v, ok := prop.value.(StringPair)
			if !ok {
				return nil, ErrInvalidPropertyType
			}
			addString(b, v.Key)
			addString(b, v.Value)
		}
	}

	return b.Bytes()
}

// DecodeProperties parses property entries, the bytes that follow the block
// length. A length prefix running past the end of data yields
// ErrPropertiesIncomplete.
func DecodeProperties(data []byte) (*Properties, error) {
	s := cryptobyte.String(data)
	props := &Properties{}

	for !s.Empty() {
		var id byte
		if !s.ReadUint8(&id) {
			return nil, ErrPropertiesIncomplete
		}

		propType, ok := PropertyID(id).PropertyType()
		if !ok {
			return nil, ErrUnknownPropertyID
		}

		var value any

		switch propType {
		case PropTypeByte:
			var v byte
			if !s.ReadUint8(&v) {
				return nil, ErrPropertiesIncomplete
			}
			value = v

		case PropTypeTwoByteInt:
			var v uint16
			if !s.ReadUint16(&v) {
				return nil, ErrPropertiesIncomplete
			}
			value = v

		case PropTypeFourByteInt:
			var v uint32
			if !s.ReadUint32(&v) {
				return nil, ErrPropertiesIncomplete
			}
			value = v

		case PropTypeVarInt:
			var v uint32
			if err := readVarint(&s, &v); err != nil {
				if errors.Is(err, ErrVarintIncomplete) {
					return nil, ErrPropertiesIncomplete
				}
				return nil, err
			}
			value = v

		case PropTypeString:
			var v string
			if err := readString(&s, &v); err != nil {
				return nil, err
			}
			value = v

		case PropTypeBinary:
			var v []byte
			if err := readBinary(&s, &v); err != nil {
				return nil, err
			}
			value = v

		case PropTypeStringPair:
			var v StringPair
			if err := readString(&s, &v.Key); err != nil {
				return nil, err
			}
			if err := readString(&s, &v.Value); err != nil {
				return nil, err
			}
			value = v
		}

		props.props = append(props.props, property{id: PropertyID(id), value: value})
	}

	return props, nil
}
