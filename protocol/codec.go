package protocol

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when bytes cannot be decoded as the expected message.
var ErrMalformed = errors.New("malformed message")

// Field numbers from state_context.proto.
const (
	fieldEntryAddress protowire.Number = 1
	fieldEntryData    protowire.Number = 2

	fieldGetRequestContextID protowire.Number = 1
	fieldGetRequestAddresses protowire.Number = 2

	fieldGetResponseEntries protowire.Number = 1
	fieldGetResponseStatus  protowire.Number = 2

	fieldSetRequestContextID protowire.Number = 1
	fieldSetRequestEntries   protowire.Number = 2

	fieldSetResponseAddresses protowire.Number = 1
	fieldSetResponseStatus    protowire.Number = 2
)

func (e *Entry) appendTo(b []byte) []byte {
	if e.Address != "" {
		b = protowire.AppendTag(b, fieldEntryAddress, protowire.BytesType)
		b = protowire.AppendString(b, e.Address)
	}
	if len(e.Data) > 0 {
		b = protowire.AppendTag(b, fieldEntryData, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Data)
	}
	return b
}

func (e *Entry) Marshal() []byte {
	return e.appendTo(nil)
}

func (e *Entry) Unmarshal(b []byte) error {
	*e = Entry{}
	return walk(b, "Entry", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEntryAddress:
			return consumeString(typ, b, &e.Address)
		case fieldEntryData:
			return consumeBytes(typ, b, &e.Data)
		}
		return -1, nil
	})
}

func (r *GetRequest) Marshal() []byte {
	var b []byte
	if r.ContextID != "" {
		b = protowire.AppendTag(b, fieldGetRequestContextID, protowire.BytesType)
		b = protowire.AppendString(b, r.ContextID)
	}
	for _, addr := range r.Addresses {
		b = protowire.AppendTag(b, fieldGetRequestAddresses, protowire.BytesType)
		b = protowire.AppendString(b, addr)
	}
	return b
}

func (r *GetRequest) Unmarshal(b []byte) error {
	*r = GetRequest{}
	return walk(b, "GetRequest", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldGetRequestContextID:
			return consumeString(typ, b, &r.ContextID)
		case fieldGetRequestAddresses:
			var addr string
			n, err := consumeString(typ, b, &addr)
			if err == nil {
				r.Addresses = append(r.Addresses, addr)
			}
			return n, err
		}
		return -1, nil
	})
}

func (r *GetResponse) Marshal() []byte {
	var b []byte
	for i := range r.Entries {
		b = protowire.AppendTag(b, fieldGetResponseEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Entries[i].Marshal())
	}
	if r.Status != StatusUnset {
		b = protowire.AppendTag(b, fieldGetResponseStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Status))
	}
	return b
}

func (r *GetResponse) Unmarshal(b []byte) error {
	*r = GetResponse{}
	return walk(b, "GetResponse", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldGetResponseEntries:
			var entry Entry
			n, err := consumeMessage(typ, b, &entry)
			if err == nil {
				r.Entries = append(r.Entries, entry)
			}
			return n, err
		case fieldGetResponseStatus:
			return consumeStatus(typ, b, &r.Status)
		}
		return -1, nil
	})
}

func (r *SetRequest) Marshal() []byte {
	var b []byte
	if r.ContextID != "" {
		b = protowire.AppendTag(b, fieldSetRequestContextID, protowire.BytesType)
		b = protowire.AppendString(b, r.ContextID)
	}
	for i := range r.Entries {
		b = protowire.AppendTag(b, fieldSetRequestEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Entries[i].Marshal())
	}
	return b
}

func (r *SetRequest) Unmarshal(b []byte) error {
	*r = SetRequest{}
	return walk(b, "SetRequest", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSetRequestContextID:
			return consumeString(typ, b, &r.ContextID)
		case fieldSetRequestEntries:
			var entry Entry
			n, err := consumeMessage(typ, b, &entry)
			if err == nil {
				r.Entries = append(r.Entries, entry)
			}
			return n, err
		}
		return -1, nil
	})
}

func (r *SetResponse) Marshal() []byte {
	var b []byte
	for _, addr := range r.Addresses {
		b = protowire.AppendTag(b, fieldSetResponseAddresses, protowire.BytesType)
		b = protowire.AppendString(b, addr)
	}
	if r.Status != StatusUnset {
		b = protowire.AppendTag(b, fieldSetResponseStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Status))
	}
	return b
}

func (r *SetResponse) Unmarshal(b []byte) error {
	*r = SetResponse{}
	return walk(b, "SetResponse", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSetResponseAddresses:
			var addr string
			n, err := consumeString(typ, b, &addr)
			if err == nil {
				r.Addresses = append(r.Addresses, addr)
			}
			return n, err
		case fieldSetResponseStatus:
			return consumeStatus(typ, b, &r.Status)
		}
		return -1, nil
	})
}

// fieldFunc consumes the value of a known field and returns the bytes used.
// A negative count with a nil error marks the field as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, name string, field fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(name, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return malformed(name, fmt.Errorf("field %d: %w", num, err))
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(name, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

func malformed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
}

func wireType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("wire type %d, want %d", got, want)
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if err := wireType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if !utf8.ValidString(v) {
		return 0, errors.New("string is not valid UTF-8")
	}
	*dst = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if err := wireType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = slices.Clone(v)
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte, dst interface{ Unmarshal([]byte) error }) (int, error) {
	if err := wireType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if err := dst.Unmarshal(v); err != nil {
		return 0, err
	}
	return n, nil
}

func consumeStatus(typ protowire.Type, b []byte, dst *Status) (int, error) {
	if err := wireType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = Status(int32(v))
	return n, nil
}
