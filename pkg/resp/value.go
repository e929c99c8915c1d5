package resp

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the RESP2 type of a reply by its leading byte.
type Kind byte

const (
	KindSimple  Kind = '+'
	KindError   Kind = '-'
	KindInteger Kind = ':'
	KindBulk    Kind = '$'
	KindArray   Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one decoded reply.
//
// Null bulk strings ("$-1") and null arrays ("*-1") are reported with Null set;
// EXEC uses the null array to signal that a watched key changed.
type Value struct {
	Kind  Kind
	Str   []byte
	Int   int64
	Array []Value
	Null  bool
}

// IsNull reports whether v is a null bulk string or a null array.
func (v Value) IsNull() bool {
	return v.Null
}

// Bytes returns the payload of a bulk or simple string, nil for null.
func (v Value) Bytes() ([]byte, error) {
	switch v.Kind {
	case KindBulk, KindSimple:
		if v.Null {
			return nil, nil
		}
		return v.Str, nil
	default:
		return nil, fmt.Errorf("%w: expected string reply, got %s", ErrProtocol, v.Kind)
	}
}

// Integer returns the value of an integer reply.
func (v Value) Integer() (int64, error) {
	if v.Kind != KindInteger {
		return 0, fmt.Errorf("%w: expected integer reply, got %s", ErrProtocol, v.Kind)
	}
	return v.Int, nil
}

// Bool interprets an integer reply of 0 or 1.
func (v Value) Bool() (bool, error) {
	n, err := v.Integer()
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// Status checks that v is the simple string want (e.g. "OK", "QUEUED").
func (v Value) Status(want string) error {
	if v.Kind != KindSimple || string(v.Str) != want {
		return fmt.Errorf("%w: expected +%s, got %s %q", ErrProtocol, want, v.Kind, v.Str)
	}
	return nil
}

// BytesSlice returns the elements of an array of bulk strings.
// Null elements are kept as nil entries.
func (v Value) BytesSlice() ([][]byte, error) {
	if v.Kind != KindArray {
		return nil, fmt.Errorf("%w: expected array reply, got %s", ErrProtocol, v.Kind)
	}
	if v.Null {
		return nil, nil
	}
	out := make([][]byte, 0, len(v.Array))
	for _, e := range v.Array {
		b, err := e.Bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Err returns the reply as an *Error when it is an error reply, nil otherwise.
func (v Value) Err() error {
	if v.Kind != KindError {
		return nil
	}
	return &Error{Message: string(v.Str)}
}

// Error is an error reply sent by the server ("-ERR ...", "-WRONGTYPE ...").
// It does not indicate a broken connection.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "resp: server error: " + e.Message
}

// Prefix returns the error class, e.g. "ERR", "WRONGTYPE", "EXECABORT".
func (e *Error) Prefix() string {
	if i := strings.IndexByte(e.Message, ' '); i > 0 {
		return e.Message[:i]
	}
	return e.Message
}
