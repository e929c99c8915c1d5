package resp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ReadReply reads one reply frame, including nested arrays.
func ReadReply(r *bufio.Reader) (Value, error) {
	return readReply(r, 0)
}

// maxDepth bounds array nesting; EXEC replies are the deepest frames we read.
const maxDepth = 8

func readReply(r *bufio.Reader, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: reply nesting exceeds %d", ErrLimitExceeded, maxDepth)
	}

	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return Value{}, err
	}
	if line == "" {
		return Value{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	kind, rest := Kind(line[0]), line[1:]
	switch kind {
	case KindSimple, KindError:
		return Value{Kind: kind, Str: []byte(rest)}, nil

	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, rest)
		}
		return Value{Kind: kind, Int: n}, nil

	case KindBulk:
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		body, err := readBulkBody(r, n)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Str: body, Null: n == -1}, nil

	case KindArray:
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid array length", ErrProtocol)
		}
		if n == -1 {
			return Value{Kind: kind, Null: true}, nil
		}
		if n < 0 {
			return Value{}, fmt.Errorf("%w: invalid array length", ErrProtocol)
		}
		if n > MaxArrayLen {
			return Value{}, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, MaxArrayLen)
		}
		elems := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			e, err := readReply(r, depth+1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: kind, Array: elems}, nil

	default:
		return Value{}, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, line[0])
	}
}

// WriteValue writes v in its wire form. Used by the server to relay EXEC results.
func WriteValue(w *bufio.Writer, v Value) error {
	switch v.Kind {
	case KindSimple:
		return WriteSimpleString(w, string(v.Str))
	case KindError:
		return WriteError(w, string(v.Str))
	case KindInteger:
		return WriteInteger(w, v.Int)
	case KindBulk:
		if v.Null {
			return WriteNullBulk(w)
		}
		return WriteBulk(w, v.Str)
	case KindArray:
		if v.Null {
			return WriteNullArray(w)
		}
		if err := WriteArrayHeader(w, len(v.Array)); err != nil {
			return err
		}
		for _, e := range v.Array {
			if err := WriteValue(w, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot write %s", ErrProtocol, v.Kind)
	}
}

func WriteSimpleString(w *bufio.Writer, s string) error {
	_, err := w.WriteString("+" + s + "\r\n")
	return err
}

func WriteError(w *bufio.Writer, s string) error {
	_, err := w.WriteString("-" + s + "\r\n")
	return err
}

func WriteInteger(w *bufio.Writer, n int64) error {
	_, err := w.WriteString(":" + strconv.FormatInt(n, 10) + "\r\n")
	return err
}

func WriteNullBulk(w *bufio.Writer) error {
	_, err := w.WriteString("$-1\r\n")
	return err
}

func WriteNullArray(w *bufio.Writer) error {
	_, err := w.WriteString("*-1\r\n")
	return err
}

func WriteBulk(w *bufio.Writer, b []byte) error {
	if b == nil {
		return WriteNullBulk(w)
	}
	if _, err := w.WriteString("$" + strconv.Itoa(len(b)) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func WriteBulkString(w *bufio.Writer, s string) error {
	return WriteBulk(w, []byte(s))
}

func WriteArrayHeader(w *bufio.Writer, n int) error {
	_, err := w.WriteString("*" + strconv.Itoa(n) + "\r\n")
	return err
}

// Simple builds a simple string reply.
func Simple(s string) Value {
	return Value{Kind: KindSimple, Str: []byte(s)}
}

// ErrorValue builds an error reply.
func ErrorValue(s string) Value {
	return Value{Kind: KindError, Str: []byte(s)}
}

// Integer builds an integer reply.
func Integer(n int64) Value {
	return Value{Kind: KindInteger, Int: n}
}

// Bulk builds a bulk string reply; nil becomes the null bulk string.
func Bulk(b []byte) Value {
	if b == nil {
		return Value{Kind: KindBulk, Null: true}
	}
	return Value{Kind: KindBulk, Str: b}
}

// NullArray builds the null array reply.
func NullArray() Value {
	return Value{Kind: KindArray, Null: true}
}

// Array builds an array reply.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Kind: KindArray, Array: vs}
}
