package resp

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadReply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, v Value)
	}{
		{
			name:  "status",
			input: "+QUEUED\r\n",
			check: func(t *testing.T, v Value) {
				if err := v.Status("QUEUED"); err != nil {
					t.Error(err)
				}
			},
		},
		{
			name:  "integer",
			input: ":1\r\n",
			check: func(t *testing.T, v Value) {
				if ok, err := v.Bool(); err != nil || !ok {
					t.Errorf("Bool() = %v, %v", ok, err)
				}
			},
		},
		{
			name:  "null bulk",
			input: "$-1\r\n",
			check: func(t *testing.T, v Value) {
				b, err := v.Bytes()
				if err != nil || b != nil || !v.IsNull() {
					t.Errorf("Bytes() = %v, %v; null=%v", b, err, v.IsNull())
				}
			},
		},
		{
			name:  "empty bulk is not null",
			input: "$0\r\n\r\n",
			check: func(t *testing.T, v Value) {
				b, _ := v.Bytes()
				if b == nil || v.IsNull() {
					t.Errorf("empty bulk decoded as null")
				}
			},
		},
		{
			name:  "null array (aborted EXEC)",
			input: "*-1\r\n",
			check: func(t *testing.T, v Value) {
				if !v.IsNull() || len(v.Array) != 0 {
					t.Errorf("got %+v, want null array", v)
				}
			},
		},
		{
			name:  "committed EXEC with nested values",
			input: "*2\r\n:1\r\n*2\r\n$1\r\na\r\n$-1\r\n",
			check: func(t *testing.T, v Value) {
				if len(v.Array) != 2 {
					t.Fatalf("len = %d, want 2", len(v.Array))
				}
				inner, err := v.Array[1].BytesSlice()
				if err != nil {
					t.Fatal(err)
				}
				if string(inner[0]) != "a" || inner[1] != nil {
					t.Errorf("inner = %q", inner)
				}
			},
		},
		{
			name:  "error reply",
			input: "-WRONGTYPE Operation against a key holding the wrong kind of value\r\n",
			check: func(t *testing.T, v Value) {
				var re *Error
				if !errors.As(v.Err(), &re) {
					t.Fatalf("Err() = %v, want *Error", v.Err())
				}
				if re.Prefix() != "WRONGTYPE" {
					t.Errorf("Prefix() = %q", re.Prefix())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ReadReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadReply() error = %v", err)
			}
			tt.check(t, v)
		})
	}
}

func TestReadReply_Invalid(t *testing.T) {
	tests := []string{
		"?what\r\n",
		":abc\r\n",
		"$abc\r\n",
		"*-3\r\n",
		"\r\n",
		strings.Repeat("*1\r\n", maxDepth+2) + ":1\r\n",
	}
	for _, in := range tests {
		if _, err := ReadReply(bufio.NewReader(strings.NewReader(in))); err == nil {
			t.Errorf("ReadReply(%q) error = nil, want error", in)
		}
	}
}

func TestValue_TypeMismatch(t *testing.T) {
	v := Simple("OK")
	if _, err := v.Integer(); !errors.Is(err, ErrProtocol) {
		t.Errorf("Integer() error = %v, want ErrProtocol", err)
	}
	if _, err := Integer(1).Bytes(); !errors.Is(err, ErrProtocol) {
		t.Errorf("Bytes() error = %v, want ErrProtocol", err)
	}
	if err := Simple("OK").Status("QUEUED"); !errors.Is(err, ErrProtocol) {
		t.Errorf("Status() error = %v, want ErrProtocol", err)
	}
}

func TestWriteValue_RoundTrip(t *testing.T) {
	values := []Value{
		Simple("OK"),
		ErrorValue("ERR boom"),
		Integer(-2),
		Bulk([]byte("hello")),
		Bulk(nil),
		NullArray(),
		Array(),
		Array(Integer(1), Bulk([]byte("x")), Array(Bulk(nil))),
	}

	for _, want := range values {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		if err := WriteValue(w, want); err != nil {
			t.Fatalf("WriteValue(%+v) error = %v", want, err)
		}
		_ = w.Flush()
		wire := buf.String()

		got, err := ReadReply(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("ReadReply(%q) error = %v", wire, err)
		}
		if got.Kind != want.Kind || got.Null != want.Null || len(got.Array) != len(want.Array) {
			t.Errorf("round trip %q: got %+v, want %+v", wire, got, want)
		}
	}
}

func TestWriters(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *bufio.Writer) error
		want  string
	}{
		{"simple", func(w *bufio.Writer) error { return WriteSimpleString(w, "OK") }, "+OK\r\n"},
		{"error", func(w *bufio.Writer) error { return WriteError(w, "ERR unknown command") }, "-ERR unknown command\r\n"},
		{"integer", func(w *bufio.Writer) error { return WriteInteger(w, -1) }, ":-1\r\n"},
		{"null bulk", func(w *bufio.Writer) error { return WriteNullBulk(w) }, "$-1\r\n"},
		{"null array", func(w *bufio.Writer) error { return WriteNullArray(w) }, "*-1\r\n"},
		{"bulk", func(w *bufio.Writer) error { return WriteBulk(w, []byte("hello")) }, "$5\r\nhello\r\n"},
		{"empty bulk", func(w *bufio.Writer) error { return WriteBulk(w, []byte{}) }, "$0\r\n\r\n"},
		{"binary bulk", func(w *bufio.Writer) error { return WriteBulk(w, []byte{0, 1, 2}) }, "$3\r\n\x00\x01\x02\r\n"},
		{"array header", func(w *bufio.Writer) error { return WriteArrayHeader(w, 5) }, "*5\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := bufio.NewWriter(&buf)
			_ = tt.write(w)
			_ = w.Flush()
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
