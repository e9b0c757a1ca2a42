package replay

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"sort"
	"testing"
)

// encodePickle is the test-side inverse of unpickle, emitting the protocol-2
// opcodes the game payloads use.
func encodePickle(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x02})
	encodeValue(t, &buf, v)
	buf.WriteByte('.')
	return buf.Bytes()
}

func encodeValue(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	switch val := v.(type) {
	case nil:
		buf.WriteByte('N')
	case bool:
		if val {
			buf.WriteByte(0x88)
		} else {
			buf.WriteByte(0x89)
		}
	case int:
		encodeValue(t, buf, int64(val))
	case int64:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			buf.WriteByte('J')
			binary.Write(buf, binary.LittleEndian, int32(val))
			return
		}
		// LONG1: little-endian two's complement
		b := make([]byte, 9)
		binary.LittleEndian.PutUint64(b, uint64(val))
		n := 8
		if val > 0 && b[7]&0x80 != 0 {
			n = 9
		}
		buf.WriteByte(0x8a)
		buf.WriteByte(byte(n))
		buf.Write(b[:n])
	case float64:
		buf.WriteByte('G')
		binary.Write(buf, binary.BigEndian, math.Float64bits(val))
	case string:
		buf.WriteByte('X')
		binary.Write(buf, binary.LittleEndian, uint32(len(val)))
		buf.WriteString(val)
	case []byte:
		buf.WriteByte('B')
		binary.Write(buf, binary.LittleEndian, uint32(len(val)))
		buf.Write(val)
	case []any:
		buf.WriteByte(']')
		if len(val) > 0 {
			buf.WriteByte('(')
			for _, item := range val {
				encodeValue(t, buf, item)
			}
			buf.WriteByte('e')
		}
	case map[any]any:
		buf.WriteByte('}')
		if len(val) > 0 {
			keys := make([]string, 0, len(val))
			byKey := make(map[string]any, len(val))
			for k := range val {
				s := keyString(k)
				keys = append(keys, s)
				byKey[s] = k
			}
			sort.Strings(keys)
			buf.WriteByte('(')
			for _, s := range keys {
				k := byKey[s]
				encodeValue(t, buf, k)
				encodeValue(t, buf, val[k])
			}
			buf.WriteByte('u')
		}
	default:
		t.Fatalf("encodePickle: unsupported type %T", v)
	}
}

func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	default:
		var buf bytes.Buffer
		binary.Write(&buf, binary.BigEndian, reflect.ValueOf(v).Int())
		return buf.String()
	}
}

func TestUnpickle_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"nil", nil},
		{"true", true},
		{"small int", int64(42)},
		{"negative int", int64(-7)},
		{"big int", int64(8674789463686483)},
		{"float", 3.25},
		{"string", "OZEKI"},
		{"bytes", []byte{1, 2, 3}},
		{"list", []any{int64(1), "two", int64(3)}},
		{"nested", []any{[]any{int64(1)}, map[any]any{"k": "v"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpickle(encodePickle(t, tt.v))
			if err != nil {
				t.Fatalf("unpickle error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.v) {
				t.Errorf("got %#v, want %#v", got, tt.v)
			}
		})
	}
}

func TestUnpickle_Dict(t *testing.T) {
	in := map[any]any{
		"arenaUniqueID":  int64(8674789463686483),
		int64(537149649): []any{int64(1), int64(2)},
	}
	got, err := unpickle(encodePickle(t, in))
	if err != nil {
		t.Fatalf("unpickle error: %v", err)
	}
	dict, ok := got.(map[any]any)
	if !ok {
		t.Fatalf("got %T, want dict", got)
	}
	if dict["arenaUniqueID"] != int64(8674789463686483) {
		t.Errorf("arenaUniqueID = %v", dict["arenaUniqueID"])
	}
	if !reflect.DeepEqual(dict[int64(537149649)], []any{int64(1), int64(2)}) {
		t.Errorf("int key entry = %#v", dict[int64(537149649)])
	}
}

func TestUnpickle_Truncated(t *testing.T) {
	data := encodePickle(t, []any{int64(1), int64(2)})
	if _, err := unpickle(data[:len(data)-3]); err == nil {
		t.Fatal("expected error for truncated pickle")
	}
}

func TestUnpickle_RejectsUnknownOpcode(t *testing.T) {
	if _, err := unpickle([]byte{0x80, 0x02, 'c', 'o', 's'}); err == nil {
		t.Fatal("expected error for GLOBAL opcode")
	}
}

func TestDecodeLong(t *testing.T) {
	tests := []struct {
		in   []byte
		want int64
	}{
		{[]byte{}, 0},
		{[]byte{0x05}, 5},
		{[]byte{0xfb}, -5},
		{[]byte{0x00, 0x01}, 256},
		{[]byte{0xff, 0x7f}, 32767},
	}
	for _, tt := range tests {
		if got := decodeLong(tt.in); got != tt.want {
			t.Errorf("decodeLong(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
