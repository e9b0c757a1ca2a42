package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// The game serializes entity-method payloads with Python pickle protocol 2.
// This is a minimal reader for the value shapes those payloads actually use:
// None/bool/int/float/bytes/str, tuples, lists and dicts. Class instances and
// anything requiring an import are rejected.

var errPickle = errors.New("replay: bad pickle payload")

type pickleMark struct{}

type pickleReader struct {
	data  []byte
	pos   int
	stack []any
	memo  map[int]any
}

func unpickle(data []byte) (any, error) {
	r := &pickleReader{data: data, memo: make(map[int]any)}
	return r.run()
}

func (r *pickleReader) run() (any, error) {
	for r.pos < len(r.data) {
		op := r.data[r.pos]
		r.pos++

		switch op {
		case 0x80: // PROTO
			if _, err := r.readByte(); err != nil {
				return nil, err
			}
		case 0x95: // FRAME (protocol 4); length is advisory
			if _, err := r.readBytes(8); err != nil {
				return nil, err
			}
		case '.': // STOP
			if len(r.stack) == 0 {
				return nil, fmt.Errorf("%w: empty stack at stop", errPickle)
			}
			return r.stack[len(r.stack)-1], nil

		case 'N': // NONE
			r.push(nil)
		case 0x88: // NEWTRUE
			r.push(true)
		case 0x89: // NEWFALSE
			r.push(false)

		case 'K': // BININT1
			b, err := r.readByte()
			if err != nil {
				return nil, err
			}
			r.push(int64(b))
		case 'M': // BININT2
			b, err := r.readBytes(2)
			if err != nil {
				return nil, err
			}
			r.push(int64(binary.LittleEndian.Uint16(b)))
		case 'J': // BININT
			b, err := r.readBytes(4)
			if err != nil {
				return nil, err
			}
			r.push(int64(int32(binary.LittleEndian.Uint32(b))))
		case 0x8a: // LONG1
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(decodeLong(b))
		case 'G': // BINFLOAT, big-endian per pickle spec
			b, err := r.readBytes(8)
			if err != nil {
				return nil, err
			}
			r.push(math.Float64frombits(binary.BigEndian.Uint64(b)))

		case 'U': // SHORT_BINSTRING
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(string(b))
		case 'T': // BINSTRING
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(string(b))
		case 'X': // BINUNICODE
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(string(b))
		case 0x8c: // SHORT_BINUNICODE
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(string(b))
		case 'C': // SHORT_BINBYTES
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(append([]byte(nil), b...))
		case 'B': // BINBYTES
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			b, err := r.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			r.push(append([]byte(nil), b...))

		case '(': // MARK
			r.push(pickleMark{})
		case ')': // EMPTY_TUPLE
			r.push([]any{})
		case 0x85: // TUPLE1
			v, err := r.popN(1)
			if err != nil {
				return nil, err
			}
			r.push(v)
		case 0x86: // TUPLE2
			v, err := r.popN(2)
			if err != nil {
				return nil, err
			}
			r.push(v)
		case 0x87: // TUPLE3
			v, err := r.popN(3)
			if err != nil {
				return nil, err
			}
			r.push(v)
		case 't': // TUPLE
			items, err := r.popToMark()
			if err != nil {
				return nil, err
			}
			r.push(items)

		case ']': // EMPTY_LIST
			r.push([]any{})
		case 'a': // APPEND
			v, err := r.popN(1)
			if err != nil {
				return nil, err
			}
			list, err := r.topList()
			if err != nil {
				return nil, err
			}
			r.stack[len(r.stack)-1] = append(list, v[0])
		case 'e': // APPENDS
			items, err := r.popToMark()
			if err != nil {
				return nil, err
			}
			list, err := r.topList()
			if err != nil {
				return nil, err
			}
			r.stack[len(r.stack)-1] = append(list, items...)

		case '}': // EMPTY_DICT
			r.push(map[any]any{})
		case 's': // SETITEM
			kv, err := r.popN(2)
			if err != nil {
				return nil, err
			}
			dict, err := r.topDict()
			if err != nil {
				return nil, err
			}
			dict[normalizeKey(kv[0])] = kv[1]
		case 'u': // SETITEMS
			items, err := r.popToMark()
			if err != nil {
				return nil, err
			}
			if len(items)%2 != 0 {
				return nil, fmt.Errorf("%w: odd setitems", errPickle)
			}
			dict, err := r.topDict()
			if err != nil {
				return nil, err
			}
			for i := 0; i < len(items); i += 2 {
				dict[normalizeKey(items[i])] = items[i+1]
			}

		case 'q': // BINPUT
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			r.memo[int(n)] = r.top()
		case 'r': // LONG_BINPUT
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			r.memo[int(n)] = r.top()
		case 0x94: // MEMOIZE
			r.memo[len(r.memo)] = r.top()
		case 'h': // BINGET
			n, err := r.readByte()
			if err != nil {
				return nil, err
			}
			v, ok := r.memo[int(n)]
			if !ok {
				return nil, fmt.Errorf("%w: memo %d", errPickle, n)
			}
			r.push(v)
		case 'j': // LONG_BINGET
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			v, ok := r.memo[int(n)]
			if !ok {
				return nil, fmt.Errorf("%w: memo %d", errPickle, n)
			}
			r.push(v)

		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x at %d", errPickle, op, r.pos-1)
		}
	}
	return nil, fmt.Errorf("%w: no stop opcode", errPickle)
}

// normalizeKey coerces dict keys to comparable Go values.
func normalizeKey(k any) any {
	switch v := k.(type) {
	case int64, string, bool, float64, nil:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// decodeLong decodes pickle's little-endian two's-complement long encoding.
func decodeLong(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	if b[len(b)-1]&0x80 != 0 && len(b) < 8 {
		v -= 1 << (8 * uint(len(b)))
	}
	return int64(v)
}

func (r *pickleReader) push(v any) { r.stack = append(r.stack, v) }

func (r *pickleReader) top() any {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

func (r *pickleReader) popN(n int) ([]any, error) {
	if len(r.stack) < n {
		return nil, fmt.Errorf("%w: stack underflow", errPickle)
	}
	out := make([]any, n)
	copy(out, r.stack[len(r.stack)-n:])
	r.stack = r.stack[:len(r.stack)-n]
	return out, nil
}

func (r *pickleReader) popToMark() ([]any, error) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if _, ok := r.stack[i].(pickleMark); ok {
			items := make([]any, len(r.stack)-i-1)
			copy(items, r.stack[i+1:])
			r.stack = r.stack[:i]
			return items, nil
		}
	}
	return nil, fmt.Errorf("%w: no mark", errPickle)
}

func (r *pickleReader) topList() ([]any, error) {
	list, ok := r.top().([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top of stack is not a list", errPickle)
	}
	return list, nil
}

func (r *pickleReader) topDict() (map[any]any, error) {
	dict, ok := r.top().(map[any]any)
	if !ok {
		return nil, fmt.Errorf("%w: top of stack is not a dict", errPickle)
	}
	return dict, nil
}

func (r *pickleReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: short read", errPickle)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *pickleReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: short read of %d", errPickle, n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *pickleReader) readUint32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
