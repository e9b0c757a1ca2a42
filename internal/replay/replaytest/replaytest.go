// Package replaytest builds synthetic .wowsreplay containers for tests:
// metadata block, pickled entity-method payloads, and the encrypted,
// compressed packet stream, byte-compatible with the production decoder.
package replaytest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blowfish"

	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/replay"
)

const magic = 0x11343212

// Same fixed stream key the client uses; duplicated here so the fixture
// package stays independent of decoder internals.
var streamKey = []byte{
	0x29, 0xB7, 0xC9, 0x09, 0x38, 0x3F, 0x84, 0x88,
	0xFA, 0x98, 0xEC, 0x4E, 0x13, 0x19, 0x79, 0xFB,
}

// Builder assembles a synthetic replay container.
type Builder struct {
	Meta    models.ReplayMeta
	packets []byte
}

func NewBuilder(meta models.ReplayMeta) *Builder {
	return &Builder{Meta: meta}
}

func (b *Builder) catalog() replay.Catalog {
	cat, err := replay.CatalogFor(b.Meta.ClientVersionFromXML)
	if err != nil {
		panic(fmt.Sprintf("replaytest: %v", err))
	}
	return cat
}

// AddPacket appends one raw frame.
func (b *Builder) AddPacket(typ uint32, clock float32, payload []byte) {
	var frame bytes.Buffer
	binary.Write(&frame, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&frame, binary.LittleEndian, typ)
	binary.Write(&frame, binary.LittleEndian, math.Float32bits(clock))
	frame.Write(payload)
	b.packets = append(b.packets, frame.Bytes()...)
}

// AddEntityMethod appends an entity-method frame with a pickled payload.
func (b *Builder) AddEntityMethod(entityID int64, methodID uint32, clock float32, value any) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(entityID))
	binary.Write(&payload, binary.LittleEndian, methodID)
	pickled := EncodePickle(value)
	binary.Write(&payload, binary.LittleEndian, uint32(len(pickled)))
	payload.Write(pickled)
	b.AddPacket(b.catalog().PacketEntityMethod, clock, payload.Bytes())
}

// AddPosition appends a position frame for an entity.
func (b *Builder) AddPosition(entityID int64, clock, x, z float32) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(entityID))
	binary.Write(&payload, binary.LittleEndian, uint32(0))
	binary.Write(&payload, binary.LittleEndian, math.Float32bits(x))
	binary.Write(&payload, binary.LittleEndian, math.Float32bits(0))
	binary.Write(&payload, binary.LittleEndian, math.Float32bits(z))
	b.AddPacket(b.catalog().PacketPosition, clock, payload.Bytes())
}

// Build compresses, encrypts and frames the container.
func (b *Builder) Build() []byte {
	metaJSON, err := json.Marshal(b.Meta)
	if err != nil {
		panic(fmt.Sprintf("replaytest: marshal meta: %v", err))
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(b.packets)
	zw.Close()

	plain := compressed.Bytes()
	if pad := len(plain) % blowfish.BlockSize; pad != 0 {
		plain = append(plain, make([]byte, blowfish.BlockSize-pad)...)
	}

	cipher, err := blowfish.NewCipher(streamKey)
	if err != nil {
		panic(fmt.Sprintf("replaytest: cipher: %v", err))
	}
	enc := make([]byte, len(plain))
	var prev [blowfish.BlockSize]byte
	for off := 0; off < len(plain); off += blowfish.BlockSize {
		var block [blowfish.BlockSize]byte
		copy(block[:], plain[off:off+blowfish.BlockSize])
		var xored [blowfish.BlockSize]byte
		for i := range block {
			xored[i] = block[i] ^ prev[i]
		}
		cipher.Encrypt(enc[off:off+blowfish.BlockSize], xored[:])
		prev = block
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(magic))
	binary.Write(&out, binary.LittleEndian, uint32(1))
	binary.Write(&out, binary.LittleEndian, uint32(len(metaJSON)))
	out.Write(metaJSON)
	binary.Write(&out, binary.LittleEndian, uint32(len(b.packets)))
	out.Write(enc)
	return out.Bytes()
}

// Meta is the standard fixture: a 14.11.0 clan battle on 19_OC_prey.
func Meta() models.ReplayMeta {
	return models.ReplayMeta{
		ClientVersionFromXML: "14,11,0,10552336",
		MapName:              "spaces/19_OC_prey",
		MapDisplayName:       "Haven",
		MatchGroup:           "clan",
		DateTime:             "03.01.2026 23:28:22",
		PlayerID:             537149649,
		PlayerName:           "_meteor0090",
		Vehicles: []models.Vehicle{
			{ShipID: 4181604048, Relation: 0, ID: 537149649, Name: "_meteor0090"},
			{ShipID: 4180522704, Relation: 1, ID: 537149650, Name: "ally_one"},
			{ShipID: 4276008656, Relation: 2, ID: 537149651, Name: "enemy_one"},
		},
	}
}

// ArenaState is the standard pickled arena-state payload for Meta().
func ArenaState() map[any]any {
	return map[any]any{
		"players": []any{
			map[any]any{
				"id": int64(537149649), "name": "_meteor0090", "clanTag": "OZEKI",
				"avatarId": int64(9001), "shipParamsId": int64(4181604048), "teamId": int64(0),
				"crewParams": []any{int64(777)},
			},
			map[any]any{
				"id": int64(537149650), "name": "ally_one", "clanTag": "OZEKI",
				"avatarId": int64(9002), "shipParamsId": int64(4180522704), "teamId": int64(0),
				"crewParams": []any{int64(778)},
			},
			map[any]any{
				"id": int64(537149651), "name": "enemy_one", "clanTag": "PREY",
				"avatarId": int64(9003), "shipParamsId": int64(4276008656), "teamId": int64(1),
				"crewParams": []any{int64(779)},
			},
		},
		"crews": map[any]any{
			int64(777): map[any]any{
				"crew_id": int64(777),
				"learned_skills": map[any]any{
					"Destroyer":  []any{"DetectionVisibilityRange", "Maneuverability"},
					"Battleship": []any{"DefenseHp"},
				},
			},
		},
	}
}

// PlayerSlots builds a 430-slot positional array with id, name and clan tag
// set plus the given overrides.
func PlayerSlots(id int64, name, clanTag string, overrides map[int]any) []any {
	arr := make([]any, 430)
	for i := range arr {
		arr[i] = int64(0)
	}
	arr[0] = id
	arr[1] = name
	arr[3] = clanTag
	for slot, v := range overrides {
		arr[slot] = v
	}
	return arr
}

// BattleStats is the standard pickled battle-stats payload for Meta().
func BattleStats(arenaID int64) map[any]any {
	return map[any]any{
		"arenaUniqueID": arenaID,
		"playersPublicInfo": map[any]any{
			int64(537149649): PlayerSlots(537149649, "_meteor0090", "OZEKI", map[int]any{429: int64(123456)}),
			int64(537149650): PlayerSlots(537149650, "ally_one", "OZEKI", map[int]any{429: int64(98000)}),
			int64(537149651): PlayerSlots(537149651, "enemy_one", "PREY", map[int]any{429: int64(84000)}),
		},
		"privateDataList": []any{nil, nil, nil, nil, nil, nil, nil, []any{int64(300000)}},
	}
}

// BuildComplete returns a full clan-battle replay with positions, a battle
// result and the terminal battle-stats packet.
func BuildComplete() []byte {
	b := NewBuilder(Meta())
	cat := b.catalog()
	b.AddEntityMethod(1, cat.MethodOnArenaStateReceived, 0.5, ArenaState())
	b.AddPosition(9001, 10, 100, 200)
	b.AddPosition(9001, 20, 120, 220)
	b.AddPosition(9003, 15, -300, 400)
	b.AddEntityMethod(1, cat.MethodOnBattleEnd, 1180, []any{int64(0), int64(1)})
	b.AddEntityMethod(1, cat.MethodReceiveBattleStats, 1200, BattleStats(8674789463686483))
	return b.Build()
}

// BuildIncomplete returns a replay cut off before the battle-stats packet.
func BuildIncomplete() []byte {
	b := NewBuilder(Meta())
	cat := b.catalog()
	b.AddEntityMethod(1, cat.MethodOnArenaStateReceived, 0.5, ArenaState())
	b.AddPosition(9001, 10, 100, 200)
	return b.Build()
}

// EncodePickle emits a protocol-2 pickle of nil/bool/int64/float64/string/
// []byte/[]any/map[any]any values, matching what the decoder reads.
func EncodePickle(v any) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x02})
	encodeValue(&buf, v)
	buf.WriteByte('.')
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v any) {
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
		encodeValue(buf, int64(val))
	case int64:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			buf.WriteByte('J')
			binary.Write(buf, binary.LittleEndian, int32(val))
			return
		}
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
				encodeValue(buf, item)
			}
			buf.WriteByte('e')
		}
	case map[any]any:
		buf.WriteByte('}')
		if len(val) > 0 {
			keys := make([]string, 0, len(val))
			byKey := make(map[string]any, len(val))
			for k := range val {
				s := fmt.Sprintf("%T|%v", k, k)
				keys = append(keys, s)
				byKey[s] = k
			}
			sort.Strings(keys)
			buf.WriteByte('(')
			for _, s := range keys {
				k := byKey[s]
				encodeValue(buf, k)
				encodeValue(buf, val[k])
			}
			buf.WriteByte('u')
		}
	default:
		panic(fmt.Sprintf("replaytest: unsupported pickle type %T", v))
	}
}
