package replay

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wowsvault/replay-api/internal/models"
)

// packet is one frame of the decrypted stream:
// size:u32 | type:u32 | clock:f32 | payload[size].
type packet struct {
	Type    uint32
	Clock   float32
	Payload []byte
}

// packetWalker iterates frames without copying payloads.
type packetWalker struct {
	stream []byte
	pos    int
}

func (w *packetWalker) next() (*packet, error) {
	if w.pos == len(w.stream) {
		return nil, nil
	}
	if w.pos+12 > len(w.stream) {
		return nil, fmt.Errorf("%w: frame header at %d", ErrTruncatedStream, w.pos)
	}
	size := binary.LittleEndian.Uint32(w.stream[w.pos : w.pos+4])
	typ := binary.LittleEndian.Uint32(w.stream[w.pos+4 : w.pos+8])
	clock := math.Float32frombits(binary.LittleEndian.Uint32(w.stream[w.pos+8 : w.pos+12]))
	w.pos += 12

	if w.pos+int(size) > len(w.stream) {
		return nil, fmt.Errorf("%w: payload of %d at %d", ErrTruncatedStream, size, w.pos)
	}
	payload := w.stream[w.pos : w.pos+int(size)]
	w.pos += int(size)

	return &packet{Type: typ, Clock: clock, Payload: payload}, nil
}

// streamState accumulates decoded state while walking the packet sequence.
type streamState struct {
	cat Catalog

	hidden      models.HiddenState
	battleStats *models.BattleStats
	tracks      map[int64][]models.TrackPoint
	mapName     string
}

func newStreamState(cat Catalog) *streamState {
	return &streamState{
		cat: cat,
		hidden: models.HiddenState{
			Players: make(map[int64]*models.HiddenPlayer),
			Crews:   make(map[int64]*models.HiddenCrew),
		},
		tracks: make(map[int64][]models.TrackPoint),
	}
}

// handle dispatches one packet. Payload errors are returned only for frames
// the pipeline depends on; malformed auxiliary packets are skipped.
func (s *streamState) handle(p *packet) error {
	switch p.Type {
	case s.cat.PacketMap:
		s.handleMap(p)
	case s.cat.PacketPosition:
		s.handlePosition(p)
	case s.cat.PacketEntityMethod:
		return s.handleEntityMethod(p)
	}
	return nil
}

// handleMap reads the space name from a Map packet:
// spaceID:u32 | arenaID:u64 | unknown:u32 | nameLen:u32 | name.
func (s *streamState) handleMap(p *packet) {
	if len(p.Payload) < 20 {
		return
	}
	nameLen := binary.LittleEndian.Uint32(p.Payload[16:20])
	if 20+int(nameLen) > len(p.Payload) {
		return
	}
	s.mapName = string(p.Payload[20 : 20+nameLen])
}

// handlePosition samples an entity position:
// entityID:u32 | vehicleID:u32 | x:f32 | y:f32 | z:f32 | ...
// The minimap is top-down, so y (height) is dropped.
func (s *streamState) handlePosition(p *packet) {
	if len(p.Payload) < 20 {
		return
	}
	entityID := int64(binary.LittleEndian.Uint32(p.Payload[0:4]))
	x := math.Float32frombits(binary.LittleEndian.Uint32(p.Payload[8:12]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(p.Payload[16:20]))
	s.tracks[entityID] = append(s.tracks[entityID], models.TrackPoint{Clock: p.Clock, X: x, Y: z})
}

// handleEntityMethod dispatches entity-method calls of interest:
// entityID:u32 | methodID:u32 | dataSize:u32 | data.
func (s *streamState) handleEntityMethod(p *packet) error {
	if len(p.Payload) < 12 {
		return nil
	}
	methodID := binary.LittleEndian.Uint32(p.Payload[4:8])
	dataSize := binary.LittleEndian.Uint32(p.Payload[8:12])
	if 12+int(dataSize) > len(p.Payload) {
		return fmt.Errorf("%w: entity method 0x%x payload", ErrTruncatedStream, methodID)
	}
	data := p.Payload[12 : 12+dataSize]

	switch methodID {
	case s.cat.MethodOnArenaStateReceived:
		return s.handleArenaState(data)
	case s.cat.MethodOnBattleEnd:
		s.handleBattleEnd(data)
	case s.cat.MethodReceiveBattleStats:
		return s.handleBattleStats(data)
	}
	return nil
}

// handleArenaState decodes the pickled arena state: the full player roster
// (with clan tags, team ids, crew params, shipConfigDump) and crew skill data.
func (s *streamState) handleArenaState(data []byte) error {
	v, err := unpickle(data)
	if err != nil {
		return fmt.Errorf("arena state: %w", err)
	}
	state, ok := v.(map[any]any)
	if !ok {
		return fmt.Errorf("arena state: %w: not a dict", errPickle)
	}

	for _, entry := range asList(state["players"]) {
		info, ok := entry.(map[any]any)
		if !ok {
			continue
		}
		id := asInt(info["id"])
		if id == 0 {
			continue
		}
		player := &models.HiddenPlayer{
			Name:         asString(info["name"]),
			ClanTag:      asString(info["clanTag"]),
			AvatarID:     asInt(info["avatarId"]),
			ShipParamsID: asInt(info["shipParamsId"]),
			TeamID:       int(asInt(info["teamId"])),
		}
		for _, cp := range asList(info["crewParams"]) {
			player.CrewParams = append(player.CrewParams, asInt(cp))
		}
		if dump, ok := info["shipConfigDump"].([]byte); ok {
			player.ShipConfigDump = dump
		} else if dump, ok := info["shipConfigDump"].(string); ok {
			player.ShipConfigDump = []byte(dump)
		}
		s.hidden.Players[id] = player
	}

	if crews, ok := state["crews"].(map[any]any); ok {
		for key, raw := range crews {
			info, ok := raw.(map[any]any)
			if !ok {
				continue
			}
			crew := &models.HiddenCrew{
				CrewID:        asInt(info["crew_id"]),
				LearnedSkills: make(map[string][]string),
			}
			if crew.CrewID == 0 {
				crew.CrewID = asInt(key)
			}
			if learned, ok := info["learned_skills"].(map[any]any); ok {
				for class, skills := range learned {
					name := asString(class)
					for _, skill := range asList(skills) {
						crew.LearnedSkills[name] = append(crew.LearnedSkills[name], asString(skill))
					}
				}
			}
			s.hidden.Crews[crew.CrewID] = crew
		}
	}
	return nil
}

// handleBattleEnd records the winner team. The payload is a pickled
// (winnerTeamID, finishReason) tuple; -1 means draw.
func (s *streamState) handleBattleEnd(data []byte) {
	v, err := unpickle(data)
	if err != nil {
		return
	}
	fields := asList(v)
	if len(fields) == 0 {
		return
	}
	s.hidden.BattleResult = &models.BattleResult{WinnerTeamID: int(asInt(fields[0]))}
}

// handleBattleStats decodes the terminal stats payload: a pickled dict with
// arenaUniqueID, playersPublicInfo and privateDataList.
func (s *streamState) handleBattleStats(data []byte) error {
	v, err := unpickle(data)
	if err != nil {
		return fmt.Errorf("battle stats: %w", err)
	}
	server, ok := v.(map[any]any)
	if !ok {
		return fmt.Errorf("battle stats: %w: not a dict", errPickle)
	}

	stats := &models.BattleStats{
		ArenaUniqueID:     asInt(server["arenaUniqueID"]),
		PlayersPublicInfo: make(map[int64][]any),
	}
	if public, ok := server["playersPublicInfo"].(map[any]any); ok {
		for key, slots := range public {
			stats.PlayersPublicInfo[asInt(key)] = asList(slots)
		}
	}
	stats.PrivateDataList = asList(server["privateDataList"])

	s.battleStats = stats
	return nil
}

// Loose-typed accessors for unpickled values.

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
