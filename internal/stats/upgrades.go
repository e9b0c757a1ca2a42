package stats

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// shipConfig is the decoded form of a shipConfigDump blob.
type shipConfig struct {
	ShipParamsID   int64
	Modernizations []int64
	Signals        []int64
}

// decodeShipConfigDump parses the shipConfigDump binary layout:
//
//	[0:4]   unknown
//	[4:8]   ship params id
//	[8:12]  unknown
//	[12:16] units count d, then d*4 bytes of unit ids
//	[+4]    applied external config (clients >= 13.2.0)
//	[+4]    modernization count e, then e*4 bytes of modernization ids
//	[+4]    signals count f, then f*4 bytes of signal ids
func decodeShipConfigDump(dump []byte) (shipConfig, error) {
	var cfg shipConfig
	if len(dump) < 20 {
		return cfg, fmt.Errorf("stats: ship config dump too short: %d bytes", len(dump))
	}

	cfg.ShipParamsID = int64(binary.LittleEndian.Uint32(dump[4:8]))

	pos := 12
	readU32 := func() (uint32, error) {
		if pos+4 > len(dump) {
			return 0, fmt.Errorf("stats: ship config dump truncated at %d", pos)
		}
		v := binary.LittleEndian.Uint32(dump[pos : pos+4])
		pos += 4
		return v, nil
	}

	units, err := readU32()
	if err != nil {
		return cfg, err
	}
	pos += 4 * int(units)

	if _, err := readU32(); err != nil { // applied external config
		return cfg, err
	}

	mods, err := readU32()
	if err != nil {
		return cfg, err
	}
	for i := uint32(0); i < mods; i++ {
		id, err := readU32()
		if err != nil {
			return cfg, err
		}
		cfg.Modernizations = append(cfg.Modernizations, int64(id))
	}

	signals, err := readU32()
	if err != nil {
		return cfg, err
	}
	for i := uint32(0); i < signals; i++ {
		id, err := readU32()
		if err != nil {
			return cfg, err
		}
		cfg.Signals = append(cfg.Signals, int64(id))
	}

	return cfg, nil
}

// upgradeNames maps PCM codes to English display names.
var upgradeNames = map[string]string{
	"PCM001": "Main Armaments Mod 1",
	"PCM002": "Auxiliary Armaments Mod 1",
	"PCM003": "Air Groups Mod 1",
	"PCM004": "AA Guns Mod 1",
	"PCM005": "Secondary Battery Mod 1",
	"PCM006": "Main Battery Mod 2",
	"PCM007": "Torpedo Tubes Mod 1",
	"PCM008": "Gun Fire Control System Mod 1",
	"PCM009": "Flight Control Mod 1",
	"PCM010": "Fighter Mod 1",
	"PCM011": "AA Guns Mod 3",
	"PCM012": "Secondary Battery Mod 2",
	"PCM013": "Main Battery Mod 3",
	"PCM014": "Torpedo Tubes Mod 2",
	"PCM015": "Gun Fire Control System Mod 2",
	"PCM016": "Flight Control Mod 2",
	"PCM017": "Air Groups Mod 2",
	"PCM018": "AA Guns Mod 2",
	"PCM019": "Secondary Battery Mod 3",
	"PCM020": "Damage Control System Mod 1",
	"PCM021": "Propulsion Mod 1",
	"PCM022": "Steering Gears Mod 1",
	"PCM023": "Damage Control System Mod 2",
	"PCM024": "Propulsion Mod 1",
	"PCM025": "Steering Gears Mod 1",
	"PCM026": "Torpedo Lookout System",
	"PCM027": "Concealment System Mod 1",
	"PCM028": "Artillery Plotting Room Mod 1",
	"PCM029": "Artillery Plotting Room Mod 2",
	"PCM030": "Main Armaments Mod 1",
	"PCM031": "Auxiliary Armaments Mod 1",
	"PCM033": "Aiming Systems Mod 1",
	"PCM034": "Aiming Systems Mod 0",
	"PCM035": "Steering Gears Mod 2",
	"PCM036": "Engine Boost Mod 1",
	"PCM037": "Smoke Generator Mod 1",
	"PCM038": "Spotting Aircraft Mod 1",
	"PCM039": "Damage Control Party Mod 1",
	"PCM040": "Defensive AA Fire Mod 1",
	"PCM041": "Hydroacoustic Search Mod 1",
	"PCM042": "Surveillance Radar Mod 1",
	"PCM043": "Main Battery Reload Booster Mod 1",
	"PCM063": "Attack Aircraft Mod 2",
	"PCM064": "Torpedo Bombers Mod 2",
	"PCM065": "Dive Bombers Mod 1",
	"PCM066": "Torpedo Bombers Mod 1",
	"PCM067": "Attack Aircraft Mod 1",
	"PCM068": "Aircraft Engines Mod 1",
	"PCM069": "Engine Room Protection",
	"PCM070": "Torpedo Tubes Mod 1",
	"PCM071": "Aerial Torpedoes Mod 1",
	"PCM072": "Ship Consumables Mod 1",
	"PCM073": "Squadron Consumables Mod 1",
	"PCM074": "Auxiliary Armaments Mod 2",
	"PCM081": "Skip Bomber Mod 2",
	"PCM082": "Dive Capacity Mod 1",
	"PCM084": "Sonar Mod 1",
	"PCM085": "Sonar Mod 2",
	"PCM086": "Dive Capacity Mod 2",
	"PCM087": "Airstrike Mod 1",
	"PCM089": "Depth Charges Mod 1",
	"PCM090": "Submarine Steering Gears",
	"PCM092": "Skip Bomber Mod 1",
	"PCM093": "Air Groups Mod 3",
	"PCM100": "Damage Control System Mod 3",
	"PCM101": "Torpedo Tubes Mod 3",
	"PCM102": "Reinforced Bulkheads",
}

//go:embed modernizations.json
var modernizationsJSON []byte

// Modernizations resolves numeric modernization ids (as found in a
// shipConfigDump) to PCM codes and display names. Immutable after load.
type Modernizations struct {
	byID map[int64]string // id -> PCM code
}

// LoadModernizations parses the embedded modernization table.
func LoadModernizations() (*Modernizations, error) {
	var raw struct {
		Modernizations map[string]struct {
			Index string `json:"index"`
		} `json:"modernizations"`
	}
	if err := json.Unmarshal(modernizationsJSON, &raw); err != nil {
		return nil, fmt.Errorf("modernizations: %w", err)
	}
	byID := make(map[int64]string, len(raw.Modernizations))
	for id, entry := range raw.Modernizations {
		var key int64
		if _, err := fmt.Sscanf(id, "%d", &key); err != nil {
			continue
		}
		byID[key] = entry.Index
	}
	return &Modernizations{byID: byID}, nil
}

// UpgradeName resolves a modernization id to a display name. Falls back to
// the PCM code when no display name is mapped; empty when the id is unknown.
func (m *Modernizations) UpgradeName(id int64) string {
	code, ok := m.byID[id]
	if !ok {
		return ""
	}
	if name, ok := upgradeNames[code]; ok {
		return name
	}
	return code
}

// upgradesFromDump decodes a shipConfigDump and resolves its modernizations.
func (m *Modernizations) upgradesFromDump(dump []byte) []string {
	if len(dump) == 0 {
		return nil
	}
	cfg, err := decodeShipConfigDump(dump)
	if err != nil {
		return nil
	}
	var out []string
	for _, id := range cfg.Modernizations {
		if id == 0 {
			continue
		}
		if name := m.UpgradeName(id); name != "" {
			out = append(out, name)
		}
	}
	return out
}
