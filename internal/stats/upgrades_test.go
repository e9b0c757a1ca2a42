package stats

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

// buildConfigDump assembles a shipConfigDump blob for tests.
func buildConfigDump(shipParamsID uint32, units, modernizations, signals []uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // unknown
	binary.Write(&buf, binary.LittleEndian, shipParamsID)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // unknown
	binary.Write(&buf, binary.LittleEndian, uint32(len(units)))
	for _, u := range units {
		binary.Write(&buf, binary.LittleEndian, u)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // applied external config
	binary.Write(&buf, binary.LittleEndian, uint32(len(modernizations)))
	for _, m := range modernizations {
		binary.Write(&buf, binary.LittleEndian, m)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(len(signals)))
	for _, s := range signals {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestDecodeShipConfigDump(t *testing.T) {
	dump := buildConfigDump(4181604048,
		[]uint32{11, 12, 13},
		[]uint32{4257451952, 4237529008},
		[]uint32{900})

	cfg, err := decodeShipConfigDump(dump)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if cfg.ShipParamsID != 4181604048 {
		t.Errorf("ShipParamsID = %d", cfg.ShipParamsID)
	}
	if !reflect.DeepEqual(cfg.Modernizations, []int64{4257451952, 4237529008}) {
		t.Errorf("Modernizations = %v", cfg.Modernizations)
	}
	if !reflect.DeepEqual(cfg.Signals, []int64{900}) {
		t.Errorf("Signals = %v", cfg.Signals)
	}
}

func TestDecodeShipConfigDump_Truncated(t *testing.T) {
	dump := buildConfigDump(1, []uint32{1}, []uint32{2}, []uint32{3})
	for _, cut := range []int{0, 10, 19, len(dump) - 2} {
		if _, err := decodeShipConfigDump(dump[:cut]); err == nil {
			t.Errorf("expected error at cut %d", cut)
		}
	}
}

func TestUpgradesFromDump(t *testing.T) {
	mods, err := LoadModernizations()
	if err != nil {
		t.Fatalf("LoadModernizations: %v", err)
	}

	dump := buildConfigDump(4181604048, nil,
		[]uint32{4257451952, 4237529008, 0}, nil) // PCM001, PCM020, empty slot

	got := mods.upgradesFromDump(dump)
	want := []string{"Main Armaments Mod 1", "Damage Control System Mod 1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if mods.upgradesFromDump(nil) != nil {
		t.Error("nil dump should yield no upgrades")
	}
}

func TestUpgradeName_UnknownID(t *testing.T) {
	mods, err := LoadModernizations()
	if err != nil {
		t.Fatalf("LoadModernizations: %v", err)
	}
	if got := mods.UpgradeName(12345); got != "" {
		t.Errorf("unknown id resolved to %q", got)
	}
}

func TestSkillDisplayName_PassThrough(t *testing.T) {
	if got := SkillDisplayName("DetectionVisibilityRange"); got != "Concealment Expert" {
		t.Errorf("got %q", got)
	}
	if got := SkillDisplayName("BrandNewSkill"); got != "BrandNewSkill" {
		t.Errorf("unknown skill should pass through, got %q", got)
	}
}
