package stats

import (
	"errors"
	"fmt"
)

// ErrIndexMissing is returned when no index table exists for a client version.
// Operationally equivalent to an unsupported version: a new client shipped.
var ErrIndexMissing = errors.New("stats: no index table for client version")

// FieldID names one decoded slot of the playersPublicInfo positional array.
type FieldID int

const (
	FieldPlayerID FieldID = iota
	FieldPlayerName
	FieldAccountDBID
	FieldClanTag
	FieldClanID
	FieldRealm
	FieldSurvivalTime
	FieldKills
	FieldHitsAP
	FieldHitsHE
	FieldHitsSecondaries
	FieldCitadels
	FieldFloods
	FieldCrits
	FieldFires
	FieldDamageAP
	FieldDamageHE
	FieldDamageHESecondaries
	FieldDamageSAPSecondaries
	FieldDamageTorps
	FieldDamageDeepWaterTorps
	FieldDamageOther
	FieldDamageFire
	FieldDamageFlooding
	FieldReceivedDamage
	FieldBaseXP
	FieldSpottingDamage
	FieldPotentialDamage
	FieldDamage
)

// slotKind selects how a raw slot value is decoded.
type slotKind int

const (
	asInt slotKind = iota
	asFloatInt
	asString
	asStringEmpty // string with empty fallback (clan tag)
)

type slotDef struct {
	Slot int
	Kind slotKind
}

// IndexTable is the reviewed per-version mapping from named fields to
// positional slots. Slots that appear more than once in the raw array (fires,
// SAP secondaries) list only the canonical occurrence here.
type IndexTable struct {
	Version  string
	MinSlots int
	Slots    map[FieldID]slotDef
}

// The 14.11.0 table is validated against a known-good export; earlier 14.x
// tables differ only in the tail block, which the client grew by two slots
// between 14.10 and 14.11.
var indexTables = map[string]IndexTable{
	"14.9.0":  table149,
	"14.10.0": table149,
	"14.11.0": table1411,
}

var table1411 = IndexTable{
	Version:  "14.11.0",
	MinSlots: 430,
	Slots: map[FieldID]slotDef{
		FieldPlayerID:    {0, asInt},
		FieldPlayerName:  {1, asString},
		FieldAccountDBID: {2, asInt},
		FieldClanTag:     {3, asStringEmpty},
		FieldClanID:      {4, asInt},
		FieldRealm:       {9, asString},

		FieldSurvivalTime: {22, asInt},
		FieldKills:        {32, asInt},

		FieldHitsAP:          {66, asInt},
		FieldHitsHE:          {68, asInt},
		FieldHitsSecondaries: {71, asInt},

		FieldCitadels: {73, asInt},
		FieldFloods:   {75, asInt},
		FieldCrits:    {81, asInt},
		FieldFires:    {86, asInt},

		FieldDamageAP:             {157, asInt},
		FieldDamageHE:             {159, asInt},
		FieldDamageHESecondaries:  {162, asInt},
		FieldDamageSAPSecondaries: {163, asInt},
		FieldDamageTorps:          {166, asInt},
		FieldDamageDeepWaterTorps: {167, asInt},
		FieldDamageOther:          {178, asInt},
		FieldDamageFire:           {179, asInt},
		FieldDamageFlooding:       {180, asInt},

		FieldReceivedDamage: {204, asInt},

		FieldBaseXP:          {406, asInt},
		FieldSpottingDamage:  {415, asInt},
		FieldPotentialDamage: {419, asFloatInt},
		FieldDamage:          {429, asInt},
	},
}

var table149 = IndexTable{
	Version:  "14.9.0",
	MinSlots: 428,
	Slots: map[FieldID]slotDef{
		FieldPlayerID:    {0, asInt},
		FieldPlayerName:  {1, asString},
		FieldAccountDBID: {2, asInt},
		FieldClanTag:     {3, asStringEmpty},
		FieldClanID:      {4, asInt},
		FieldRealm:       {9, asString},

		FieldSurvivalTime: {22, asInt},
		FieldKills:        {32, asInt},

		FieldHitsAP:          {66, asInt},
		FieldHitsHE:          {68, asInt},
		FieldHitsSecondaries: {71, asInt},

		FieldCitadels: {73, asInt},
		FieldFloods:   {75, asInt},
		FieldCrits:    {81, asInt},
		FieldFires:    {86, asInt},

		FieldDamageAP:             {157, asInt},
		FieldDamageHE:             {159, asInt},
		FieldDamageHESecondaries:  {162, asInt},
		FieldDamageSAPSecondaries: {163, asInt},
		FieldDamageTorps:          {166, asInt},
		FieldDamageDeepWaterTorps: {167, asInt},
		FieldDamageOther:          {178, asInt},
		FieldDamageFire:           {179, asInt},
		FieldDamageFlooding:       {180, asInt},

		FieldReceivedDamage: {204, asInt},

		FieldBaseXP:          {404, asInt},
		FieldSpottingDamage:  {413, asInt},
		FieldPotentialDamage: {417, asFloatInt},
		FieldDamage:          {427, asInt},
	},
}

// TableFor returns the index table for a normalized client version.
func TableFor(version string) (IndexTable, error) {
	t, ok := indexTables[version]
	if !ok {
		return IndexTable{}, fmt.Errorf("%w: %q", ErrIndexMissing, version)
	}
	return t, nil
}

// decodeSlot applies a slot definition to the raw array.
func decodeSlot(raw []any, def slotDef) any {
	if def.Slot >= len(raw) {
		return nil
	}
	v := raw[def.Slot]
	switch def.Kind {
	case asInt:
		return toInt(v)
	case asFloatInt:
		if f, ok := v.(float64); ok {
			return int(f)
		}
		return toInt(v)
	case asString:
		return toString(v)
	case asStringEmpty:
		if v == nil {
			return ""
		}
		return toString(v)
	}
	return v
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toString(v any) string {
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
