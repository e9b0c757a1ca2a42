package stats

import "github.com/wowsvault/replay-api/internal/models"

// skillDisplayNames maps internal skill identifiers to display names, 14.x
// line. Unknown identifiers pass through unchanged so a new skill degrades to
// its internal name rather than disappearing.
var skillDisplayNames = map[string]string{
	"GmReloadAaDamageConstant":                     "Gun Feeder",
	"DefenceCritFireFlooding":                      "Basics of Survivability",
	"GmTurn":                                       "Grease the Gears",
	"TorpedoReload":                                "Fill the Tubes",
	"ConsumablesCrashcrewRegencrewReload":          "Emergency Repair Specialist",
	"ConsumablesDuration":                          "Consumable Enhancements",
	"DetectionTorpedoRange":                        "Vigilance",
	"HeFireProbability":                            "Demolition Expert",
	"GmRangeAaDamageBubbles":                       "Main Battery and AA Specialist",
	"PlanesDefenseDamageConstant":                  "Air Supremacy",
	"PlanesForsageDuration":                        "Engine Tuning",
	"DetectionVisibilityRange":                     "Concealment Expert",
	"ConsumablesReload":                            "Improved Engine Boost",
	"DefenceFireProbability":                       "Fire Prevention Expert",
	"PlanesAimingBoost":                            "Aiming Facility Maintenance",
	"PlanesSpeed":                                  "Swift Fish",
	"ConsumablesAdditional":                        "Superintendent",
	"DefenseCritProbability":                       "Preventive Maintenance",
	"DetectionAlert":                               "Priority Target",
	"Maneuverability":                              "Last Stand",
	"GmShellReload":                                "Expert Loader",
	"PlanesConsumablesCallfightersUpgrade":         "Search and Destroy",
	"ArmamentReloadAaDamage":                       "Adrenaline Rush",
	"TorpedoSpeed":                                 "Swift Fish",
	"DefenseHp":                                    "Survivability Expert",
	"AtbaAccuracy":                                 "Long-Range Secondary Battery Shells",
	"AaPrioritysectorDamageConstant":               "Focus Fire Training",
	"DetectionAiming":                              "Incoming Fire Alert",
	"PlanesReload":                                 "Improved Engine Boost",
	"TorpedoDamage":                                "Torpedo Armament Expertise",
	"ConsumablesFighterAdditional":                 "Direction Center for Fighters",
	"PlanesConsumablesSpeedboosterReload":          "Enhanced Aircraft Armor",
	"HePenetration":                                "Inertia Fuse for HE Shells",
	"DetectionDirection":                           "Radio Location",
	"AaDamageConstantBubbles":                      "AA Defense and ASW Expert",
	"AaDamageConstantBubblesCv":                    "Enhanced Reactions",
	"ApDamageBb":                                   "Close Quarters Combat",
	"ApDamageCa":                                   "Heavy AP Shells",
	"ApDamageDd":                                   "Main Battery and AA Expert",
	"AtbaRange":                                    "Manual Secondary Battery Aiming",
	"AtbaUpgrade":                                  "Improved Secondary Battery Aiming",
	"ConsumablesCrashcrewRegencrewUpgrade":         "Improved Repair Party Readiness",
	"ConsumablesSpotterUpgrade":                    "Enhanced Fighter Consumable",
	"DefenceUw":                                    "Emergency Repair Expert",
	"DetectionVisibilityCrashcrew":                 "Swift in Silence",
	"HeFireProbabilityCv":                          "Pyrotechnician",
	"HeSapDamage":                                  "Super-Heavy AP Shells",
	"PlanesApDamage":                               "Armored Deck",
	"PlanesConsumablesCallfightersAdditional":      "Patrol Group Leader",
	"PlanesConsumablesCallfightersPreparationtime": "Interceptor",
	"PlanesConsumablesCallfightersRange":           "Enhanced Patrol Group",
	"PlanesConsumablesRegeneratehealthUpgrade":     "Enhanced Aircraft Armor",
	"PlanesDefenseDamageBubbles":                   "Enhanced Armor-Piercing Ammunition",
	"PlanesDivebomberSpeed":                        "Enhanced Dive Bomber Accuracy",
	"PlanesForsageRenewal":                         "Engine Techie",
	"PlanesHp":                                     "Survivability Expert",
	"PlanesTorpedoArmingrange":                     "Proximity Fuze",
	"PlanesTorpedoSpeed":                           "Torpedo Bomber Acceleration",
	"PlanesTorpedoUwReduced":                       "Enhanced Torpedo Bomber Aiming",
	"TorpedoFloodingProbability":                   "Liquidator",
	"TriggerSpeedBb":                               "Emergency Engine Power",
	"TriggerGmAtbaReloadBb":                        "Close Quarters Expert",
	"TriggerGmAtbaReloadCa":                        "Top Grade Gunner",
	"TriggerGmReload":                              "Fearless Brawler",
	"TriggerSpeed":                                 "Swift Fish",
	"TriggerSpeedAccuracy":                         "Eye in the Sky",
	"TriggerSpreading":                             "Consumable Specialist",
	"TriggerPingerReloadBuff":                      "Improved Sonar",
	"TriggerPingerSpeedBuff":                       "Enhanced Sonar",
	"SubmarineHoldSectors":                         "Sonar Operator",
	"TriggerConsSonarTimeCoeff":                    "Submarine Vigilance",
	"TriggerSeenTorpedoReload":                     "Torpedo Crew Training",
	"SubmarineTorpedoPingDamage":                   "Homing Torpedo Expert",
	"TriggerConsRudderTimeCoeff":                   "Expert Rear Gunner",
	"SubmarineBatteryCapacity":                     "Enhanced Battery Capacity",
	"SubmarineDangerAlert":                         "Enhanced Impulse Generator",
	"SubmarineBatteryBurnDown":                     "Optimized Battery",
	"SubmarineSpeed":                               "Improved Battery Efficiency",
	"SubmarineConsumablesReload":                   "Improved Consumables",
	"SubmarineConsumablesDuration":                 "Extended Consumables",
	"TriggerBurnGmReload":                          "Furious",
	"ArmamentReloadSubmarine":                      "Submarine Adrenaline Rush",
}

// SkillDisplayName resolves an internal skill identifier to its display name.
func SkillDisplayName(internal string) string {
	if name, ok := skillDisplayNames[internal]; ok {
		return name
	}
	return internal
}

// crewFor finds the crew record referenced by a player's crewParams.
func crewFor(hidden models.HiddenState, player *models.HiddenPlayer) *models.HiddenCrew {
	if player == nil || len(player.CrewParams) == 0 {
		return nil
	}
	crewID := player.CrewParams[0]
	if crew, ok := hidden.Crews[crewID]; ok {
		return crew
	}
	for _, crew := range hidden.Crews {
		if crew.CrewID == crewID {
			return crew
		}
	}
	return nil
}

// captainSkills resolves a player's learned skills. learned_skills is keyed by
// ship class, and the captain carries a sub-list for every class they can
// command; only the sub-list for the ship the player actually sailed is
// correct. Resolution is by ship class, never a positional fallback: picking
// the first non-empty list yields a plausible-looking but wrong build.
func captainSkills(hidden models.HiddenState, player *models.HiddenPlayer, class models.ShipClass) []string {
	crew := crewFor(hidden, player)
	if crew == nil || class == "" {
		return nil
	}
	internals, ok := crew.LearnedSkills[string(class)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(internals))
	for _, s := range internals {
		out = append(out, SkillDisplayName(s))
	}
	return out
}
