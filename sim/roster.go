package sim

import "sort"

type UnitSpec struct {
	HP           float64            `mapstructure:"hp" json:"hp"`
	AttackRange  float64            `mapstructure:"attackRange" json:"attack_range"`
	AttackDamage float64            `mapstructure:"attackDamage" json:"attack_damage"`
	Skills       map[string]float64 `mapstructure:"skills" json:"skills"`
	// AreaSkill names the skill that hits every enemy in range instead of one target.
	AreaSkill string `mapstructure:"areaSkill" json:"area_skill,omitempty"`
}

// Roster maps a unit type identifier to its combat stats.
type Roster map[string]UnitSpec

func DefaultRoster() Roster {
	return Roster{
		"Fire_vizard": {
			HP: 100, AttackRange: 150, AttackDamage: 10,
			Skills:    map[string]float64{"skill1": 15, "skill2": 25},
			AreaSkill: "skill2",
		},
		"Lightning_Mage": {
			HP: 90, AttackRange: 200, AttackDamage: 12,
			Skills: map[string]float64{"skill1": 18, "skill2": 22},
		},
		"Wanderer_Magician": {
			HP: 110, AttackRange: 120, AttackDamage: 9,
			Skills: map[string]float64{"skill1": 14, "skill2": 20},
		},
	}
}

func (r Roster) Has(typ string) bool {
	_, ok := r[typ]
	return ok
}

// Types returns the unit types in a stable order so key bindings stay put.
func (r Roster) Types() []string {
	typs := make([]string, 0, len(r))
	for typ := range r {
		typs = append(typs, typ)
	}
	sort.Strings(typs)
	return typs
}

func (spec UnitSpec) skillNames() []string {
	names := make([]string, 0, len(spec.Skills))
	for name := range spec.Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
