package sim

import (
	"math"
	"math/rand/v2"
)

type SpawnCommand struct {
	Side Side
	Type string
}

type Rejection struct {
	Command SpawnCommand
	Err     error
}

type Result struct {
	Outcome  Outcome
	Spawned  []*Unit
	Rejected []Rejection
}

// Stepper advances a State by dt seconds. now is the match clock in seconds.
type Stepper interface {
	Step(st *State, dt, now float64, spawns []SpawnCommand) Result
}

// SpawnDecider picks spawns for a locally controlled side (bots, scripted opponents).
type SpawnDecider interface {
	Decide(st *State, side Side) []SpawnCommand
}

type Combat struct {
	cfg    Config
	roster Roster
	rng    *rand.Rand
}

func NewCombat(cfg Config, roster Roster) *Combat {
	return &Combat{
		cfg:    cfg,
		roster: roster,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

func (c *Combat) Step(st *State, dt, now float64, spawns []SpawnCommand) Result {
	var res Result
	if st.Outcome.Over() {
		res.Outcome = st.Outcome
		for _, cmd := range spawns {
			res.Rejected = append(res.Rejected, Rejection{cmd, ErrMatchOver})
		}
		return res
	}

	st.Elapsed += dt
	st.LeftGauge = math.Min(st.LeftGauge+c.cfg.GaugeRate*dt, c.cfg.MaxGauge)
	st.RightGauge = math.Min(st.RightGauge+c.cfg.GaugeRate*dt, c.cfg.MaxGauge)

	for _, cmd := range spawns {
		u, err := st.Spawn(cmd.Side, cmd.Type, c.roster, c.cfg)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{cmd, err})
			continue
		}
		res.Spawned = append(res.Spawned, u)
	}

	for _, u := range st.Units {
		c.updateUnit(st, u, dt, now)
	}

	live := st.Units[:0]
	for _, u := range st.Units {
		if u.Gone(c.cfg.FieldWidth) {
			continue
		}
		live = append(live, u)
	}
	for i := len(live); i < len(st.Units); i++ {
		st.Units[i] = nil
	}
	st.Units = live

	st.Outcome = st.resolveOutcome()
	res.Outcome = st.Outcome
	return res
}

func (c *Combat) updateUnit(st *State, u *Unit, dt, now float64) {
	u.clampTimeScale()
	if u.HP <= 0 {
		c.updateDeath(u, dt)
		return
	}

	c.advanceFrame(u, dt)

	enemies := c.enemiesOf(st, u)
	if !u.ActionInProgress {
		c.chooseAction(u, enemies, now)
	}

	switch {
	case u.Action == ActionWalk || u.Action == ActionRun:
		c.move(u, enemies, dt)
	case u.isAttacking():
		u.VelX = 0
		if !u.damageApplied && u.Frame == u.damageFrame() {
			c.applyDamage(u, enemies)
			u.damageApplied = true
		}
	default:
		u.VelX = 0
	}
}

func (c *Combat) updateDeath(u *Unit, dt float64) {
	if !u.Dead {
		u.Dead = true
		u.VelX, u.VelY = 0, 0
	}
	if u.DeathDone {
		return
	}
	if u.Action != ActionDead {
		u.setAction(ActionDead, "")
		return
	}
	u.frameTimer += dt * u.TimeScale
	if u.frameTimer >= frameDuration {
		u.frameTimer = 0
		u.Frame++
		if u.Frame >= u.frames() {
			u.Frame = u.frames() - 1
			u.DeathDone = true
			u.ActionInProgress = false
		}
	}
}

func (c *Combat) advanceFrame(u *Unit, dt float64) {
	u.frameTimer += dt * u.TimeScale
	if u.frameTimer < frameDuration {
		return
	}
	u.frameTimer = 0
	u.Frame = (u.Frame + 1) % u.frames()
	if u.Frame == 0 {
		u.ActionInProgress = false
		u.attackKind = ""
		u.damageApplied = false
	}
}

func (c *Combat) enemiesOf(st *State, u *Unit) []Entity {
	var out []Entity
	for _, o := range st.Units {
		if o.Side != u.Side && o.IsValidTarget() {
			out = append(out, o)
		}
	}
	if b := st.Base(u.Side.Opponent()); b.IsValidTarget() {
		out = append(out, b)
	}
	return out
}

func ahead(u *Unit, e Entity) bool {
	ex := e.BoundingBox().X
	if u.Side == SideLeft {
		return ex > u.X
	}
	return ex < u.X
}

func (c *Combat) chooseAction(u *Unit, enemies []Entity, now float64) {
	var closest Entity
	closestDist := math.Inf(1)
	for _, e := range enemies {
		if !ahead(u, e) {
			continue
		}
		if d := distance(u, e); d < closestDist {
			closest, closestDist = e, d
		}
	}

	u.target = closest
	spec := c.roster[u.Type]
	switch {
	case closest == nil:
		u.setAction(ActionWalk, "")
	case closestDist <= spec.AttackRange:
		if now-u.lastAttack < attackCooldown/u.TimeScale {
			u.setAction(ActionIdle, "")
			return
		}
		u.lastAttack = now
		if names := spec.skillNames(); len(names) > 0 && c.rng.Float64() < 0.3 {
			u.setAction(ActionSkill, names[c.rng.IntN(len(names))])
		} else {
			u.setAction(ActionAttack, "")
		}
	case c.rng.Float64() < 0.8:
		u.setAction(ActionWalk, "")
	default:
		u.setAction(ActionRun, "")
	}
}

func (c *Combat) move(u *Unit, enemies []Entity, dt float64) {
	speed := float64(walkSpeed)
	if u.Action == ActionRun {
		speed = runSpeed
	}
	u.VelX = speed * u.Side.Dir()
	nx := u.X + u.VelX*dt

	next := Rect{nx, u.Y, unitSize, unitSize}
	for _, e := range enemies {
		if next.Overlaps(e.BoundingBox()) {
			u.VelX = 0
			u.setAction(ActionIdle, "")
			return
		}
	}
	u.X = nx
}

func (c *Combat) applyDamage(u *Unit, enemies []Entity) {
	spec := c.roster[u.Type]
	dmg := spec.AttackDamage
	if u.Action == ActionSkill {
		if d, ok := spec.Skills[u.attackKind]; ok {
			dmg = d
		}
	}

	if u.Action == ActionSkill && u.attackKind != "" && u.attackKind == spec.AreaSkill {
		for _, e := range enemies {
			if ahead(u, e) && distance(u, e) <= spec.AttackRange {
				e.TakeDamage(dmg)
			}
		}
		return
	}
	if u.target != nil && u.target.IsValidTarget() {
		u.target.TakeDamage(dmg)
	}
}
