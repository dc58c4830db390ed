package sim

import "errors"

var (
	ErrUnknownUnitType   = errors.New("unknown unit type")
	ErrInsufficientGauge = errors.New("insufficient gauge")
	ErrRosterFull        = errors.New("roster at capacity")
	ErrMatchOver         = errors.New("match is over")
)

// State is the authoritative match state. Only the tick loop mutates it.
type State struct {
	Units        []*Unit
	Left, Right  *Base
	LeftGauge    float64
	RightGauge   float64
	Elapsed      float64
	TimeLimit    float64
	Outcome      Outcome
	CameraOffset float64
	NextID       uint32
}

func NewState(cfg Config) *State {
	return &State{
		Left:      NewBase(SideLeft, cfg),
		Right:     NewBase(SideRight, cfg),
		TimeLimit: cfg.TimeLimit.Seconds(),
		NextID:    1,
	}
}

func (st *State) Base(side Side) *Base {
	if side == SideRight {
		return st.Right
	}
	return st.Left
}

func (st *State) Gauge(side Side) float64 {
	if side == SideRight {
		return st.RightGauge
	}
	return st.LeftGauge
}

func (st *State) SetGauge(side Side, v float64) {
	if side == SideRight {
		st.RightGauge = v
		return
	}
	st.LeftGauge = v
}

func (st *State) Unit(id uint32) *Unit {
	for _, u := range st.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (st *State) CountSide(side Side) int {
	n := 0
	for _, u := range st.Units {
		if u.Side == side {
			n++
		}
	}
	return n
}

// Spawn validates and applies a spawn, charging the side's gauge.
func (st *State) Spawn(side Side, typ string, roster Roster, cfg Config) (*Unit, error) {
	if st.Outcome.Over() {
		return nil, ErrMatchOver
	}
	spec, ok := roster[typ]
	if !ok {
		return nil, ErrUnknownUnitType
	}
	if st.Gauge(side) < cfg.SpawnCost {
		return nil, ErrInsufficientGauge
	}
	if st.CountSide(side) >= cfg.PerSide() {
		return nil, ErrRosterFull
	}

	x := 100.0
	if side == SideRight {
		x = cfg.FieldWidth - 140
	}
	u := newUnit(st.NextID, side, typ, spec, x, cfg.GroundY)
	st.NextID++
	st.Units = append(st.Units, u)
	st.SetGauge(side, st.Gauge(side)-cfg.SpawnCost)
	return u, nil
}

// Clone deep-copies everything that is serialized. Presentation handles are shared.
func (st *State) Clone() *State {
	cp := *st
	if st.Left != nil {
		l := *st.Left
		cp.Left = &l
	}
	if st.Right != nil {
		r := *st.Right
		cp.Right = &r
	}
	cp.Units = make([]*Unit, len(st.Units))
	for i, u := range st.Units {
		uc := *u
		uc.target = nil
		cp.Units[i] = &uc
	}
	return &cp
}

func (st *State) resolveOutcome() Outcome {
	switch {
	case st.Left.Destroyed():
		return OutcomeRightWins
	case st.Right.Destroyed():
		return OutcomeLeftWins
	case st.Elapsed < st.TimeLimit:
		return OutcomeNone
	case st.Left.HP > st.Right.HP:
		return OutcomeLeftWins
	case st.Right.HP > st.Left.HP:
		return OutcomeRightWins
	}
	return OutcomeDraw
}
