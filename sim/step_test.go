package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(c *Combat, st *State, seconds float64, spawns []SpawnCommand) Result {
	const dt = 1.0 / 60
	var res Result
	first := true
	for st.Elapsed < seconds && !st.Outcome.Over() {
		var cmds []SpawnCommand
		if first {
			cmds = spawns
			first = false
		}
		res = c.Step(st, dt, st.Elapsed, cmds)
	}
	return res
}

func TestStepAccumulatesGauge(t *testing.T) {
	cfg := DefaultConfig()
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)

	c.Step(st, 1, 0, nil)
	assert.InDelta(t, 4.0, st.LeftGauge, 1e-9)
	assert.InDelta(t, 4.0, st.RightGauge, 1e-9)
	assert.InDelta(t, 1.0, st.Elapsed, 1e-9)

	c.Step(st, 1000, 1, nil)
	assert.Equal(t, cfg.MaxGauge, st.LeftGauge)
}

func TestStepRejectsInvalidSpawns(t *testing.T) {
	cfg := DefaultConfig()
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)
	st.RightGauge = 100

	res := c.Step(st, 0, 0, []SpawnCommand{{SideRight, "nope"}, {SideRight, "Fire_vizard"}})
	require.Len(t, res.Rejected, 1)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrUnknownUnitType)
	require.Len(t, res.Spawned, 1)
	assert.Equal(t, 80.0, st.RightGauge)
}

func TestUnitsWalkTowardEnemy(t *testing.T) {
	cfg := DefaultConfig()
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)
	st.LeftGauge = 20

	run(c, st, 1, []SpawnCommand{{SideLeft, "Wanderer_Magician"}})
	require.Len(t, st.Units, 1)
	assert.Greater(t, st.Units[0].X, 100.0)
}

func TestUnitsFightAndDie(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)
	st.LeftGauge = 20
	st.RightGauge = 20

	res := run(c, st, 60, []SpawnCommand{{SideLeft, "Fire_vizard"}, {SideRight, "Wanderer_Magician"}})
	assert.False(t, res.Outcome.Over())
	assert.Less(t, len(st.Units), 2, "one of the units should have died and been removed")
}

func TestTimeoutComparesCastleHP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeLimit = time.Second
	c := NewCombat(cfg, DefaultRoster())

	st := NewState(cfg)
	st.Right.HP = 900
	res := c.Step(st, 2, 0, nil)
	assert.Equal(t, OutcomeLeftWins, res.Outcome)

	st = NewState(cfg)
	res = c.Step(st, 2, 0, nil)
	assert.Equal(t, OutcomeDraw, res.Outcome)

	// finished matches stay frozen
	elapsed := st.Elapsed
	res = c.Step(st, 5, 2, []SpawnCommand{{SideLeft, "Fire_vizard"}})
	assert.Equal(t, elapsed, st.Elapsed)
	require.Len(t, res.Rejected, 1)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrMatchOver)
}

func TestDestroyedBaseEndsMatch(t *testing.T) {
	cfg := DefaultConfig()
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)
	st.Left.TakeDamage(cfg.CastleHP)

	res := c.Step(st, 0.01, 0, nil)
	assert.Equal(t, OutcomeRightWins, res.Outcome)
	assert.Equal(t, "Right Team Wins!", res.Outcome.String())
}

func TestUnitLeavesPastFarBoundary(t *testing.T) {
	cfg := DefaultConfig()
	c := NewCombat(cfg, DefaultRoster())
	st := NewState(cfg)
	st.LeftGauge = 20
	u, err := st.Spawn(SideLeft, "Wanderer_Magician", DefaultRoster(), cfg)
	require.NoError(t, err)

	// nothing left to stop it: the right castle no longer counts as a target
	st.Right.TakeDamage(cfg.CastleHP)
	u.X = cfg.FieldWidth - 50

	c.Step(st, 1, 0, nil)
	assert.Greater(t, u.X, cfg.FieldWidth)
	assert.Empty(t, st.Units)
}
