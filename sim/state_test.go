package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnChargesGauge(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState(cfg)
	st.LeftGauge = 50

	u, err := st.Spawn(SideLeft, "Fire_vizard", DefaultRoster(), cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), u.ID)
	assert.Equal(t, 100.0, u.X)
	assert.Equal(t, 30.0, st.LeftGauge)
	assert.Len(t, st.Units, 1)

	u2, err := st.Spawn(SideLeft, "Fire_vizard", DefaultRoster(), cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), u2.ID)
}

func TestSpawnRejections(t *testing.T) {
	cfg := DefaultConfig()
	roster := DefaultRoster()

	t.Run("unknown type", func(t *testing.T) {
		st := NewState(cfg)
		st.RightGauge = 100
		_, err := st.Spawn(SideRight, "Dragon", roster, cfg)
		assert.ErrorIs(t, err, ErrUnknownUnitType)
		assert.Equal(t, 100.0, st.RightGauge)
		assert.Empty(t, st.Units)
	})

	t.Run("insufficient gauge", func(t *testing.T) {
		st := NewState(cfg)
		st.RightGauge = cfg.SpawnCost - 1
		_, err := st.Spawn(SideRight, "Lightning_Mage", roster, cfg)
		assert.ErrorIs(t, err, ErrInsufficientGauge)
		assert.Equal(t, cfg.SpawnCost-1, st.RightGauge)
	})

	t.Run("roster full", func(t *testing.T) {
		st := NewState(cfg)
		st.RightGauge = cfg.MaxGauge * 100
		for i := 0; i < cfg.PerSide(); i++ {
			_, err := st.Spawn(SideRight, "Lightning_Mage", roster, cfg)
			require.NoError(t, err)
		}
		before := st.RightGauge
		_, err := st.Spawn(SideRight, "Lightning_Mage", roster, cfg)
		assert.ErrorIs(t, err, ErrRosterFull)
		assert.Equal(t, before, st.RightGauge)
	})

	t.Run("match over", func(t *testing.T) {
		st := NewState(cfg)
		st.LeftGauge = 100
		st.Outcome = OutcomeDraw
		_, err := st.Spawn(SideLeft, "Fire_vizard", roster, cfg)
		assert.ErrorIs(t, err, ErrMatchOver)
	})
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	st := NewState(cfg)
	st.LeftGauge = 40
	_, err := st.Spawn(SideLeft, "Fire_vizard", DefaultRoster(), cfg)
	require.NoError(t, err)

	cp := st.Clone()
	cp.Units[0].HP = 1
	cp.Left.HP = 5

	assert.Equal(t, 100.0, st.Units[0].HP)
	assert.Equal(t, cfg.CastleHP, st.Left.HP)
}

func TestBaseStage(t *testing.T) {
	b := NewBase(SideRight, DefaultConfig())
	assert.Equal(t, 1340.0, b.X)
	assert.Equal(t, StageFull, b.Stage())
	b.TakeDamage(600)
	assert.Equal(t, StageHalf, b.Stage())
	b.TakeDamage(5000)
	assert.Equal(t, 0.0, b.HP)
	assert.Equal(t, StageDestroyed, b.Stage())
	assert.False(t, b.IsValidTarget())
}
