package sim

import "math/rand/v2"

// Bot is a SpawnDecider that spends gauge on random roster units, holding
// back Reserve so it does not drain the gauge the moment it refills.
type Bot struct {
	cfg     Config
	types   []string
	rng     *rand.Rand
	Reserve float64
}

func NewBot(cfg Config, roster Roster, seed uint64) *Bot {
	return &Bot{
		cfg:   cfg,
		types: roster.Types(),
		rng:   rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (b *Bot) Decide(st *State, side Side) []SpawnCommand {
	if len(b.types) == 0 || st.Outcome.Over() {
		return nil
	}
	if st.Gauge(side) < b.cfg.SpawnCost+b.Reserve || st.CountSide(side) >= b.cfg.PerSide() {
		return nil
	}
	return []SpawnCommand{{Side: side, Type: b.types[b.rng.IntN(len(b.types))]}}
}
