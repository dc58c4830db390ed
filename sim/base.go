package sim

type BaseStage uint8

const (
	StageFull BaseStage = iota
	StageHalf
	StageDestroyed
)

type Base struct {
	X, Y  float64
	Side  Side
	HP    float64
	MaxHP float64
	W, H  float64
	// damage-stage thresholds as hp ratios
	FullThreshold      float64
	DestroyedThreshold float64
}

const baseSize = 120

func NewBase(side Side, cfg Config) *Base {
	b := &Base{
		Y:                  cfg.GroundY,
		Side:               side,
		HP:                 cfg.CastleHP,
		MaxHP:              cfg.CastleHP,
		W:                  baseSize,
		H:                  baseSize,
		FullThreshold:      0.5,
		DestroyedThreshold: 0,
	}
	if side == SideRight {
		b.X = cfg.FieldWidth - 100
	}
	return b
}

func (b *Base) BoundingBox() Rect {
	return Rect{b.X, b.Y, b.W, b.H}
}

func (b *Base) TakeDamage(amount float64) {
	b.HP -= amount
	if b.HP < 0 {
		b.HP = 0
	}
}

func (b *Base) IsValidTarget() bool {
	return !b.Destroyed()
}

func (b *Base) Destroyed() bool {
	return b.HP <= 0
}

func (b *Base) Stage() BaseStage {
	ratio := 0.0
	if b.MaxHP > 0 {
		ratio = b.HP / b.MaxHP
	}
	switch {
	case ratio > b.FullThreshold:
		return StageFull
	case ratio > b.DestroyedThreshold:
		return StageHalf
	}
	return StageDestroyed
}
