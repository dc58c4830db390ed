package sim

const (
	ActionIdle   = "Idle"
	ActionWalk   = "Walk"
	ActionRun    = "Run"
	ActionAttack = "Attack"
	ActionSkill  = "Skill"
	ActionDead   = "Dead"
)

// frames per action for the headless animation clock
var actionFrames = map[string]int{
	ActionIdle:   6,
	ActionWalk:   8,
	ActionRun:    8,
	ActionAttack: 6,
	ActionSkill:  8,
	ActionDead:   5,
}

const (
	unitSize       = 40
	walkSpeed      = 100
	runSpeed       = 200
	frameDuration  = 0.15
	attackCooldown = 0.5
	MaxTimeScale   = 10
)

type Unit struct {
	ID               uint32
	X, Y             float64
	Side             Side
	Type             string
	HP               float64
	MaxHP            float64
	Action           string
	Frame            int
	VelX, VelY       float64
	ActionInProgress bool
	TimeScale        float64
	Dead             bool
	DeathDone        bool

	// Presentation is the local asset handle; it never crosses the wire.
	Presentation interface{}

	target        Entity
	attackKind    string
	damageApplied bool
	lastAttack    float64
	frameTimer    float64
}

func newUnit(id uint32, side Side, typ string, spec UnitSpec, x, y float64) *Unit {
	return &Unit{
		ID:        id,
		X:         x,
		Y:         y,
		Side:      side,
		Type:      typ,
		HP:        spec.HP,
		MaxHP:     spec.HP,
		Action:    ActionIdle,
		TimeScale: 1,
	}
}

func (u *Unit) BoundingBox() Rect {
	return Rect{u.X, u.Y, unitSize, unitSize}
}

func (u *Unit) TakeDamage(amount float64) {
	u.HP -= amount
	if u.HP <= 0 {
		u.HP = 0
		u.Dead = true
		u.VelX, u.VelY = 0, 0
	}
	if u.Action == ActionWalk || u.Action == ActionRun {
		u.ActionInProgress = false
	}
}

func (u *Unit) IsValidTarget() bool {
	return !u.Dead && u.HP > 0
}

// Gone reports whether the unit should leave the state on the next step.
func (u *Unit) Gone(fieldWidth float64) bool {
	return u.DeathDone || u.X < -unitSize || u.X > fieldWidth
}

func (u *Unit) clampTimeScale() {
	if u.TimeScale < 1 {
		u.TimeScale = 1
	}
	if u.TimeScale > MaxTimeScale {
		u.TimeScale = MaxTimeScale
	}
}

func (u *Unit) setAction(action, kind string) {
	u.Action = action
	u.attackKind = kind
	u.Frame = 0
	u.frameTimer = 0
	u.damageApplied = false
	u.ActionInProgress = true
}

func (u *Unit) frames() int {
	if n, ok := actionFrames[u.Action]; ok {
		return n
	}
	return actionFrames[ActionWalk]
}

func (u *Unit) damageFrame() int {
	return u.frames() / 2
}

func (u *Unit) isAttacking() bool {
	return u.Action == ActionAttack || u.Action == ActionSkill
}
