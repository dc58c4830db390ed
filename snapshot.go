package lanenet

import (
	"errors"
	"fmt"
	"slices"

	"github.com/yulon/go-lanenet/sim"
)

var (
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrStaleDelta        = errors.New("delta computed against another full snapshot")
)

// AssetTable supplies the presentation handle for a unit type on one side.
// It is owned by whatever renders the match and never crosses the wire.
type AssetTable interface {
	Lookup(unitType string, side sim.Side) (interface{}, bool)
}

type AssetMap map[string]map[sim.Side]interface{}

func (m AssetMap) Lookup(unitType string, side sim.Side) (interface{}, bool) {
	bySide, ok := m[unitType]
	if !ok {
		return nil, false
	}
	h, ok := bySide[side]
	return h, ok
}

type unitWire struct {
	ID         uint32   `cbor:"id"`
	X          float64  `cbor:"x"`
	Y          float64  `cbor:"y"`
	Side       string   `cbor:"sd"`
	Type       string   `cbor:"ut"`
	HP         float64  `cbor:"hp"`
	MaxHP      float64  `cbor:"mhp"`
	Action     string   `cbor:"a,omitempty"`
	Frame      int      `cbor:"f,omitempty"`
	VelX       float64  `cbor:"vx,omitempty"`
	VelY       float64  `cbor:"vy,omitempty"`
	InProgress bool     `cbor:"ip,omitempty"`
	TimeScale  *float64 `cbor:"tsc,omitempty"`
	Dead       bool     `cbor:"dd,omitempty"`
	DeathDone  bool     `cbor:"dn,omitempty"`
}

type baseWire struct {
	X     float64 `cbor:"x"`
	Y     float64 `cbor:"y"`
	Side  string  `cbor:"sd"`
	HP    float64 `cbor:"hp"`
	MaxHP float64 `cbor:"mhp"`
	W     float64 `cbor:"w"`
	H     float64 `cbor:"h"`
	// hp ratios at which the castle changes damage stage
	Half      *float64 `cbor:"th,omitempty"`
	Destroyed *float64 `cbor:"td,omitempty"`
}

// snapshotWire is the payload of both game_state and delta_state. In a
// delta, absent fields are unchanged, Units holds only new or changed units
// and Removed lists units gone since the reference snapshot. Base is the
// sequence number of that reference, when the sender knows it.
type snapshotWire struct {
	Full       bool       `cbor:"full,omitempty"`
	Base       *uint64    `cbor:"bs,omitempty"`
	Units      []unitWire `cbor:"u,omitempty"`
	Removed    []uint32   `cbor:"rm,omitempty"`
	Left       *baseWire  `cbor:"lb,omitempty"`
	Right      *baseWire  `cbor:"rb,omitempty"`
	LeftGauge  *float64   `cbor:"lg,omitempty"`
	RightGauge *float64   `cbor:"rg,omitempty"`
	Elapsed    *float64   `cbor:"el,omitempty"`
	TimeLimit  *float64   `cbor:"tl,omitempty"`
	Outcome    *uint8     `cbor:"oc,omitempty"`
	Camera     *float64   `cbor:"cam,omitempty"`
	NextID     *uint32    `cbor:"nid,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

func toUnitWire(u *sim.Unit) unitWire {
	return unitWire{
		ID:         u.ID,
		X:          u.X,
		Y:          u.Y,
		Side:       u.Side.String(),
		Type:       u.Type,
		HP:         u.HP,
		MaxHP:      u.MaxHP,
		Action:     u.Action,
		Frame:      u.Frame,
		VelX:       u.VelX,
		VelY:       u.VelY,
		InProgress: u.ActionInProgress,
		TimeScale:  ptr(u.TimeScale),
		Dead:       u.Dead,
		DeathDone:  u.DeathDone,
	}
}

func toBaseWire(b *sim.Base) *baseWire {
	if b == nil {
		return nil
	}
	return &baseWire{
		X:         b.X,
		Y:         b.Y,
		Side:      b.Side.String(),
		HP:        b.HP,
		MaxHP:     b.MaxHP,
		W:         b.W,
		H:         b.H,
		Half:      ptr(b.FullThreshold),
		Destroyed: ptr(b.DestroyedThreshold),
	}
}

func fullWire(st *sim.State) *snapshotWire {
	sw := &snapshotWire{
		Full:       true,
		Units:      make([]unitWire, 0, len(st.Units)),
		Left:       toBaseWire(st.Left),
		Right:      toBaseWire(st.Right),
		LeftGauge:  ptr(st.LeftGauge),
		RightGauge: ptr(st.RightGauge),
		Elapsed:    ptr(st.Elapsed),
		TimeLimit:  ptr(st.TimeLimit),
		Outcome:    ptr(uint8(st.Outcome)),
		Camera:     ptr(st.CameraOffset),
		NextID:     ptr(st.NextID),
	}
	for _, u := range st.Units {
		sw.Units = append(sw.Units, toUnitWire(u))
	}
	return sw
}

// Serialize encodes the whole state. Presentation handles are left out.
func Serialize(st *sim.State) ([]byte, error) {
	return encMode.Marshal(fullWire(st))
}

func diffFloat(prev, cur float64) *float64 {
	if prev == cur {
		return nil
	}
	return ptr(cur)
}

func unitWireEqual(a, b unitWire) bool {
	ts := func(p *float64) float64 {
		if p == nil {
			return 1
		}
		return *p
	}
	if ts(a.TimeScale) != ts(b.TimeScale) {
		return false
	}
	a.TimeScale, b.TimeScale = nil, nil
	return a == b
}

func baseWireEqual(a, b *baseWire) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.X == b.X && a.Y == b.Y && a.Side == b.Side && a.HP == b.HP && a.MaxHP == b.MaxHP &&
		a.W == b.W && a.H == b.H && *a.Half == *b.Half && *a.Destroyed == *b.Destroyed
}

// SerializeDelta encodes what changed from prev to cur. A nil prev yields a
// full snapshot.
func SerializeDelta(prev, cur *sim.State) ([]byte, error) {
	if prev == nil {
		return Serialize(cur)
	}
	return encMode.Marshal(deltaWire(prev, cur))
}

// SerializeDeltaFrom is SerializeDelta tagged with base, the sequence number
// the full snapshot prev went out with. MergeFrom refuses it on any other base.
func SerializeDeltaFrom(prev, cur *sim.State, base uint64) ([]byte, error) {
	if prev == nil {
		return Serialize(cur)
	}
	sw := deltaWire(prev, cur)
	sw.Base = &base
	return encMode.Marshal(sw)
}

func deltaWire(prev, cur *sim.State) *snapshotWire {
	sw := &snapshotWire{
		LeftGauge:  diffFloat(prev.LeftGauge, cur.LeftGauge),
		RightGauge: diffFloat(prev.RightGauge, cur.RightGauge),
		Elapsed:    diffFloat(prev.Elapsed, cur.Elapsed),
		TimeLimit:  diffFloat(prev.TimeLimit, cur.TimeLimit),
		Camera:     diffFloat(prev.CameraOffset, cur.CameraOffset),
	}
	if prev.Outcome != cur.Outcome {
		sw.Outcome = ptr(uint8(cur.Outcome))
	}
	if prev.NextID != cur.NextID {
		sw.NextID = ptr(cur.NextID)
	}
	if lb := toBaseWire(cur.Left); !baseWireEqual(toBaseWire(prev.Left), lb) {
		sw.Left = lb
	}
	if rb := toBaseWire(cur.Right); !baseWireEqual(toBaseWire(prev.Right), rb) {
		sw.Right = rb
	}

	before := make(map[uint32]unitWire, len(prev.Units))
	for _, u := range prev.Units {
		before[u.ID] = toUnitWire(u)
	}
	for _, u := range cur.Units {
		uw := toUnitWire(u)
		if old, ok := before[u.ID]; ok {
			delete(before, u.ID)
			if unitWireEqual(old, uw) {
				continue
			}
		}
		sw.Units = append(sw.Units, uw)
	}
	for id := range before {
		sw.Removed = append(sw.Removed, id)
	}
	slices.Sort(sw.Removed)
	return sw
}

func decodeSnapshot(b []byte) (*snapshotWire, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSnapshot)
	}
	var sw snapshotWire
	if err := decMode.Unmarshal(b, &sw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return &sw, nil
}

func parseWireSide(s string) (sim.Side, error) {
	side, err := sim.ParseSide(s)
	if err != nil {
		return side, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return side, nil
}

func (uw *unitWire) apply(u *sim.Unit, assets AssetTable) error {
	if uw.Type == "" {
		return fmt.Errorf("%w: unit %d has no type", ErrMalformedSnapshot, uw.ID)
	}
	side, err := parseWireSide(uw.Side)
	if err != nil {
		return err
	}
	if u.Type != uw.Type || u.Side != side || u.Presentation == nil {
		u.Presentation = nil
		if assets != nil {
			u.Presentation, _ = assets.Lookup(uw.Type, side)
		}
	}
	u.ID = uw.ID
	u.X, u.Y = uw.X, uw.Y
	u.Side = side
	u.Type = uw.Type
	u.HP, u.MaxHP = uw.HP, uw.MaxHP
	u.Action = uw.Action
	if u.Action == "" {
		u.Action = sim.ActionIdle
	}
	u.Frame = uw.Frame
	u.VelX, u.VelY = uw.VelX, uw.VelY
	u.ActionInProgress = uw.InProgress
	u.TimeScale = 1
	if uw.TimeScale != nil {
		u.TimeScale = *uw.TimeScale
	}
	u.Dead = uw.Dead
	u.DeathDone = uw.DeathDone
	return nil
}

func (bw *baseWire) apply(b *sim.Base) error {
	side, err := parseWireSide(bw.Side)
	if err != nil {
		return err
	}
	b.X, b.Y = bw.X, bw.Y
	b.Side = side
	b.HP, b.MaxHP = bw.HP, bw.MaxHP
	b.W, b.H = bw.W, bw.H
	if bw.Half != nil {
		b.FullThreshold = *bw.Half
	}
	if bw.Destroyed != nil {
		b.DestroyedThreshold = *bw.Destroyed
	}
	return nil
}

func emptyState() *sim.State {
	return sim.NewState(sim.DefaultConfig())
}

// Deserialize rebuilds a state from a full snapshot, reattaching presentation
// handles from assets. Missing fields take their defaults.
func Deserialize(b []byte, assets AssetTable) (*sim.State, error) {
	sw, err := decodeSnapshot(b)
	if err != nil {
		return nil, err
	}
	st := emptyState()
	if err = sw.apply(st, assets); err != nil {
		return nil, err
	}
	return st, nil
}

// Merge applies a full or delta snapshot onto dst. dst is left untouched if
// the snapshot is malformed.
func Merge(dst *sim.State, b []byte, assets AssetTable) error {
	sw, err := decodeSnapshot(b)
	if err != nil {
		return err
	}
	return sw.merge(dst, assets)
}

// MergeFrom is Merge for a receiver whose dst was built from the full
// snapshot sent with sequence number base. A delta tagged with another base
// fails with ErrStaleDelta; an untagged one is merged as is.
func MergeFrom(dst *sim.State, b []byte, assets AssetTable, base uint64) error {
	sw, err := decodeSnapshot(b)
	if err != nil {
		return err
	}
	if !sw.Full && sw.Base != nil && *sw.Base != base {
		return fmt.Errorf("%w: built on %d, have %d", ErrStaleDelta, *sw.Base, base)
	}
	return sw.merge(dst, assets)
}

func (sw *snapshotWire) merge(dst *sim.State, assets AssetTable) error {
	var st *sim.State
	if sw.Full {
		st = emptyState()
	} else {
		st = dst.Clone()
	}
	if err := sw.apply(st, assets); err != nil {
		return err
	}
	*dst = *st
	return nil
}

func (sw *snapshotWire) apply(st *sim.State, assets AssetTable) error {
	if sw.Left != nil {
		if err := sw.Left.apply(st.Left); err != nil {
			return err
		}
	}
	if sw.Right != nil {
		if err := sw.Right.apply(st.Right); err != nil {
			return err
		}
	}
	if sw.LeftGauge != nil {
		st.LeftGauge = *sw.LeftGauge
	}
	if sw.RightGauge != nil {
		st.RightGauge = *sw.RightGauge
	}
	if sw.Elapsed != nil {
		st.Elapsed = *sw.Elapsed
	}
	if sw.TimeLimit != nil {
		st.TimeLimit = *sw.TimeLimit
	}
	if sw.Outcome != nil {
		if *sw.Outcome > uint8(sim.OutcomeDraw) {
			return fmt.Errorf("%w: outcome %d", ErrMalformedSnapshot, *sw.Outcome)
		}
		st.Outcome = sim.Outcome(*sw.Outcome)
	}
	if sw.Camera != nil {
		st.CameraOffset = *sw.Camera
	}

	if len(sw.Removed) > 0 {
		st.Units = slices.DeleteFunc(st.Units, func(u *sim.Unit) bool {
			return slices.Contains(sw.Removed, u.ID)
		})
	}
	for i := range sw.Units {
		uw := &sw.Units[i]
		u := st.Unit(uw.ID)
		if u == nil {
			u = &sim.Unit{}
			if err := uw.apply(u, assets); err != nil {
				return err
			}
			st.Units = append(st.Units, u)
			continue
		}
		if err := uw.apply(u, assets); err != nil {
			return err
		}
	}

	if sw.NextID != nil {
		st.NextID = *sw.NextID
	}
	for _, u := range st.Units {
		if u.ID >= st.NextID {
			st.NextID = u.ID + 1
		}
	}
	return nil
}
