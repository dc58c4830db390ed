package lanenet

type indexedEnv struct {
	ix  uint64
	env Envelope
}

type addResult uint8

const (
	addDelivered addResult = iota
	addBuffered
	addDuplicate
	addDropped
)

func (r addResult) String() string {
	switch r {
	case addDelivered:
		return "delivered"
	case addBuffered:
		return "buffered"
	case addDuplicate:
		return "duplicate"
	case addDropped:
		return "dropped"
	}
	return "unknown"
}

// sorter releases sequenced envelopes in order. Everything below expected has
// already been delivered; discretes holds the arrivals beyond a gap, sorted.
type sorter struct {
	expected  uint64
	discretes []indexedEnv
	limit     int
	onAppend  func([]indexedEnv)
}

func newSorter(limit int, onAppend func([]indexedEnv)) *sorter {
	if limit <= 0 {
		limit = DefaultReorderLimit
	}
	return &sorter{limit: limit, onAppend: onAppend}
}

func (str *sorter) TryAdd(ix uint64, env Envelope) addResult {
	if ix < str.expected {
		return addDuplicate
	}
	if ix == str.expected {
		str.flush(indexedEnv{ix, env})
		return addDelivered
	}

	i := 0
	for ; i < len(str.discretes); i++ {
		if ix == str.discretes[i].ix {
			return addDuplicate
		}
		if ix < str.discretes[i].ix {
			break
		}
	}
	if len(str.discretes) >= str.limit {
		return addDropped
	}
	str.discretes = append(str.discretes, indexedEnv{})
	copy(str.discretes[i+1:], str.discretes[i:])
	str.discretes[i] = indexedEnv{ix, env}
	return addBuffered
}

// flush delivers head followed by every buffered envelope contiguous with it.
func (str *sorter) flush(head indexedEnv) {
	run := []indexedEnv{head}
	last := head.ix
	i := 0
	for ; i < len(str.discretes) && str.discretes[i].ix == last+1; i++ {
		run = append(run, str.discretes[i])
		last = str.discretes[i].ix
	}
	str.discretes = str.discretes[i:]
	if len(str.discretes) == 0 {
		str.discretes = nil
	}
	str.expected = last + 1
	if str.onAppend != nil {
		str.onAppend(run)
	}
}

// SkipGap gives up on the missing range and delivers from the lowest
// buffered sequence onward. It returns how many sequences were abandoned.
func (str *sorter) SkipGap() uint64 {
	if len(str.discretes) == 0 {
		return 0
	}
	head := str.discretes[0]
	skipped := head.ix - str.expected
	str.discretes = str.discretes[1:]
	str.flush(head)
	return skipped
}

func (str *sorter) Has(ix uint64) bool {
	if ix < str.expected {
		return true
	}
	for _, d := range str.discretes {
		if ix == d.ix {
			return true
		}
	}
	return false
}

func (str *sorter) Expected() uint64 {
	return str.expected
}

func (str *sorter) Len() int {
	return len(str.discretes)
}
