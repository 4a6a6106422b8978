package detection

type verdict uint8

const (
	verdictPending verdict = iota
	verdictFalse
	verdictTrue
)

// Scratch carries the state of a single evaluation pass - the event under
// inspection plus memoized selection verdicts. A fresh scratch is allocated
// per Eval call, so a loaded tree stays immutable and safe for concurrent
// use across any number of goroutines.
type Scratch struct {
	event Event
	set   *selectionSet
	memo  []verdict
}

func newScratch(set *selectionSet, e Event) *Scratch {
	return &Scratch{
		event: e,
		set:   set,
		memo:  make([]verdict, set.len()),
	}
}

// selection resolves one selection verdict, evaluating it against the event
// on first reference and serving the memo afterwards
func (s *Scratch) selection(id int) bool {
	switch s.memo[id] {
	case verdictTrue:
		return true
	case verdictFalse:
		return false
	}
	match := s.set.items[id].Match(s.event)
	if match {
		s.memo[id] = verdictTrue
	} else {
		s.memo[id] = verdictFalse
	}
	return match
}

// matched lists the names of selections that evaluated true during this
// pass, in selection set order
func (s *Scratch) matched() []string {
	tx := make([]string, 0, len(s.memo))
	for id, v := range s.memo {
		if v == verdictTrue {
			tx = append(tx, s.set.names[id])
		}
	}
	return tx
}
