package recommend

// runState is the per-call dedup and diversity bookkeeping.
type runState struct {
	avgLevel int
	solved   map[int]bool
	used     map[int]bool
	tagUsage map[string]int
}

func newRunState(avgLevel int, exclude []int) *runState {
	st := &runState{
		avgLevel: avgLevel,
		solved:   make(map[int]bool, len(exclude)),
		used:     map[int]bool{},
		tagUsage: map[string]int{},
	}
	for _, id := range exclude {
		st.solved[id] = true
	}
	return st
}

func (s *runState) available(id int) bool {
	return !s.solved[id] && !s.used[id]
}

func (s *runState) take(id int) {
	s.used[id] = true
}

func (s *runState) usage(tag string) int {
	return s.tagUsage[tag]
}

func (s *runState) bump(tag string) {
	s.tagUsage[tag]++
}
