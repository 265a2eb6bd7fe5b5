package util

// Set is an unordered collection of unique comparable values
type Set[K comparable] map[K]struct{}

// SetOf builds a set from the given values, dropping duplicates
func SetOf[K comparable](values ...K) Set[K] {
	res := make(Set[K], len(values))
	for _, v := range values {
		res.Add(v)
	}
	return res
}

// Add inserts the value into the set
func (s Set[K]) Add(v K) {
	s[v] = struct{}{}
}

// Remove deletes the value from the set
func (s Set[K]) Remove(v K) {
	delete(s, v)
}

// Contains reports whether the value is present
func (s Set[K]) Contains(v K) bool {
	_, ok := s[v]
	return ok
}
