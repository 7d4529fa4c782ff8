// Package set provides a minimal generic set.
package set

type Set[T comparable] map[T]struct{}

// From returns a set containing all elements of sl.
func From[T comparable](sl []T) Set[T] {
	result := make(Set[T], len(sl))

	for _, elem := range sl {
		result[elem] = struct{}{}
	}

	return result
}

func (s Set[T]) Contains(elem T) bool {
	_, exist := s[elem]
	return exist
}

// Intersection returns a new set with the elements that exist in s and other.
func (s Set[T]) Intersection(other Set[T]) Set[T] {
	small, big := s, other
	if len(small) > len(big) {
		small, big = big, small
	}

	result := Set[T]{}
	for elem := range small {
		if big.Contains(elem) {
			result[elem] = struct{}{}
		}
	}

	return result
}

// Slice returns the elements of the set in undefined order.
func (s Set[T]) Slice() []T {
	res := make([]T, 0, len(s))

	for k := range s {
		res = append(res, k)
	}

	return res
}
