// Package util holds small generic helpers shared by the oxitop packages.
package util

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
// A nil src stays nil when cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if src == nil && cloneSize == 0 {
		return nil
	}
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// CloneFunc deep-copies src by applying fn to every element.
func CloneFunc[T any](src []T, fn func(T) T) []T {
	if src == nil {
		return nil
	}
	clone := make([]T, len(src))
	for i, v := range src {
		clone[i] = fn(v)
	}

	return clone
}

// Dedup returns the elements of src in order, keeping the first occurrence
// of each.
func Dedup[T comparable](src []T) []T {
	seen := make(map[T]struct{}, len(src))
	out := make([]T, 0, len(src))
	for _, v := range src {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
