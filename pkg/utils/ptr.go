package utils

// DiffPtr reports whether two optional values differ.
func DiffPtr[T comparable](oldVal, newVal *T) bool {
	if oldVal == nil && newVal == nil {
		return false
	}
	if oldVal == nil || newVal == nil {
		return true
	}
	return *oldVal != *newVal
}

func ToPtr[T any](v T) *T {
	return &v
}

// SafeDeref returns the zero value for nil.
func SafeDeref[T any](ptr *T) (v T) {
	if ptr != nil {
		v = *ptr
	}
	return v
}
