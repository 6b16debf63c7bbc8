package types

// Signal is a provider output that may be absent. An unavailable signal
// carries the reason it could not be produced instead of a zero value.
type Signal[T any] struct {
	value     T
	available bool
	reason    string
}

// Available wraps a present value
func Available[T any](v T) Signal[T] {
	return Signal[T]{value: v, available: true}
}

// Unavailable records why no value exists
func Unavailable[T any](reason string) Signal[T] {
	return Signal[T]{reason: reason}
}

// Get returns the value and whether it is present
func (s Signal[T]) Get() (T, bool) {
	return s.value, s.available
}

func (s Signal[T]) IsAvailable() bool { return s.available }

func (s Signal[T]) Reason() string { return s.reason }
