package chainstate

// Result is a value read from chain state or an explicit unavailable marker.
// Callers must check Get before using the value.
type Result[T any] struct {
	value T
	ok    bool
}

// Available wraps a successfully read value.
func Available[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Unavailable marks a read that reverted, failed or timed out.
func Unavailable[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the value and whether it was available.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// IsAvailable reports whether the read succeeded.
func (r Result[T]) IsAvailable() bool {
	return r.ok
}
