package fit

// lazy holds a derived value that is computed on first use and kept
// until invalidate is called. Errors are cached as well.
type lazy[T any] struct {
	val   T
	err   error
	valid bool
}

func (l *lazy[T]) get(compute func() (T, error)) (T, error) {
	if !l.valid {
		l.val, l.err = compute()
		l.valid = true
	}
	return l.val, l.err
}

func (l *lazy[T]) invalidate() {
	var zero T
	l.val = zero
	l.err = nil
	l.valid = false
}
