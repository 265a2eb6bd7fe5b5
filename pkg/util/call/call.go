package call

// Call is a deferred unit of work that can fail
type Call func() error

// Perform runs the calls in order, short-circuiting on the first failure
func Perform(calls ...Call) error {
	for _, c := range calls {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// WithArg defers a single-argument call
func WithArg[Arg any](fn func(Arg) error, arg Arg) Call {
	return func() error {
		return fn(arg)
	}
}

// WithArgs defers a two-argument call
func WithArgs[Arg1, Arg2 any](
	fn func(Arg1, Arg2) error, arg1 Arg1, arg2 Arg2,
) Call {
	return func() error {
		return fn(arg1, arg2)
	}
}
