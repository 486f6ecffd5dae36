//go:build !darwin

package autolock

// Set is unavailable off macOS.
func Set(directory string, state State) error {
	return ErrUnsupported
}

// Get is unavailable off macOS.
func Get(directory string) (State, error) {
	return State{}, ErrUnsupported
}
