//go:build !windows

package keyboard

// NewSystem has no OS backend outside Windows.
func NewSystem(_ Options) (*Keyboard, error) {
	return nil, ErrUnsupportedPlatform
}
