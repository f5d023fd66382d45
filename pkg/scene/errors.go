package scene

import "errors"

var (
	ErrSceneFormat  = errors.New("scene: malformed scene description")
	ErrDumpMismatch = errors.New("scene: dump does not match canvas")
)
