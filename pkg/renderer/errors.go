package renderer

import "errors"

var (
	ErrRenderFault = errors.New("renderer: uncaught fault in render manager")
	ErrNoScene     = errors.New("renderer: no scene name")
	ErrNoChunks    = errors.New("renderer: no chunk provider")
)
