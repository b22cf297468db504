package render

import "errors"

var (
	ErrInvalidLayout = errors.New("invalid panel layout")
	ErrUnknownPreset = errors.New("unknown layout preset")
)
