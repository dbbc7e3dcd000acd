package core

import "errors"

var (
	// ErrFrameTooShort is returned when a payload is shorter than MinFrameLength.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrUnrecognizedIdentifier is returned when an identifier is not part of a decoder's message set.
	ErrUnrecognizedIdentifier = errors.New("unrecognized identifier")

	// ErrOutOfRange is returned when a decoded physical value fails its plausibility bound.
	ErrOutOfRange = errors.New("value out of range")

	// ErrPinnedMismatch is returned when a frame does not belong to the manually selected decoder.
	ErrPinnedMismatch = errors.New("frame does not belong to the pinned protocol")

	ErrNilDecoder      = errors.New("decoder is nil")
	ErrUnknownVendor   = errors.New("unknown vendor")
	ErrUnknownBaudrate = errors.New("unknown baudrate")
)
