package domain

import "errors"

var (
	// ErrIO marks file read/write failures of the message store or config.
	ErrIO = errors.New("io error")
	// ErrSerialization marks malformed or unencodable store content.
	ErrSerialization = errors.New("serialization error")
	// ErrPlatform marks a failed outbound call to the chat platform.
	ErrPlatform = errors.New("platform error")
	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("not found")
)
