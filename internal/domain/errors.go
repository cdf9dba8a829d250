package domain

import "errors"

var (
	// ErrRoomNotFound is the only failure reported back to a caller.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUnauthorized is never surfaced; callers drop the request silently.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStaleUpdate marks a state whose seq is not newer than the applied one.
	ErrStaleUpdate = errors.New("stale update")
	// ErrAutoplayBlocked is returned by a media sink that refuses a programmatic play.
	ErrAutoplayBlocked = errors.New("autoplay blocked")
)
