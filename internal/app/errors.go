package app

import "errors"

var (
	// ErrAccessDenied is returned when the presented API key matches no
	// account. The message is shown to end users verbatim.
	ErrAccessDenied = errors.New("Доступ запрещен: неверный API ключ")

	// ErrUserNotFound is returned when a user lookup misses. It is a normal
	// outcome, not a failure, and handlers map it to a structured 404 body.
	ErrUserNotFound = errors.New("User not found")

	ErrNameRequired   = errors.New("name is required")
	ErrAPIKeyRequired = errors.New("api key is required")
	ErrKeyTaken       = errors.New("api key already registered")

	ErrTweetTextRequired = errors.New("tweet text is required")
	ErrTweetNotFound     = errors.New("tweet not found")
	ErrMediaNotFound     = errors.New("media not found")
	ErrEmptyFile         = errors.New("uploaded file is empty")

	ErrAlreadyLiked = errors.New("tweet already liked")
	ErrLikeNotFound = errors.New("like not found")

	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrFollowNotFound   = errors.New("follow relation not found")
)
