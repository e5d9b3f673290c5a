package store

import (
	"context"
	"errors"

	"microblog/pkg/domain"
)

// ErrDuplicate reports a uniqueness violation: a second user with the same
// stored credential, a repeated like, or a repeated follow edge.
var ErrDuplicate = errors.New("duplicate record")

// Store hands out request-scoped sessions. Opening a session borrows from the
// shared connection pool; callers own the session until Close.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Session is the per-request database handle. It must be closed exactly once
// when the request finishes, on success and on error paths alike.
type Session interface {
	Users() UserDAO
	Tweets() TweetDAO
	Likes() LikeDAO
	Media() MediaDAO
	Follows() FollowDAO
	Close() error
}

// UserDAO persists accounts. Lookups return (zero, false, nil) when no row
// matches so callers can branch without error handling.
type UserDAO interface {
	// Create hashes the plaintext key and inserts the user inside a
	// transaction. A stored-credential collision returns ErrDuplicate;
	// other database errors roll back and propagate unchanged.
	Create(ctx context.Context, name, plaintextKey string) (domain.User, error)
	ByAPIKeyHash(hash string) (domain.User, bool, error)
	// ByAPIKeyHashWithRelations eagerly loads authored tweets and both
	// follow directions alongside the user.
	ByAPIKeyHashWithRelations(hash string) (domain.User, bool, error)
	ByID(id uint) (domain.User, bool, error)
	ByIDWithRelations(id uint) (domain.User, bool, error)
	List() ([]domain.User, error)
}

type TweetDAO interface {
	Insert(t domain.Tweet) (domain.Tweet, error)
	ByID(id uint) (domain.Tweet, bool, error)
	// Feed returns all tweets, newest first, with author, attachments and
	// likes (with liker profiles) loaded.
	Feed() ([]domain.Tweet, error)
	// DeleteOwned loads the tweet with its attachments, verifies the author
	// and deletes it together with dependent rows in one transaction.
	DeleteOwned(tweetID, userID uint) (domain.DeleteOutcome, error)
}

type LikeDAO interface {
	// Insert records a like; a repeat per (user, tweet) returns ErrDuplicate.
	Insert(tweetID, userID uint) error
	Find(tweetID, userID uint) (domain.Like, bool, error)
	Delete(tweetID, userID uint) error
}

type MediaDAO interface {
	Insert(m domain.Media) (domain.Media, error)
	ByID(id uint) (domain.Media, bool, error)
	// Attach binds an uploaded media row to a tweet.
	Attach(mediaID, tweetID uint) error
}

type FollowDAO interface {
	// Insert records a follower -> followed edge; repeats return ErrDuplicate.
	Insert(followerID, followedID uint) error
	Exists(followerID, followedID uint) (bool, error)
	Delete(followerID, followedID uint) error
}
