package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"microblog/internal/apikey"
	"microblog/pkg/domain"
	"microblog/pkg/storage"
	"microblog/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	HashIterations int

	// Store and Objects override the defaults, mainly for tests.
	Store   store.Store
	Objects storage.ObjectStore
}

// App is the core application service wiring storage, media and the API key
// credential transform together. Handlers open a session per request and
// pass it into each method.
type App struct {
	store   store.Store
	hasher  *apikey.Hasher
	objects storage.ObjectStore
}

// New constructs the application with database storage.
func New(cfg Config) (*App, error) {
	hasher := apikey.NewHasher(cfg.HashIterations)

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, hasher)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	return &App{
		store:   dataStore,
		hasher:  hasher,
		objects: cfg.Objects,
	}, nil
}

// OpenSession borrows a request-scoped database session. The caller must
// close it exactly once when the request finishes.
func (a *App) OpenSession(ctx context.Context) (store.Session, error) {
	return a.store.OpenSession(ctx)
}

// AuthenticateKey resolves the account owning the presented plaintext API
// key. An unknown or empty key yields ErrAccessDenied; the lookup compares
// stored credential forms, so the plaintext never reaches the database.
func (a *App) AuthenticateKey(ctx context.Context, s store.Session, key string) (domain.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.User{}, ErrAccessDenied
	}
	hash, err := a.hasher.HashContext(ctx, key)
	if err != nil {
		return domain.User{}, err
	}
	user, ok, err := s.Users().ByAPIKeyHash(hash)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup by api key: %w", err)
	}
	if !ok {
		return domain.User{}, ErrAccessDenied
	}
	return user, nil
}

// CurrentUser loads the authenticated user's full profile by stored
// credential, with tweets and both follow directions. A missing row is
// ErrUserNotFound, not a failure.
func (a *App) CurrentUser(s store.Session, apiKeyHash string) (domain.User, error) {
	user, ok, err := s.Users().ByAPIKeyHashWithRelations(apiKeyHash)
	if err != nil {
		return domain.User{}, fmt.Errorf("load current user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UserByID loads any user's profile with relations.
func (a *App) UserByID(s store.Session, id uint) (domain.User, error) {
	user, ok, err := s.Users().ByIDWithRelations(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user %d: %w", id, err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns all accounts.
func (a *App) ListUsers(s store.Session) ([]domain.User, error) {
	return s.Users().List()
}

// CreateUser registers an account. The plaintext key is hashed inside the
// store layer; a credential collision surfaces as ErrKeyTaken.
func (a *App) CreateUser(ctx context.Context, s store.Session, name, key string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, ErrNameRequired
	}
	if strings.TrimSpace(key) == "" {
		return domain.User{}, ErrAPIKeyRequired
	}
	user, err := s.Users().Create(ctx, name, key)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrKeyTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Feed returns every tweet, newest first, with authors, attachments and
// likes loaded.
func (a *App) Feed(s store.Session) ([]domain.Tweet, error) {
	return s.Tweets().Feed()
}

// AddTweet stores a tweet for author and binds the previously uploaded
// media rows to it. Unknown media IDs abort with ErrMediaNotFound before
// the tweet is visible with dangling attachments.
func (a *App) AddTweet(s store.Session, authorID uint, text string, mediaIDs []uint) (domain.Tweet, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Tweet{}, ErrTweetTextRequired
	}
	for _, id := range mediaIDs {
		_, ok, err := s.Media().ByID(id)
		if err != nil {
			return domain.Tweet{}, fmt.Errorf("check media %d: %w", id, err)
		}
		if !ok {
			return domain.Tweet{}, ErrMediaNotFound
		}
	}
	tweet, err := s.Tweets().Insert(domain.Tweet{Text: text, AuthorID: authorID})
	if err != nil {
		return domain.Tweet{}, fmt.Errorf("insert tweet: %w", err)
	}
	for _, id := range mediaIDs {
		if err := s.Media().Attach(id, tweet.ID); err != nil {
			return domain.Tweet{}, fmt.Errorf("attach media %d: %w", id, err)
		}
	}
	return tweet, nil
}

// DeleteTweet removes a tweet when userID is its author. The outcome
// distinguishes deleted, not found and not owned so the handler can map
// each to its own status code. Object store blobs of the attachments are
// removed best effort after the database delete commits.
func (a *App) DeleteTweet(ctx context.Context, s store.Session, tweetID, userID uint) (domain.DeleteOutcome, error) {
	tweet, ok, err := s.Tweets().ByID(tweetID)
	if err != nil {
		return domain.NotFound, fmt.Errorf("load tweet %d: %w", tweetID, err)
	}
	if !ok {
		return domain.NotFound, nil
	}

	outcome, err := s.Tweets().DeleteOwned(tweetID, userID)
	if err != nil {
		return domain.NotFound, fmt.Errorf("delete tweet %d: %w", tweetID, err)
	}
	if outcome == domain.Deleted && a.objects != nil {
		for _, m := range tweet.Attachments {
			if m.StorageKey != "" {
				_ = a.objects.Delete(ctx, m.StorageKey)
			}
		}
	}
	return outcome, nil
}

// LikeTweet records a like. Liking twice is ErrAlreadyLiked; the database
// enforces the uniqueness, so concurrent duplicates lose cleanly.
func (a *App) LikeTweet(s store.Session, tweetID, userID uint) error {
	if _, ok, err := s.Tweets().ByID(tweetID); err != nil {
		return fmt.Errorf("load tweet %d: %w", tweetID, err)
	} else if !ok {
		return ErrTweetNotFound
	}
	if err := s.Likes().Insert(tweetID, userID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyLiked
		}
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

// UnlikeTweet removes a like; removing a like that was never set is
// ErrLikeNotFound.
func (a *App) UnlikeTweet(s store.Session, tweetID, userID uint) error {
	if _, ok, err := s.Tweets().ByID(tweetID); err != nil {
		return fmt.Errorf("load tweet %d: %w", tweetID, err)
	} else if !ok {
		return ErrTweetNotFound
	}
	_, ok, err := s.Likes().Find(tweetID, userID)
	if err != nil {
		return fmt.Errorf("find like: %w", err)
	}
	if !ok {
		return ErrLikeNotFound
	}
	if err := s.Likes().Delete(tweetID, userID); err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// FollowUser records a follower -> target edge.
func (a *App) FollowUser(s store.Session, followerID, targetID uint) error {
	if followerID == targetID {
		return ErrSelfFollow
	}
	if _, ok, err := s.Users().ByID(targetID); err != nil {
		return fmt.Errorf("load user %d: %w", targetID, err)
	} else if !ok {
		return ErrUserNotFound
	}
	if err := s.Follows().Insert(followerID, targetID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrAlreadyFollowing
		}
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

// UnfollowUser removes the edge; a missing edge is ErrFollowNotFound.
func (a *App) UnfollowUser(s store.Session, followerID, targetID uint) error {
	if _, ok, err := s.Users().ByID(targetID); err != nil {
		return fmt.Errorf("load user %d: %w", targetID, err)
	} else if !ok {
		return ErrUserNotFound
	}
	ok, err := s.Follows().Exists(followerID, targetID)
	if err != nil {
		return fmt.Errorf("check follow: %w", err)
	}
	if !ok {
		return ErrFollowNotFound
	}
	if err := s.Follows().Delete(followerID, targetID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// UploadMedia stores an uploaded file and returns its row. With an object
// store configured the bytes go there under a random key; otherwise they
// live in the media row itself.
func (a *App) UploadMedia(ctx context.Context, s store.Session, fileName, contentType string, body []byte) (domain.Media, error) {
	if len(body) == 0 {
		return domain.Media{}, ErrEmptyFile
	}
	media := domain.Media{
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
	}
	if a.objects != nil {
		key := uuid.NewString() + filepath.Ext(fileName)
		if err := a.objects.Put(ctx, key, body, contentType); err != nil {
			return domain.Media{}, fmt.Errorf("store media object: %w", err)
		}
		media.StorageKey = key
	} else {
		media.Body = body
	}
	stored, err := s.Media().Insert(media)
	if err != nil {
		if a.objects != nil && media.StorageKey != "" {
			_ = a.objects.Delete(ctx, media.StorageKey)
		}
		return domain.Media{}, fmt.Errorf("insert media: %w", err)
	}
	return stored, nil
}

// GetMedia returns the media row and its bytes, fetching from the object
// store when the row only carries a storage key.
func (a *App) GetMedia(ctx context.Context, s store.Session, id uint) (domain.Media, []byte, error) {
	media, ok, err := s.Media().ByID(id)
	if err != nil {
		return domain.Media{}, nil, fmt.Errorf("load media %d: %w", id, err)
	}
	if !ok {
		return domain.Media{}, nil, ErrMediaNotFound
	}
	if media.StorageKey != "" && a.objects != nil {
		body, err := a.objects.Get(ctx, media.StorageKey)
		if err != nil {
			return domain.Media{}, nil, fmt.Errorf("fetch media object: %w", err)
		}
		return media, body, nil
	}
	return media, media.Body, nil
}
