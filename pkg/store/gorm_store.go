package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"microblog/internal/apikey"
	"microblog/pkg/domain"
)

const migrateLockID int64 = 82308230

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db     *gorm.DB
	hasher *apikey.Hasher
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so replicated processes do not race each other at startup.
func NewGormStore(dsn string, hasher *apikey.Hasher) (*GormStore, error) {
	if hasher == nil {
		hasher = apikey.NewHasher(apikey.DefaultIterations)
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.SetupJoinTable(&UserModel{}, "Followers", &FollowModel{}); err != nil {
			return fmt.Errorf("setup followers join table: %w", err)
		}
		if err := tx.SetupJoinTable(&UserModel{}, "Following", &FollowModel{}); err != nil {
			return fmt.Errorf("setup following join table: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &TweetModel{}, &MediaModel{}, &LikeModel{}, &FollowModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, hasher: hasher}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// OpenSession binds a request context to a fresh GORM session. The underlying
// connection is borrowed from the pool per statement and returned on Close.
func (s *GormStore) OpenSession(ctx context.Context) (Session, error) {
	return &gormSession{
		db:     s.db.WithContext(ctx).Session(&gorm.Session{}),
		hasher: s.hasher,
	}, nil
}

type gormSession struct {
	db     *gorm.DB
	hasher *apikey.Hasher
}

func (s *gormSession) Users() UserDAO     { return gormUserDAO{dao[UserModel]{s.db}, s.hasher} }
func (s *gormSession) Tweets() TweetDAO   { return gormTweetDAO{dao[TweetModel]{s.db}} }
func (s *gormSession) Likes() LikeDAO     { return gormLikeDAO{dao[LikeModel]{s.db}} }
func (s *gormSession) Media() MediaDAO    { return gormMediaDAO{dao[MediaModel]{s.db}} }
func (s *gormSession) Follows() FollowDAO { return gormFollowDAO{dao[FollowModel]{s.db}} }

// Close releases the session. Connections are pool-managed, so there is
// nothing to tear down beyond dropping the handle.
func (s *gormSession) Close() error {
	s.db = nil
	return nil
}

type gormUserDAO struct {
	dao[UserModel]
	hasher *apikey.Hasher
}

func (d gormUserDAO) Create(ctx context.Context, name, plaintextKey string) (domain.User, error) {
	hashed, err := d.hasher.HashContext(ctx, plaintextKey)
	if err != nil {
		return domain.User{}, err
	}
	model := UserModel{Name: name, APIKey: hashed, CreatedAt: time.Now().UTC()}
	if err := d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model).Error
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, ErrDuplicate
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func (d gormUserDAO) ByAPIKeyHash(hash string) (domain.User, bool, error) {
	m, ok, err := d.one(map[string]any{"api_key": hash})
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return userFromModel(*m), true, nil
}

func (d gormUserDAO) ByAPIKeyHashWithRelations(hash string) (domain.User, bool, error) {
	m, ok, err := d.one(map[string]any{"api_key": hash}, "Tweets", "Followers", "Following")
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return userFromModel(*m), true, nil
}

func (d gormUserDAO) ByID(id uint) (domain.User, bool, error) {
	m, ok, err := d.byID(id)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return userFromModel(*m), true, nil
}

func (d gormUserDAO) ByIDWithRelations(id uint) (domain.User, bool, error) {
	m, ok, err := d.byID(id, "Tweets", "Followers", "Following")
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return userFromModel(*m), true, nil
}

func (d gormUserDAO) List() ([]domain.User, error) {
	models, err := d.all(nil, "id ASC")
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

type gormTweetDAO struct {
	dao[TweetModel]
}

func (d gormTweetDAO) Insert(t domain.Tweet) (domain.Tweet, error) {
	model := TweetModel{
		Text:      t.Text,
		AuthorID:  t.AuthorID,
		Timestamp: t.Timestamp,
	}
	if model.Timestamp.IsZero() {
		model.Timestamp = time.Now().UTC()
	}
	if err := d.insert(&model); err != nil {
		return domain.Tweet{}, err
	}
	return tweetFromModel(model), nil
}

func (d gormTweetDAO) ByID(id uint) (domain.Tweet, bool, error) {
	m, ok, err := d.byID(id, "Attachments")
	if err != nil || !ok {
		return domain.Tweet{}, false, err
	}
	return tweetFromModel(*m), true, nil
}

func (d gormTweetDAO) Feed() ([]domain.Tweet, error) {
	models, err := d.all(nil, "id DESC", "Author", "Attachments", "Likes", "Likes.User")
	if err != nil {
		return nil, err
	}
	tweets := make([]domain.Tweet, 0, len(models))
	for _, m := range models {
		tweets = append(tweets, tweetFromModel(m))
	}
	return tweets, nil
}

func (d gormTweetDAO) DeleteOwned(tweetID, userID uint) (domain.DeleteOutcome, error) {
	outcome := domain.NotFound
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var m TweetModel
		if err := tx.Preload("Attachments").First(&m, "id = ?", tweetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = domain.NotFound
				return nil
			}
			return err
		}
		if m.AuthorID != userID {
			outcome = domain.NotOwned
			return nil
		}
		if err := tx.Delete(&LikeModel{}, "tweet_id = ?", tweetID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&MediaModel{}, "tweet_id = ?", tweetID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&TweetModel{}, "id = ?", tweetID).Error; err != nil {
			return err
		}
		outcome = domain.Deleted
		return nil
	})
	if err != nil {
		return domain.NotFound, err
	}
	return outcome, nil
}

type gormLikeDAO struct {
	dao[LikeModel]
}

func (d gormLikeDAO) Insert(tweetID, userID uint) error {
	return d.insert(&LikeModel{TweetID: tweetID, UserID: userID})
}

func (d gormLikeDAO) Find(tweetID, userID uint) (domain.Like, bool, error) {
	m, ok, err := d.one(map[string]any{"tweet_id": tweetID, "user_id": userID})
	if err != nil || !ok {
		return domain.Like{}, false, err
	}
	return likeFromModel(*m), true, nil
}

func (d gormLikeDAO) Delete(tweetID, userID uint) error {
	return d.db.Where("tweet_id = ? AND user_id = ?", tweetID, userID).Delete(&LikeModel{}).Error
}

type gormMediaDAO struct {
	dao[MediaModel]
}

type mediaMeta struct {
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

func (d gormMediaDAO) Insert(m domain.Media) (domain.Media, error) {
	model := mediaToModel(m)
	if err := d.insert(&model); err != nil {
		return domain.Media{}, err
	}
	return mediaFromModel(model), nil
}

func (d gormMediaDAO) ByID(id uint) (domain.Media, bool, error) {
	m, ok, err := d.byID(id)
	if err != nil || !ok {
		return domain.Media{}, false, err
	}
	return mediaFromModel(*m), true, nil
}

func (d gormMediaDAO) Attach(mediaID, tweetID uint) error {
	return d.db.Model(&MediaModel{}).Where("id = ?", mediaID).Update("tweet_id", tweetID).Error
}

type gormFollowDAO struct {
	dao[FollowModel]
}

func (d gormFollowDAO) Insert(followerID, followedID uint) error {
	return d.insert(&FollowModel{FollowerID: followerID, FollowedID: followedID})
}

func (d gormFollowDAO) Exists(followerID, followedID uint) (bool, error) {
	var count int64
	err := d.db.Model(&FollowModel{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d gormFollowDAO) Delete(followerID, followedID uint) error {
	return d.db.Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&FollowModel{}).Error
}

func userFromModel(m UserModel) domain.User {
	u := domain.User{
		ID:         m.ID,
		Name:       m.Name,
		APIKeyHash: m.APIKey,
		CreatedAt:  m.CreatedAt,
	}
	for _, t := range m.Tweets {
		u.Tweets = append(u.Tweets, tweetFromModel(t))
	}
	for _, f := range m.Followers {
		u.Followers = append(u.Followers, domain.Profile{ID: f.ID, Name: f.Name})
	}
	for _, f := range m.Following {
		u.Following = append(u.Following, domain.Profile{ID: f.ID, Name: f.Name})
	}
	return u
}

func tweetFromModel(m TweetModel) domain.Tweet {
	t := domain.Tweet{
		ID:        m.ID,
		Text:      m.Text,
		AuthorID:  m.AuthorID,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		t.Author = domain.Profile{ID: m.Author.ID, Name: m.Author.Name}
	}
	for _, a := range m.Attachments {
		t.Attachments = append(t.Attachments, mediaFromModel(a))
	}
	for _, l := range m.Likes {
		t.Likes = append(t.Likes, likeFromModel(l))
	}
	return t
}

func likeFromModel(m LikeModel) domain.Like {
	l := domain.Like{ID: m.ID, TweetID: m.TweetID, UserID: m.UserID}
	if m.User != nil {
		l.User = domain.Profile{ID: m.User.ID, Name: m.User.Name}
	}
	return l
}

func mediaToModel(m domain.Media) MediaModel {
	meta, _ := json.Marshal(mediaMeta{ContentType: m.ContentType, SizeBytes: m.SizeBytes})
	return MediaModel{
		ID:         m.ID,
		FileName:   m.FileName,
		FileBody:   m.Body,
		StorageKey: m.StorageKey,
		Meta:       datatypes.JSON(meta),
		TweetID:    m.TweetID,
	}
}

func mediaFromModel(m MediaModel) domain.Media {
	var meta mediaMeta
	if len(m.Meta) > 0 {
		_ = json.Unmarshal(m.Meta, &meta)
	}
	return domain.Media{
		ID:          m.ID,
		FileName:    m.FileName,
		Body:        m.FileBody,
		StorageKey:  m.StorageKey,
		ContentType: meta.ContentType,
		SizeBytes:   meta.SizeBytes,
		TweetID:     m.TweetID,
	}
}
