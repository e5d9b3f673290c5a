package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Domain types stay free of ORM tags;
// converters live in gorm_store.go.
type UserModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:50;not null;index"`
	APIKey    string `gorm:"column:api_key;uniqueIndex;not null"`
	Tweets    []TweetModel `gorm:"foreignKey:AuthorID"`
	Followers []UserModel  `gorm:"many2many:followers;foreignKey:ID;joinForeignKey:FollowedID;References:ID;joinReferences:FollowerID"`
	Following []UserModel  `gorm:"many2many:followers;foreignKey:ID;joinForeignKey:FollowerID;References:ID;joinReferences:FollowedID"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type TweetModel struct {
	ID          uint       `gorm:"primaryKey"`
	Text        string     `gorm:"type:text;not null"`
	Timestamp   time.Time  `gorm:"not null"`
	AuthorID    uint       `gorm:"not null;index"`
	Author      *UserModel `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Attachments []MediaModel `gorm:"foreignKey:TweetID"`
	Likes       []LikeModel  `gorm:"foreignKey:TweetID"`
}

func (TweetModel) TableName() string { return "tweets" }

type LikeModel struct {
	ID      uint       `gorm:"primaryKey"`
	TweetID uint       `gorm:"not null;uniqueIndex:idx_likes_tweet_user"`
	UserID  uint       `gorm:"not null;uniqueIndex:idx_likes_tweet_user"`
	User    *UserModel `gorm:"foreignKey:UserID"`
}

func (LikeModel) TableName() string { return "likes" }

// MediaModel keeps the body in a bytea column for database-backed storage;
// StorageKey points into the object store instead when one is configured.
// Meta carries content type and size as JSONB.
type MediaModel struct {
	ID         uint   `gorm:"primaryKey"`
	FileName   string `gorm:"not null"`
	FileBody   []byte `gorm:"type:bytea"`
	StorageKey string
	Meta       datatypes.JSON `gorm:"type:jsonb"`
	TweetID    *uint          `gorm:"index"`
}

func (MediaModel) TableName() string { return "media" }

// FollowModel is the directed follower -> followed edge. The composite
// primary key prevents duplicate edges.
type FollowModel struct {
	FollowerID uint `gorm:"primaryKey;autoIncrement:false"`
	FollowedID uint `gorm:"primaryKey;autoIncrement:false"`
}

func (FollowModel) TableName() string { return "followers" }
