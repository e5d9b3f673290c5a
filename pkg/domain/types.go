package domain

import "time"

// DeleteOutcome distinguishes the possible results of an ownership-checked
// delete. Not-found and not-owned are separate outcomes so handlers can pick
// their own status codes.
type DeleteOutcome int

const (
	Deleted DeleteOutcome = iota
	NotFound
	NotOwned
)

func (o DeleteOutcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	case NotOwned:
		return "not_owned"
	default:
		return "unknown"
	}
}

// User is an account identified by a hashed API key. APIKeyHash holds the
// stored credential form "<iterations>:<hex>"; the plaintext key is never
// persisted.
type User struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	Tweets     []Tweet   `json:"tweets,omitempty"`
	Followers  []Profile `json:"followers,omitempty"`
	Following  []Profile `json:"following,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Profile is the short user form embedded in follower lists and tweets.
type Profile struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type Tweet struct {
	ID          uint      `json:"id"`
	Text        string    `json:"content"`
	AuthorID    uint      `json:"-"`
	Author      Profile   `json:"author"`
	Attachments []Media   `json:"attachments"`
	Likes       []Like    `json:"likes"`
	Timestamp   time.Time `json:"timestamp"`
}

type Like struct {
	ID      uint    `json:"-"`
	TweetID uint    `json:"-"`
	UserID  uint    `json:"user_id"`
	User    Profile `json:"user"`
}

// Media is a binary attachment uploaded ahead of tweet creation and bound to
// a tweet afterwards. Body is populated for database-backed storage;
// StorageKey is set instead when an object store holds the bytes.
type Media struct {
	ID          uint   `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"-"`
	SizeBytes   int64  `json:"-"`
	Body        []byte `json:"-"`
	StorageKey  string `json:"-"`
	TweetID     *uint  `json:"-"`
}
