package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"microblog/internal/apikey"
	"microblog/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and counts session
// opens/closes so leak checks can assert exactly-once close behavior.
type MemoryStore struct {
	mu      sync.Mutex
	hasher  *apikey.Hasher
	users   map[uint]domain.User
	byKey   map[string]uint
	tweets  map[uint]domain.Tweet
	likes   map[uint]domain.Like
	media   map[uint]domain.Media
	follows map[[2]uint]struct{}
	nextID  uint

	opens  int
	closes int

	// OpenErr, when set, is returned by OpenSession to exercise the
	// acquisition-failure path.
	OpenErr error
}

// NewMemoryStore initializes an empty in-memory store. A nil hasher gets
// the default iteration count; pass the application's hasher so both sides
// of the credential check use the same chain length.
func NewMemoryStore(hasher *apikey.Hasher) *MemoryStore {
	if hasher == nil {
		hasher = apikey.NewHasher(apikey.DefaultIterations)
	}
	return &MemoryStore{
		hasher:  hasher,
		users:   make(map[uint]domain.User),
		byKey:   make(map[string]uint),
		tweets:  make(map[uint]domain.Tweet),
		likes:   make(map[uint]domain.Like),
		media:   make(map[uint]domain.Media),
		follows: make(map[[2]uint]struct{}),
	}
}

// OpenSession yields a new session backed by the shared maps.
func (m *MemoryStore) OpenSession(_ context.Context) (Session, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.mu.Lock()
	m.opens++
	m.mu.Unlock()
	return &memSession{store: m}, nil
}

// OpenCount reports how many sessions were opened.
func (m *MemoryStore) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// CloseCount reports how many sessions were closed.
func (m *MemoryStore) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *MemoryStore) nextSeq() uint {
	m.nextID++
	return m.nextID
}

type memSession struct {
	store  *MemoryStore
	closed bool
}

func (s *memSession) Users() UserDAO     { return memUserDAO{s} }
func (s *memSession) Tweets() TweetDAO   { return memTweetDAO{s} }
func (s *memSession) Likes() LikeDAO     { return memLikeDAO{s} }
func (s *memSession) Media() MediaDAO    { return memMediaDAO{s} }
func (s *memSession) Follows() FollowDAO { return memFollowDAO{s} }

func (s *memSession) Close() error {
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	s.store.mu.Lock()
	s.store.closes++
	s.store.mu.Unlock()
	return nil
}

type memUserDAO struct{ s *memSession }

func (d memUserDAO) Create(ctx context.Context, name, plaintextKey string) (domain.User, error) {
	hashed, err := d.s.store.hasher.HashContext(ctx, plaintextKey)
	if err != nil {
		return domain.User{}, err
	}
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byKey[hashed]; taken {
		return domain.User{}, ErrDuplicate
	}
	user := domain.User{
		ID:         m.nextSeq(),
		Name:       name,
		APIKeyHash: hashed,
		CreatedAt:  time.Now().UTC(),
	}
	m.users[user.ID] = user
	m.byKey[hashed] = user.ID
	return user, nil
}

func (d memUserDAO) ByAPIKeyHash(hash string) (domain.User, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[hash]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (d memUserDAO) ByAPIKeyHashWithRelations(hash string) (domain.User, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[hash]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.userWithRelationsLocked(id), true, nil
}

func (d memUserDAO) ByID(id uint) (domain.User, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (d memUserDAO) ByIDWithRelations(id uint) (domain.User, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.User{}, false, nil
	}
	return m.userWithRelationsLocked(id), true, nil
}

func (d memUserDAO) List() ([]domain.User, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) userWithRelationsLocked(id uint) domain.User {
	u := m.users[id]
	for _, t := range m.tweets {
		if t.AuthorID == id {
			u.Tweets = append(u.Tweets, t)
		}
	}
	sort.Slice(u.Tweets, func(i, j int) bool { return u.Tweets[i].ID < u.Tweets[j].ID })
	for edge := range m.follows {
		if edge[1] == id {
			f := m.users[edge[0]]
			u.Followers = append(u.Followers, domain.Profile{ID: f.ID, Name: f.Name})
		}
		if edge[0] == id {
			f := m.users[edge[1]]
			u.Following = append(u.Following, domain.Profile{ID: f.ID, Name: f.Name})
		}
	}
	sort.Slice(u.Followers, func(i, j int) bool { return u.Followers[i].ID < u.Followers[j].ID })
	sort.Slice(u.Following, func(i, j int) bool { return u.Following[i].ID < u.Following[j].ID })
	return u
}

type memTweetDAO struct{ s *memSession }

func (d memTweetDAO) Insert(t domain.Tweet) (domain.Tweet, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextSeq()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if author, ok := m.users[t.AuthorID]; ok {
		t.Author = domain.Profile{ID: author.ID, Name: author.Name}
	}
	m.tweets[t.ID] = t
	return t, nil
}

func (d memTweetDAO) ByID(id uint) (domain.Tweet, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tweets[id]
	if !ok {
		return domain.Tweet{}, false, nil
	}
	return m.tweetWithRelationsLocked(t), true, nil
}

func (d memTweetDAO) Feed() ([]domain.Tweet, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	tweets := make([]domain.Tweet, 0, len(m.tweets))
	for _, t := range m.tweets {
		tweets = append(tweets, m.tweetWithRelationsLocked(t))
	}
	sort.Slice(tweets, func(i, j int) bool { return tweets[i].ID > tweets[j].ID })
	return tweets, nil
}

func (d memTweetDAO) DeleteOwned(tweetID, userID uint) (domain.DeleteOutcome, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tweets[tweetID]
	if !ok {
		return domain.NotFound, nil
	}
	if t.AuthorID != userID {
		return domain.NotOwned, nil
	}
	for id, l := range m.likes {
		if l.TweetID == tweetID {
			delete(m.likes, id)
		}
	}
	for id, med := range m.media {
		if med.TweetID != nil && *med.TweetID == tweetID {
			delete(m.media, id)
		}
	}
	delete(m.tweets, tweetID)
	return domain.Deleted, nil
}

func (m *MemoryStore) tweetWithRelationsLocked(t domain.Tweet) domain.Tweet {
	if author, ok := m.users[t.AuthorID]; ok {
		t.Author = domain.Profile{ID: author.ID, Name: author.Name}
	}
	t.Attachments = nil
	for _, med := range m.media {
		if med.TweetID != nil && *med.TweetID == t.ID {
			t.Attachments = append(t.Attachments, med)
		}
	}
	sort.Slice(t.Attachments, func(i, j int) bool { return t.Attachments[i].ID < t.Attachments[j].ID })
	t.Likes = nil
	for _, l := range m.likes {
		if l.TweetID == t.ID {
			if u, ok := m.users[l.UserID]; ok {
				l.User = domain.Profile{ID: u.ID, Name: u.Name}
			}
			t.Likes = append(t.Likes, l)
		}
	}
	sort.Slice(t.Likes, func(i, j int) bool { return t.Likes[i].ID < t.Likes[j].ID })
	return t
}

type memLikeDAO struct{ s *memSession }

func (d memLikeDAO) Insert(tweetID, userID uint) error {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.likes {
		if l.TweetID == tweetID && l.UserID == userID {
			return ErrDuplicate
		}
	}
	id := m.nextSeq()
	m.likes[id] = domain.Like{ID: id, TweetID: tweetID, UserID: userID}
	return nil
}

func (d memLikeDAO) Find(tweetID, userID uint) (domain.Like, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.likes {
		if l.TweetID == tweetID && l.UserID == userID {
			return l, true, nil
		}
	}
	return domain.Like{}, false, nil
}

func (d memLikeDAO) Delete(tweetID, userID uint) error {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.likes {
		if l.TweetID == tweetID && l.UserID == userID {
			delete(m.likes, id)
		}
	}
	return nil
}

type memMediaDAO struct{ s *memSession }

func (d memMediaDAO) Insert(med domain.Media) (domain.Media, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	med.ID = m.nextSeq()
	m.media[med.ID] = med
	return med, nil
}

func (d memMediaDAO) ByID(id uint) (domain.Media, bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.media[id]
	return med, ok, nil
}

func (d memMediaDAO) Attach(mediaID, tweetID uint) error {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.media[mediaID]
	if !ok {
		return nil
	}
	med.TweetID = &tweetID
	m.media[mediaID] = med
	return nil
}

type memFollowDAO struct{ s *memSession }

func (d memFollowDAO) Insert(followerID, followedID uint) error {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	edge := [2]uint{followerID, followedID}
	if _, ok := m.follows[edge]; ok {
		return ErrDuplicate
	}
	m.follows[edge] = struct{}{}
	return nil
}

func (d memFollowDAO) Exists(followerID, followedID uint) (bool, error) {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.follows[[2]uint{followerID, followedID}]
	return ok, nil
}

func (d memFollowDAO) Delete(followerID, followedID uint) error {
	m := d.s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.follows, [2]uint{followerID, followedID})
	return nil
}
