package app

import (
	"context"
	"errors"
	"testing"

	"microblog/internal/apikey"
	"microblog/pkg/domain"
	"microblog/pkg/storage"
	"microblog/pkg/store"
)

func newTestApp(t *testing.T) (*App, store.Session) {
	t.Helper()
	a, err := New(Config{Store: store.NewMemoryStore(nil), Objects: storage.NewMemoryObjectStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := a.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return a, s
}

func mustUser(t *testing.T, a *App, s store.Session, name, key string) domain.User {
	t.Helper()
	u, err := a.CreateUser(context.Background(), s, name, key)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestAuthenticateKey(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()
	alice := mustUser(t, a, s, "alice", "alice-key")

	got, err := a.AuthenticateKey(ctx, s, "alice-key")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("resolved user %d, want %d", got.ID, alice.ID)
	}

	if _, err := a.AuthenticateKey(ctx, s, "wrong-key"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("wrong key: err = %v, want ErrAccessDenied", err)
	}
	if _, err := a.AuthenticateKey(ctx, s, ""); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("empty key: err = %v, want ErrAccessDenied", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateUser(ctx, s, "", "key"); !errors.Is(err, ErrNameRequired) {
		t.Errorf("empty name: err = %v, want ErrNameRequired", err)
	}
	if _, err := a.CreateUser(ctx, s, "bob", ""); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("empty key: err = %v, want ErrAPIKeyRequired", err)
	}

	mustUser(t, a, s, "alice", "shared-key")
	if _, err := a.CreateUser(ctx, s, "bob", "shared-key"); !errors.Is(err, ErrKeyTaken) {
		t.Errorf("duplicate key: err = %v, want ErrKeyTaken", err)
	}
}

func TestCurrentUserByStoredCredential(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()
	alice := mustUser(t, a, s, "alice", "alice-key")
	bob := mustUser(t, a, s, "bob", "bob-key")

	if _, err := a.AddTweet(s, alice.ID, "hello", nil); err != nil {
		t.Fatalf("add tweet: %v", err)
	}
	if err := a.FollowUser(s, alice.ID, bob.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}

	authed, err := a.AuthenticateKey(ctx, s, "alice-key")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	profile, err := a.CurrentUser(s, authed.APIKeyHash)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if profile.ID != alice.ID {
		t.Errorf("resolved user %d, want %d", profile.ID, alice.ID)
	}
	if len(profile.Tweets) != 1 {
		t.Errorf("tweets = %+v, want 1", profile.Tweets)
	}
	if len(profile.Following) != 1 || profile.Following[0].ID != bob.ID {
		t.Errorf("following = %+v, want [bob]", profile.Following)
	}
}

func TestAuthenticateKeyCustomIterations(t *testing.T) {
	hasher := apikey.NewHasher(500)
	a, err := New(Config{Store: store.NewMemoryStore(hasher), HashIterations: 500})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()
	s, err := a.OpenSession(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	alice, err := a.CreateUser(ctx, s, "alice", "alice-key")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if want := apikey.Hash("alice-key", 500); alice.APIKeyHash != want {
		t.Errorf("stored hash %q, want %q", alice.APIKeyHash, want)
	}
	got, err := a.AuthenticateKey(ctx, s, "alice-key")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("resolved user %d, want %d", got.ID, alice.ID)
	}
}

func TestCurrentUserNotFound(t *testing.T) {
	a, s := newTestApp(t)
	if _, err := a.CurrentUser(s, "10000:ffff"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestAddTweetWithMedia(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()
	alice := mustUser(t, a, s, "alice", "alice-key")

	media, err := a.UploadMedia(ctx, s, "cat.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload media: %v", err)
	}

	tweet, err := a.AddTweet(s, alice.ID, "hello", []uint{media.ID})
	if err != nil {
		t.Fatalf("add tweet: %v", err)
	}

	feed, err := a.Feed(s)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != tweet.ID {
		t.Fatalf("feed = %+v, want the new tweet", feed)
	}
	if len(feed[0].Attachments) != 1 || feed[0].Attachments[0].ID != media.ID {
		t.Errorf("attachments = %+v, want media %d", feed[0].Attachments, media.ID)
	}

	if _, err := a.AddTweet(s, alice.ID, "", nil); !errors.Is(err, ErrTweetTextRequired) {
		t.Errorf("empty text: err = %v, want ErrTweetTextRequired", err)
	}
	if _, err := a.AddTweet(s, alice.ID, "bad media", []uint{999}); !errors.Is(err, ErrMediaNotFound) {
		t.Errorf("unknown media: err = %v, want ErrMediaNotFound", err)
	}
}

func TestDeleteTweetOutcomes(t *testing.T) {
	a, s := newTestApp(t)
	ctx := context.Background()
	alice := mustUser(t, a, s, "alice", "alice-key")
	bob := mustUser(t, a, s, "bob", "bob-key")

	tweet, err := a.AddTweet(s, alice.ID, "mine", nil)
	if err != nil {
		t.Fatalf("add tweet: %v", err)
	}

	if outcome, err := a.DeleteTweet(ctx, s, 999, alice.ID); err != nil || outcome != domain.NotFound {
		t.Errorf("missing tweet: outcome %v err %v, want NotFound nil", outcome, err)
	}
	if outcome, err := a.DeleteTweet(ctx, s, tweet.ID, bob.ID); err != nil || outcome != domain.NotOwned {
		t.Errorf("foreign tweet: outcome %v err %v, want NotOwned nil", outcome, err)
	}
	if outcome, err := a.DeleteTweet(ctx, s, tweet.ID, alice.ID); err != nil || outcome != domain.Deleted {
		t.Errorf("own tweet: outcome %v err %v, want Deleted nil", outcome, err)
	}

	feed, err := a.Feed(s)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 0 {
		t.Errorf("feed still has %d tweets after delete", len(feed))
	}
}

func TestLikeUnlike(t *testing.T) {
	a, s := newTestApp(t)
	alice := mustUser(t, a, s, "alice", "alice-key")
	bob := mustUser(t, a, s, "bob", "bob-key")

	tweet, err := a.AddTweet(s, alice.ID, "likeable", nil)
	if err != nil {
		t.Fatalf("add tweet: %v", err)
	}

	if err := a.LikeTweet(s, tweet.ID, bob.ID); err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := a.LikeTweet(s, tweet.ID, bob.ID); !errors.Is(err, ErrAlreadyLiked) {
		t.Errorf("double like: err = %v, want ErrAlreadyLiked", err)
	}
	if err := a.LikeTweet(s, 999, bob.ID); !errors.Is(err, ErrTweetNotFound) {
		t.Errorf("like missing tweet: err = %v, want ErrTweetNotFound", err)
	}

	if err := a.UnlikeTweet(s, tweet.ID, bob.ID); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if err := a.UnlikeTweet(s, tweet.ID, bob.ID); !errors.Is(err, ErrLikeNotFound) {
		t.Errorf("double unlike: err = %v, want ErrLikeNotFound", err)
	}
}

func TestFollowUnfollow(t *testing.T) {
	a, s := newTestApp(t)
	alice := mustUser(t, a, s, "alice", "alice-key")
	bob := mustUser(t, a, s, "bob", "bob-key")

	if err := a.FollowUser(s, alice.ID, alice.ID); !errors.Is(err, ErrSelfFollow) {
		t.Errorf("self follow: err = %v, want ErrSelfFollow", err)
	}
	if err := a.FollowUser(s, alice.ID, 999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing target: err = %v, want ErrUserNotFound", err)
	}

	if err := a.FollowUser(s, alice.ID, bob.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := a.FollowUser(s, alice.ID, bob.ID); !errors.Is(err, ErrAlreadyFollowing) {
		t.Errorf("double follow: err = %v, want ErrAlreadyFollowing", err)
	}

	profile, err := a.UserByID(s, bob.ID)
	if err != nil {
		t.Fatalf("load bob: %v", err)
	}
	if len(profile.Followers) != 1 || profile.Followers[0].ID != alice.ID {
		t.Errorf("bob followers = %+v, want [alice]", profile.Followers)
	}

	if err := a.UnfollowUser(s, alice.ID, bob.ID); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if err := a.UnfollowUser(s, alice.ID, bob.ID); !errors.Is(err, ErrFollowNotFound) {
		t.Errorf("double unfollow: err = %v, want ErrFollowNotFound", err)
	}
}

func TestMediaRoundTrip(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	a, err := New(Config{Store: store.NewMemoryStore(nil), Objects: objects})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx := context.Background()
	s, err := a.OpenSession(ctx)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	if _, err := a.UploadMedia(ctx, s, "empty.png", "image/png", nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty body: err = %v, want ErrEmptyFile", err)
	}

	media, err := a.UploadMedia(ctx, s, "cat.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if media.StorageKey == "" {
		t.Error("expected object store key on uploaded media")
	}
	if objects.Len() != 1 {
		t.Errorf("object store holds %d blobs, want 1", objects.Len())
	}

	got, body, err := a.GetMedia(ctx, s, media.ID)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if got.ContentType != "image/png" || string(body) != "png-bytes" {
		t.Errorf("got %q body %q", got.ContentType, body)
	}

	if _, _, err := a.GetMedia(ctx, s, 999); !errors.Is(err, ErrMediaNotFound) {
		t.Errorf("missing media: err = %v, want ErrMediaNotFound", err)
	}
}
