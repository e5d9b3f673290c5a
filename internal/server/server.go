package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"microblog/internal/app"
	"microblog/internal/ratelimit"
	"microblog/internal/util"
	"microblog/pkg/domain"
	"microblog/pkg/store"
)

const apiKeyHeader = "api-key"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AddUserLimiter *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	addUserLimiter *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		addUserLimiter: cfg.AddUserLimiter,
		trustedProxies: cfg.TrustedProxies,
	}
	s.routes()
	return s
}

// Router returns the handler with the middleware chain applied. Every
// request below it runs with an open database session that is closed when
// the handler returns, on success and error paths alike.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.withSession(s.mux)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithCORS(h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/add_user", s.handleAddUser)
	s.mux.HandleFunc("/api/all_users", s.handleAllUsers)
	s.mux.Handle("/api/users/", s.keyed(s.handleUserSubtree))

	s.mux.Handle("/api/tweets", s.keyed(s.handleTweets))
	s.mux.Handle("/api/tweets/", s.keyed(s.handleTweetSubtree))

	s.mux.Handle("/api/medias", s.keyed(s.handleUploadMedia))
	s.mux.Handle("/api/media/", s.keyed(s.handleGetMedia))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// session middleware

type sessionKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.app.OpenSession(r.Context())
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("open session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		defer func() {
			if err := sess.Close(); err != nil {
				util.LoggerFromContext(r.Context()).Error("close session", "error", err)
			}
		}()
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) store.Session {
	return r.Context().Value(sessionKey{}).(store.Session)
}

// auth wrapper

type keyedHandler func(http.ResponseWriter, *http.Request, store.Session, domain.User)

// keyed validates the api-key header and resolves its owner before the
// handler runs. A missing header is a client error; an unknown key is
// denied with the canonical message.
func (s *Server) keyed(next keyedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		key := r.Header.Get(apiKeyHeader)
		if strings.TrimSpace(key) == "" {
			writeDetail(w, http.StatusBadRequest, "api-key header required")
			return
		}
		user, err := s.app.AuthenticateKey(r.Context(), sess, key)
		if err != nil {
			if errors.Is(err, app.ErrAccessDenied) {
				writeDetail(w, http.StatusForbidden, app.ErrAccessDenied.Error())
				return
			}
			util.LoggerFromContext(r.Context()).Error("authenticate", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r, sess, user)
	})
}

// user handlers

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.addUserLimiter != nil && !s.addUserLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req addUserRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.CreateUser(r.Context(), sessionFrom(r), req.Name, req.APIKey)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"result": true, "user_id": user.ID})
}

func (s *Server) handleAllUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers(sessionFrom(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": true, "users": users})
}

func (s *Server) handleUserSubtree(w http.ResponseWriter, r *http.Request, sess store.Session, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "me":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		profile, err := s.app.CurrentUser(sess, user.APIKeyHash)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": true, "user": profile})

	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		id, ok := parseID(parts[0])
		if !ok {
			http.NotFound(w, r)
			return
		}
		profile, err := s.app.UserByID(sess, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": true, "user": profile})

	case len(parts) == 2 && parts[1] == "follow":
		id, ok := parseID(parts[0])
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if err := s.app.FollowUser(sess, user.ID, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"result": true})
		case http.MethodDelete:
			if err := s.app.UnfollowUser(sess, user.ID, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"result": true})
		default:
			methodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

// tweet handlers

func (s *Server) handleTweets(w http.ResponseWriter, r *http.Request, sess store.Session, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		tweets, err := s.app.Feed(sess)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": true, "tweets": tweets})
	case http.MethodPost:
		var req addTweetRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		tweet, err := s.app.AddTweet(sess, user.ID, req.TweetData, req.TweetMediaIDs)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"result": true, "tweet_id": tweet.ID})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTweetSubtree(w http.ResponseWriter, r *http.Request, sess store.Session, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tweets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1:
		id, ok := parseID(parts[0])
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		outcome, err := s.app.DeleteTweet(r.Context(), sess, id, user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		switch outcome {
		case domain.Deleted:
			writeJSON(w, http.StatusOK, map[string]any{"result": true})
		case domain.NotFound:
			writeError(w, http.StatusNotFound, "tweet not found")
		case domain.NotOwned:
			writeError(w, http.StatusForbidden, "you can only delete your own tweets")
		}

	case len(parts) == 2 && parts[1] == "likes":
		id, ok := parseID(parts[0])
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if err := s.app.LikeTweet(sess, id, user.ID); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"result": true})
		case http.MethodDelete:
			if err := s.app.UnlikeTweet(sess, id, user.ID); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"result": true})
		default:
			methodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

// media handlers

const maxUploadBytes = 32 << 20

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request, sess store.Session, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file")
		return
	}
	media, err := s.app.UploadMedia(r.Context(), sess, header.Filename, header.Header.Get("Content-Type"), body)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"result": true, "media_id": media.ID})
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request, sess store.Session, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/media/")
	id, ok := parseID(strings.Trim(rest, "/"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	media, body, err := s.app.GetMedia(r.Context(), sess, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	contentType := media.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// error mapping

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, app.ErrUserNotFound.Error())
	case errors.Is(err, app.ErrTweetNotFound),
		errors.Is(err, app.ErrLikeNotFound),
		errors.Is(err, app.ErrFollowNotFound),
		errors.Is(err, app.ErrMediaNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrKeyTaken),
		errors.Is(err, app.ErrAlreadyLiked),
		errors.Is(err, app.ErrAlreadyFollowing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrAPIKeyRequired),
		errors.Is(err, app.ErrTweetTextRequired),
		errors.Is(err, app.ErrSelfFollow),
		errors.Is(err, app.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func parseID(raw string) (uint, bool) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

type addUserRequest struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

type addTweetRequest struct {
	TweetData     string `json:"tweet_data"`
	TweetMediaIDs []uint `json:"tweet_media_ids"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDetail mirrors the auth error shape clients already parse.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
