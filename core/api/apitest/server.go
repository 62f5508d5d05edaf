// Package apitest provides an in-memory media service speaking the same
// protocol as the real one, for tests of code built on the api client.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/Bastien2203/pi-medias/core/auth"
	"github.com/Bastien2203/pi-medias/model"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// RecordedRequest is what the server saw of one incoming request.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
}

type user struct {
	id           int64
	username     string
	passwordHash string
}

type storedMedia struct {
	model.Media
	ownerID int64
	content []byte
}

// Server is a running fake media service. Use URL as the client base address.
type Server struct {
	*httptest.Server

	secret   []byte
	hashCost int
	tokenTTL time.Duration
	now      func() time.Time

	loginErrorBody bool
	legacyUpload   bool
	maxUpload      int64

	mu          sync.Mutex
	users       map[string]*user
	fixedTokens map[string]string // username -> token handed out at login
	tokenOwners map[string]int64  // fixed token -> user id
	media       map[int64]*storedMedia
	files       map[string]*storedMedia
	nextUserID  int64
	nextMediaID int64
	requests    []RecordedRequest
}

// Option configures a Server.
type Option func(*Server)

// WithLoginErrorBody makes failed logins answer 200 with {"error": ...}
// instead of 401.
func WithLoginErrorBody() Option {
	return func(s *Server) { s.loginErrorBody = true }
}

// WithLegacyUploadResponse makes uploads answer with the older shape that
// carries media_id and no id or created_at.
func WithLegacyUploadResponse() Option {
	return func(s *Server) { s.legacyUpload = true }
}

// WithMaxUploadBytes rejects larger uploads with 413.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// WithClock replaces time.Now for created_at and token issuance.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// NewServer starts a fake media service. Close it when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		secret:      []byte("apitest-secret"),
		hashCost:    bcrypt.MinCost,
		tokenTTL:    24 * time.Hour,
		now:         time.Now,
		maxUpload:   1 << 30,
		users:       make(map[string]*user),
		fixedTokens: make(map[string]string),
		tokenOwners: make(map[string]int64),
		media:       make(map[int64]*storedMedia),
		files:       make(map[string]*storedMedia),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record)

	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/media", s.authMiddleware(s.handleUpload)).Methods(http.MethodPost)
	r.HandleFunc("/media", s.authMiddleware(s.handleList)).Methods(http.MethodGet)
	r.HandleFunc("/media/{id}", s.authMiddleware(s.handleGet)).Methods(http.MethodGet)
	r.HandleFunc("/media/{id}", s.authMiddleware(s.handleDelete)).Methods(http.MethodDelete)

	r.HandleFunc("/files/{name}", s.handleFile).Methods(http.MethodGet)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// AddUser registers an account directly and returns its id.
func (s *Server) AddUser(username, password string) int64 {
	hash, err := auth.HashPasswordCost(password, s.hashCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, hash)
}

func (s *Server) addUserLocked(username, hash string) int64 {
	s.nextUserID++
	s.users[username] = &user{id: s.nextUserID, username: username, passwordHash: hash}
	return s.nextUserID
}

// SetFixedToken makes logins of username return token, and accepts token as
// that user's session. The user must exist.
func (s *Server) SetFixedToken(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		panic("apitest: unknown user " + username)
	}
	s.fixedTokens[username] = token
	s.tokenOwners[token] = u.id
}

// TokenFor issues a signed session token for userID, valid for ttl from now.
// A negative ttl yields an already expired token.
func (s *Server) TokenFor(userID int64, ttl time.Duration) string {
	token, err := auth.IssueToken(s.secret, userID, ttl, s.now())
	if err != nil {
		panic(err)
	}
	return token
}

// MediaCount returns how many records userID owns.
func (s *Server) MediaCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.media {
		if m.ownerID == userID {
			n++
		}
	}
	return n
}

// Content returns the stored bytes of a media record.
func (s *Server) Content(mediaID int64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), m.content...), true
}

// Requests returns every request seen so far, oldest first.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) mediaOf(userID int64) []*storedMedia {
	var out []*storedMedia
	for _, m := range s.media {
		if m.ownerID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
