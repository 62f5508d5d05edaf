package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Bastien2203/pi-medias/core/auth"
	"github.com/Bastien2203/pi-medias/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ctxKey struct{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPasswordCost(creds.Password, s.hashCost)
	if err != nil {
		http.Error(w, "Error processing password", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if _, exists := s.users[creds.Username]; exists {
		s.mu.Unlock()
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	id := s.addUserLocked(creds.Username, hash)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, model.RegisteredUser{ID: id, Username: creds.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	u, ok := s.users[creds.Username]
	fixed := s.fixedTokens[creds.Username]
	s.mu.Unlock()

	if !ok || !auth.CheckPasswordHash(creds.Password, u.passwordHash) {
		if s.loginErrorBody {
			writeJSON(w, http.StatusOK, map[string]string{"error": "Invalid credentials"})
			return
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token := fixed
	if token == "" {
		var err error
		token, err = auth.IssueToken(s.secret, u.id, s.tokenTTL, s.now())
		if err != nil {
			http.Error(w, "Error generating token", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid token format", http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		userID, fixed := s.tokenOwners[parts[1]]
		s.mu.Unlock()
		if !fixed {
			claims, err := auth.ParseToken(s.secret, parts[1])
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			userID = claims.UserID
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKey{}).(int64)
	return id
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "Error parsing form data", http.StatusBadRequest)
		return
	}

	var (
		content  []byte
		found    bool
		partName string
		mimeType string
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, "Error parsing form data", http.StatusBadRequest)
			return
		}
		if part.FormName() != "file" {
			continue
		}
		content, err = io.ReadAll(io.LimitReader(part, s.maxUpload+1))
		if err != nil {
			http.Error(w, "Error writing file", http.StatusInternalServerError)
			return
		}
		if int64(len(content)) > s.maxUpload {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		found = true
		partName = part.FileName()
		mimeType = part.Header.Get("Content-Type")
		break
	}
	if !found {
		http.Error(w, "Error retrieving file", http.StatusBadRequest)
		return
	}

	name := r.Header.Get("Filename")
	if name == "" {
		name = partName
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.mu.Lock()
	s.nextMediaID++
	stored := &storedMedia{
		Media: model.Media{
			ID:        s.nextMediaID,
			Filename:  uuid.NewString() + filepath.Ext(name),
			MimeType:  mimeType,
			CreatedAt: model.NewTimestamp(s.now().UTC().Truncate(time.Second)),
			MediaName: name,
		},
		ownerID: userID,
		content: content,
	}
	stored.URL = s.fileURL(stored.Filename)
	s.media[stored.ID] = stored
	s.files[stored.Filename] = stored
	s.mu.Unlock()

	if s.legacyUpload {
		writeJSON(w, http.StatusOK, map[string]any{
			"media_id":   stored.ID,
			"filename":   stored.Filename,
			"mime_type":  stored.MimeType,
			"url":        stored.URL,
			"media_name": stored.MediaName,
		})
		return
	}
	writeJSON(w, http.StatusOK, stored.Media)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	s.mu.Lock()
	owned := s.mediaOf(userID)
	s.mu.Unlock()

	// list entries carry neither filename nor url
	medias := make([]model.Media, 0, len(owned))
	for _, m := range owned {
		medias = append(medias, model.Media{
			ID:        m.ID,
			MimeType:  m.MimeType,
			CreatedAt: m.CreatedAt,
			MediaName: m.MediaName,
		})
	}
	writeJSON(w, http.StatusOK, medias)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*storedMedia, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return nil, false
	}
	s.mu.Lock()
	m, ok := s.media[id]
	s.mu.Unlock()
	if !ok || m.ownerID != userIDFrom(r.Context()) {
		http.Error(w, "Media not found or unauthorized", http.StatusNotFound)
		return nil, false
	}
	return m, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.Media)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.media, m.ID)
	delete(s.files, m.Filename)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleFile plays the role of the file server behind media urls. Like the
// real deployment it does not check tokens.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.mu.Lock()
	m, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	ct := m.MimeType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(name))
	}
	w.Header().Set("Content-Type", ct)
	http.ServeContent(w, r, name, m.CreatedAt.Time, bytes.NewReader(m.content))
}

func (s *Server) fileURL(name string) string {
	return s.Server.URL + "/files/" + name
}
