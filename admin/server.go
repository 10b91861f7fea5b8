// Package admin exposes the operator HTTP API: catalog CRUD, live
// connection statistics, forced disconnects, and Prometheus metrics.
// It rides on a separate port from the NTRIP listener and never touches
// the data path.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	ntrip "github.com/go-gnss/ntripcaster"
	"github.com/go-gnss/ntripcaster/catalog"
	"github.com/go-gnss/ntripcaster/internal/registry"
)

// Store is the catalog surface the admin API drives.
type Store interface {
	VerifyAdmin(username, password string) error
	UpdateAdminPassword(username, newPassword string) error

	CreateUser(username, password string) (*catalog.User, error)
	ListUsers() ([]catalog.User, error)
	UpdateUserPassword(username, newPassword string) error
	DeleteUser(username string) error

	CreateMount(name, password string, ownerID *int64) (*catalog.Mount, error)
	ListMounts() ([]catalog.Mount, error)
	UpdateMount(name string, password *string, ownerID *int64, clearOwner bool) error
	DeleteMount(name string) error
}

// Core is the narrow view of the running caster the admin API needs.
type Core interface {
	GetStatistics() registry.Statistics
	ForceDisconnectUser(username string) int
	ForceDisconnectMount(mount string) bool
}

// Server is the admin API server.
type Server struct {
	http.Server
	store  Store
	core   Core
	logger logrus.FieldLogger
}

// NewServer wires the routes. Every endpoint requires Basic credentials
// of a catalog admin.
func NewServer(addr string, store Store, core Core, logger logrus.FieldLogger) *Server {
	server := &Server{
		Server: http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		store:  store,
		core:   core,
		logger: logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", server.adminAuthMiddleware(server.handleStatus))
	mux.HandleFunc("POST /api/admin/password", server.adminAuthMiddleware(server.handleChangeAdminPassword))

	mux.HandleFunc("POST /api/users", server.adminAuthMiddleware(server.handleCreateUser))
	mux.HandleFunc("GET /api/users", server.adminAuthMiddleware(server.handleListUsers))
	mux.HandleFunc("PUT /api/users/{username}/password", server.adminAuthMiddleware(server.handleUpdateUserPassword))
	mux.HandleFunc("DELETE /api/users/{username}", server.adminAuthMiddleware(server.handleDeleteUser))

	mux.HandleFunc("POST /api/mounts", server.adminAuthMiddleware(server.handleCreateMount))
	mux.HandleFunc("GET /api/mounts", server.adminAuthMiddleware(server.handleListMounts))
	mux.HandleFunc("PUT /api/mounts/{name}", server.adminAuthMiddleware(server.handleUpdateMount))
	mux.HandleFunc("DELETE /api/mounts/{name}", server.adminAuthMiddleware(server.handleDeleteMount))

	mux.HandleFunc("DELETE /api/connections/users/{username}", server.adminAuthMiddleware(server.handleDisconnectUser))
	mux.HandleFunc("DELETE /api/connections/mounts/{name}", server.adminAuthMiddleware(server.handleDisconnectMount))

	mux.Handle("GET /metrics", server.adminAuthMiddleware(promhttp.Handler().ServeHTTP))

	server.Handler = mux
	return server
}

// adminAuthMiddleware authenticates the request against the admins
// table.
func (s *Server) adminAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="NTRIP Admin"`)
			http.Error(w, "Missing credentials", http.StatusUnauthorized)
			return
		}
		if err := s.store.VerifyAdmin(username, password); err != nil {
			s.logger.WithField("username", username).Warn("admin auth failed")
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeStoreError maps catalog sentinel errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch err {
	case ntrip.ErrNoUser, ntrip.ErrNoMount:
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.WithError(err).Error("catalog operation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.core.GetStatistics())
}

func (s *Server) handleChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	// The authenticated admin changes their own password.
	username, _, _ := r.BasicAuth()
	if err := s.store.UpdateAdminPassword(username, req.Password); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Password)
	if err != nil {
		s.logger.WithError(err).Error("failed to create user")
		http.Error(w, "Failed to create user", http.StatusConflict)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []catalog.User{}
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateUserPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	username := r.PathValue("username")
	if err := s.store.UpdateUserPassword(username, req.Password); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := s.store.DeleteUser(username); err != nil {
		s.writeStoreError(w, err)
		return
	}

	// A deleted user has no business staying connected.
	dropped := s.core.ForceDisconnectUser(username)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":     username,
		"disconnected": dropped,
	})
}

func (s *Server) handleCreateMount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mount    string `json:"mount"`
		Password string `json:"password"`
		UserID   *int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Mount == "" || req.Password == "" {
		http.Error(w, "Mount and password are required", http.StatusBadRequest)
		return
	}

	mount, err := s.store.CreateMount(req.Mount, req.Password, req.UserID)
	if err != nil {
		s.logger.WithError(err).Error("failed to create mount")
		http.Error(w, "Failed to create mount", http.StatusConflict)
		return
	}
	s.writeJSON(w, http.StatusCreated, mount)
}

func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	mounts, err := s.store.ListMounts()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if mounts == nil {
		mounts = []catalog.Mount{}
	}
	s.writeJSON(w, http.StatusOK, mounts)
}

func (s *Server) handleUpdateMount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password   *string `json:"password"`
		UserID     *int64  `json:"user_id"`
		ClearOwner bool    `json:"clear_owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := r.PathValue("name")
	if err := s.store.UpdateMount(name, req.Password, req.UserID, req.ClearOwner); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mount": name})
}

func (s *Server) handleDeleteMount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.store.DeleteMount(name); err != nil {
		s.writeStoreError(w, err)
		return
	}

	disconnected := s.core.ForceDisconnectMount(name)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mount":        name,
		"disconnected": disconnected,
	})
}

func (s *Server) handleDisconnectUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	dropped := s.core.ForceDisconnectUser(username)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":     username,
		"disconnected": dropped,
	})
}

func (s *Server) handleDisconnectMount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	disconnected := s.core.ForceDisconnectMount(name)
	if !disconnected {
		http.Error(w, fmt.Sprintf("mount %q is not online", name), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"mount": name})
}
