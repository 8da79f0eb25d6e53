// Command lootd is the optional HTTP facade over a GameSession: a
// thin wrapper exposing load_data, messages_for, sort, apply_sort and
// clear_caches as JSON endpoints.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/loot-core/loot/internal/config"
	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/pluginref"
	"github.com/loot-core/loot/internal/session"
	"github.com/loot-core/loot/internal/sortengine"
	"github.com/loot-core/loot/internal/store"
)

// sessionManager holds the single active GameSession behind a mutex so
// concurrent handlers can read it safely while it's replaced.
type sessionManager struct {
	mu   sync.RWMutex
	sess *session.GameSession
}

func (m *sessionManager) Get() *session.GameSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

func (m *sessionManager) Set(s *session.GameSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = s
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cacheStore, err := store.New(store.Config{
		DBPath: filepath.Join(cfg.DataDir, "session.db"),
		TTL:    time.Duration(cfg.CacheTTLHours) * time.Hour,
	})
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}

	mgr := &sessionManager{}
	if cfg.Game != "" {
		table, err := gameid.Lookup(cfg.Game)
		if err != nil {
			log.Fatalf("Invalid LOOT_GAME: %v", err)
		}
		sess, err := session.New(session.Config{
			Game:           table,
			DataDir:        filepath.Join(cfg.GamePath, "Data"),
			LocalDataDir:   cfg.LocalDataDir,
			MasterlistPath: cfg.MasterlistPath,
			PreludePath:    cfg.PreludePath,
			UserlistPath:   cfg.UserlistPath,
		})
		if err != nil {
			log.Fatalf("Failed to open game session: %v", err)
		}
		mgr.Set(sess)
		log.Printf("Game session opened for %s", cfg.Game)
	} else {
		log.Println("Warning: LOOT_GAME not configured, endpoints will return errors until a session is opened")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", healthHandler)
	mux.HandleFunc("POST /api/load-data", loadDataHandler(mgr))
	mux.HandleFunc("GET /api/messages", messagesHandler(mgr))
	mux.HandleFunc("GET /api/messages/{plugin}", pluginMessagesHandler(mgr))
	mux.HandleFunc("POST /api/sort", sortHandler(mgr, cacheStore))
	mux.HandleFunc("POST /api/apply-sort", applySortHandler(mgr))
	mux.HandleFunc("POST /api/clear-caches", clearCachesHandler(mgr))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	handler := c.Handler(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("lootd starting on http://localhost:%s", cfg.Port)
		log.Printf("Environment: %s", cfg.Environment)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down lootd...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	if err := cacheStore.Close(); err != nil {
		log.Printf("Error closing session store: %v", err)
	}

	log.Println("lootd stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func loadDataHandler(mgr *sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}
		if err := sess.LoadData(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"installed": len(sess.Installed()),
		})
	}
}

func messagesHandler(mgr *sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}
		msgs, err := sess.AllMessages()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func pluginMessagesHandler(mgr *sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}
		name := r.PathValue("plugin")
		msgs, err := sess.MessagesFor(pluginref.Ref(name))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func sortHandler(mgr *sessionManager, cacheStore *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}

		key := sortCacheKey(sess)
		var cached sortengine.Result
		if key != "" {
			if err := cacheStore.Get(r.Context(), key, &cached); err == nil {
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}

		result, err := sess.Sort()
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if key != "" {
			if err := cacheStore.Set(r.Context(), key, result); err != nil {
				log.Printf("failed to cache sort result: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// sortCacheKey namespaces a cached sort by the Data folder's current
// modification time, so a plugin install/removal invalidates it
// without needing an explicit cache-clear call.
func sortCacheKey(sess *session.GameSession) string {
	info, err := os.Stat(sess.DataDir())
	if err != nil {
		return ""
	}
	return store.ProfileKey(sess.GameID(), info.ModTime().UnixMilli())
}

func applySortHandler(mgr *sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}
		result, err := sess.Sort()
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err := sess.ApplySort(result); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func clearCachesHandler(mgr *sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := mgr.Get()
		if sess == nil {
			writeError(w, http.StatusServiceUnavailable, "no game session is open")
			return
		}
		sess.ClearCaches()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
