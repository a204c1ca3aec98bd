package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/user/isp-cabinet/internal/config"
	"github.com/user/isp-cabinet/internal/metrics"
	"github.com/user/isp-cabinet/pkg/isp"
)

// AddAccountRequest is the body of POST /api/accounts. ScanInterval
// accepts a Go duration or a cron expression; ScanIntervalSeconds a
// plain number. Empty means the provider default.
type AddAccountRequest struct {
	ISP                 string `json:"isp"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	ScanInterval        string `json:"scan_interval,omitempty"`
	ScanIntervalSeconds int    `json:"scan_interval_seconds,omitempty"`
}

// AddAccountResponse confirms a scheduled account.
type AddAccountResponse struct {
	Account string `json:"account"`
	Status  string `json:"status"`
}

// RefreshResponse is the response of the refresh endpoint. Skipped is
// true when a poll was already in flight; refreshes are never queued.
type RefreshResponse struct {
	Account   string `json:"account"`
	Triggered bool   `json:"triggered"`
	Skipped   bool   `json:"skipped"`
}

// handleAccounts serves /api/accounts: GET lists every account entry,
// POST schedules a new account at runtime.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveRequest("/api/accounts", start)

	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, "accounts", "read") {
			return
		}
		entries, err := s.store.List(r.Context())
		if err != nil {
			s.log.Error("list accounts failed", "error", err)
			metrics.RequestErrorsTotal.WithLabelValues("/api/accounts", "500").Inc()
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)

	case http.MethodPost:
		if !s.allow(w, r, "accounts", "write") {
			return
		}
		var req AddAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		account, err := req.toAccount()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.sup.Add(account); err != nil {
			var unknown *isp.UnknownProviderError
			switch {
			case errors.As(err, &unknown):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case strings.Contains(err.Error(), "already scheduled"):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				s.log.Error("add account failed", "account", account.ID(), "error", err)
				metrics.RequestErrorsTotal.WithLabelValues("/api/accounts", "500").Inc()
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(AddAccountResponse{Account: account.ID(), Status: "scheduled"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAccount serves /api/accounts/{id} and /api/accounts/{id}/refresh.
// Account IDs contain a colon (isp:username), which needs no escaping
// in a path segment.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/refresh"); ok {
		defer metrics.ObserveRequest("/api/accounts/refresh", start)
		s.handleRefresh(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		http.NotFound(w, r)
		return
	}
	defer metrics.ObserveRequest("/api/accounts/{id}", start)

	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, "accounts", "read") {
			return
		}
		entry, err := s.store.Get(r.Context(), path)
		if err != nil {
			s.log.Error("get account failed", "account", path, "error", err)
			metrics.RequestErrorsTotal.WithLabelValues("/api/accounts/{id}", "500").Inc()
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if entry == nil {
			metrics.RequestErrorsTotal.WithLabelValues("/api/accounts/{id}", "404").Inc()
			http.NotFound(w, r)
			return
		}
		writeJSON(w, entry)

	case http.MethodDelete:
		if !s.allow(w, r, "accounts", "write") {
			return
		}
		if err := s.sup.Remove(path); err != nil {
			metrics.RequestErrorsTotal.WithLabelValues("/api/accounts/{id}", "404").Inc()
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err := s.store.Delete(r.Context(), path); err != nil {
			s.log.Error("delete account entry failed", "account", path, "error", err)
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRefresh triggers an immediate poll for one account.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(w, r, "refresh", "write") {
		return
	}
	triggered, err := s.sup.Trigger(id)
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues("/api/accounts/refresh", "404").Inc()
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, RefreshResponse{Account: id, Triggered: triggered, Skipped: !triggered})
}

func (r AddAccountRequest) toAccount() (config.Account, error) {
	account := config.Account{ISP: r.ISP, Username: r.Username, Password: r.Password}
	if account.ISP == "" || account.Username == "" {
		return config.Account{}, errors.New("isp and username are required")
	}
	switch {
	case r.ScanInterval != "":
		interval, err := config.ParseScanInterval(r.ScanInterval)
		if err != nil {
			return config.Account{}, err
		}
		account.ScanInterval = interval
	case r.ScanIntervalSeconds > 0:
		account.ScanInterval = config.ScanInterval{Every: time.Duration(r.ScanIntervalSeconds) * time.Second}
	}
	return account, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
