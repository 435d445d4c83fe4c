// Package mockshop is an in-memory implementation of the merch shop API
// for local runs and tests.
package mockshop

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/shopapi"
)

// Endpoint names used by Calls.
const (
	EndpointAuth     = "auth"
	EndpointInfo     = "info"
	EndpointSendCoin = "sendCoin"
	EndpointBuy      = "buy"
)

// Options configures a Server.
type Options struct {
	// InitialCoins is the balance of a newly registered user (default 1000).
	InitialCoins int64

	// Accounts pre-registers users with the given passwords.
	Accounts map[string]string

	// Latency is added to every request.
	Latency time.Duration

	// FailureRatio is the fraction of requests answered with 500.
	FailureRatio float64

	// Lenient accepts every well-formed request: unknown recipients are
	// registered on the fly and balances are never checked.
	Lenient bool

	// Seed drives failure injection. Zero uses the current time.
	Seed int64

	Logger *zap.Logger
}

type account struct {
	password  string
	coins     int64
	inventory map[string]int64
	received  []shopapi.ReceivedTransfer
	sent      []shopapi.SentTransfer
}

// Server is an http.Handler serving the shop API.
//
// # Thread Safety
//
// Server is safe for concurrent use. Account state is guarded by one
// mutex; call counters are atomic.
type Server struct {
	opts   Options
	logger *zap.Logger
	prices map[string]int64
	mux    *http.ServeMux

	mu       sync.Mutex
	accounts map[string]*account
	tokens   map[string]string

	rngMu sync.Mutex
	rng   *rand.Rand

	calls map[string]*atomic.Int64
}

// New creates a server.
func New(opts Options) *Server {
	if opts.InitialCoins <= 0 {
		opts.InitialCoins = 1000
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		opts:     opts,
		logger:   logger,
		prices:   make(map[string]int64, len(shopapi.Catalog)),
		mux:      http.NewServeMux(),
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		rng:      rand.New(rand.NewSource(opts.Seed)),
		calls: map[string]*atomic.Int64{
			EndpointAuth:     {},
			EndpointInfo:     {},
			EndpointSendCoin: {},
			EndpointBuy:      {},
		},
	}
	for _, item := range shopapi.Catalog {
		s.prices[item.Name] = item.Price
	}
	for name, password := range opts.Accounts {
		s.accounts[name] = s.newAccount(password)
	}

	s.mux.HandleFunc("POST "+shopapi.PathAuth, s.instrument(EndpointAuth, s.handleAuth))
	s.mux.HandleFunc("GET "+shopapi.PathInfo, s.instrument(EndpointInfo, s.authenticated(s.handleInfo)))
	s.mux.HandleFunc("POST "+shopapi.PathSendCoin, s.instrument(EndpointSendCoin, s.authenticated(s.handleSendCoin)))
	s.mux.HandleFunc("GET "+shopapi.PathBuy+"{item}", s.instrument(EndpointBuy, s.authenticated(s.handleBuy)))
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s
}

func (s *Server) newAccount(password string) *account {
	return &account{
		password:  password,
		coins:     s.opts.InitialCoins,
		inventory: make(map[string]int64),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Calls returns how many requests an endpoint has received.
func (s *Server) Calls(endpoint string) int64 {
	if c, ok := s.calls[endpoint]; ok {
		return c.Load()
	}
	return 0
}

// Balance returns a user's coins and whether the user exists.
func (s *Server) Balance(username string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[username]
	if !ok {
		return 0, false
	}
	return acc.coins, true
}

type authedHandler func(w http.ResponseWriter, r *http.Request, username string)

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	counter := s.calls[endpoint]
	return func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		if s.opts.Latency > 0 {
			select {
			case <-time.After(s.opts.Latency):
			case <-r.Context().Done():
				return
			}
		}
		if s.injectFailure() {
			writeError(w, http.StatusInternalServerError, "injected failure")
			return
		}
		next(w, r)
	}
}

func (s *Server) injectFailure() bool {
	if s.opts.FailureRatio <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.opts.FailureRatio
}

func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.mu.Lock()
		username, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, username)
	}
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req shopapi.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 50 {
		writeError(w, http.StatusBadRequest, "username must be 3 to 50 characters")
		return
	}
	if len(req.Password) < 6 || len(req.Password) > 50 {
		writeError(w, http.StatusBadRequest, "password must be 6 to 50 characters")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	if !ok {
		acc = s.newAccount(req.Password)
		s.accounts[req.Username] = acc
		s.logger.Debug("registered user", zap.String("username", req.Username))
	}
	if acc.password == "" {
		// Placeholder created by a lenient transfer.
		acc.password = req.Password
	}
	if acc.password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = req.Username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, shopapi.AuthResponse{Token: token})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request, username string) {
	s.mu.Lock()
	acc := s.accounts[username]
	info := shopapi.InfoResponse{
		Coins:     acc.coins,
		Inventory: make([]shopapi.InventoryItem, 0, len(acc.inventory)),
		CoinHistory: shopapi.CoinHistory{
			Received: append([]shopapi.ReceivedTransfer{}, acc.received...),
			Sent:     append([]shopapi.SentTransfer{}, acc.sent...),
		},
	}
	for _, item := range shopapi.Catalog {
		if qty := acc.inventory[item.Name]; qty > 0 {
			info.Inventory = append(info.Inventory, shopapi.InventoryItem{Type: item.Name, Quantity: qty})
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSendCoin(w http.ResponseWriter, r *http.Request, username string) {
	var req shopapi.SendCoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToUser == "" {
		writeError(w, http.StatusBadRequest, "toUser is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.accounts[username]
	recipient, ok := s.accounts[req.ToUser]
	if !ok {
		if !s.opts.Lenient {
			writeError(w, http.StatusBadRequest, "recipient not found")
			return
		}
		recipient = s.newAccount("")
		s.accounts[req.ToUser] = recipient
	}
	if recipient == sender && !s.opts.Lenient {
		writeError(w, http.StatusBadRequest, "cannot send coins to yourself")
		return
	}
	if sender.coins < req.Amount && !s.opts.Lenient {
		writeError(w, http.StatusBadRequest, "insufficient funds")
		return
	}

	if recipient != sender {
		sender.coins -= req.Amount
		recipient.coins += req.Amount
	}
	sender.sent = append(sender.sent, shopapi.SentTransfer{ToUser: req.ToUser, Amount: req.Amount})
	recipient.received = append(recipient.received, shopapi.ReceivedTransfer{FromUser: username, Amount: req.Amount})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, username string) {
	item := r.PathValue("item")
	price, ok := s.prices[item]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown item")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accounts[username]
	if acc.coins < price && !s.opts.Lenient {
		writeError(w, http.StatusBadRequest, "insufficient funds")
		return
	}
	if acc.coins >= price {
		acc.coins -= price
	}
	acc.inventory[item]++
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, shopapi.ErrorResponse{Error: msg})
}
