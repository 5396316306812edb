package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"taxchat/internal/app"
	"taxchat/internal/ratelimit"
	"taxchat/internal/util"
	"taxchat/pkg/domain"
	"taxchat/pkg/validate"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	RedisAddr                  string
	RedisPassword              string
	RegisterRateLimitPerMinute int
	OTPRateLimitPerMinute      int
	MessageRateLimitPerMinute  int
	MaxUploadBytes             int64
	AllowedExtensions          []string
}

// Server exposes the admin dashboard HTTP endpoints.
type Server struct {
	app               *app.App
	mux               *http.ServeMux
	registerLimiter   *ratelimit.FixedWindowLimiter
	otpLimiter        *ratelimit.FixedWindowLimiter
	messageLimiter    *ratelimit.FixedWindowLimiter
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
}

var defaultAllowedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}

// New constructs the server with routes configured. Rate limiting is enabled
// only when a Redis address is provided.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	extensions := cfg.AllowedExtensions
	if len(extensions) == 0 {
		extensions = defaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	s := &Server{
		app:               cfg.App,
		mux:               http.NewServeMux(),
		maxUploadBytes:    maxUploadBytes,
		allowedExtensions: allowed,
	}
	if cfg.RedisAddr != "" {
		s.registerLimiter = newLimiter(cfg, "register", cfg.RegisterRateLimitPerMinute)
		s.otpLimiter = newLimiter(cfg, "otp", cfg.OTPRateLimitPerMinute)
		s.messageLimiter = newLimiter(cfg, "message", cfg.MessageRateLimitPerMinute)
	}
	s.routes()
	return s
}

func newLimiter(cfg Config, scope string, limit int) *ratelimit.FixedWindowLimiter {
	if limit <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "taxchat:ratelimit:"+scope, limit, time.Minute)
	if err != nil {
		slog.Error("rate limiter disabled", "scope", scope, "err", err)
		return nil
	}
	return limiter
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("taxchat", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.HandleFunc("/users", s.handleUsers)
	s.mux.Handle("/users/register", s.withLimit(s.registerLimiter, s.handleRegister))
	s.mux.HandleFunc("/users/phone", s.handleUserByPhone)
	s.mux.HandleFunc("/users/check", s.handleCheckUser)
	s.mux.Handle("/users/otp-verify", s.withLimit(s.otpLimiter, s.handleVerifyOTP))
	s.mux.HandleFunc("/users/", s.handleUserByID)

	// conversations and messages
	s.mux.HandleFunc("/conversations", s.handleConversations)
	s.mux.HandleFunc("/conversations/", s.handleConversationByID)
	s.mux.HandleFunc("/messages", s.handleMessages)

	// files
	s.mux.HandleFunc("/files", s.handleFiles)
	s.mux.HandleFunc("/files/", s.handleFileByID)

	// dashboard
	s.mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withLimit applies a per-client fixed-window rate limit. A nil limiter
// disables limiting for the route.
func (s *Server) withLimit(limiter *ratelimit.FixedWindowLimiter, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil {
			if !limiter.Allow(util.ClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorEnvelope{
					Success: false,
					Error:   "Too many requests. Please try again later.",
					Code:    "RATE_LIMITED",
				})
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.Users()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, users)
}

type registerRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	user, err := s.app.RegisterUser(app.RegisterInput{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, user)
}

func (s *Server) handleUserByPhone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeCode(w, app.CodeMissingPhone, "Phone number is required")
		return
	}
	if !validate.Phone(phone) {
		writeCode(w, app.CodeInvalidPhoneFormat, "Invalid phone number format. Please use Swiss (+41XXXXXXXXX) or Kosovo (+383XXXXXXXX) format")
		return
	}
	user, err := s.app.UserByPhone(phone)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, user)
}

type checkRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req checkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeCode(w, app.CodeInvalidJSON, "Invalid JSON in request body")
		return
	}
	if !validate.GroupedPhone(req.Phone) {
		writeCode(w, app.CodeValidation, "Invalid phone number format. Please use Swiss (+41) or Kosovo (+383) format")
		return
	}
	result, err := s.app.CheckUser(req.Phone)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, result)
}

type otpVerifyRequest struct {
	Phone     string `json:"phone"`
	OTP       string `json:"otp"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req otpVerifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeCode(w, app.CodeInvalidJSON, "Invalid JSON in request body")
		return
	}
	if !validate.Phone(req.Phone) {
		writeCode(w, app.CodeValidation, "Invalid phone number format. Please use Swiss (+41XXXXXXXXX) or Kosovo (+383XXXXXXXX) format")
		return
	}
	if req.OTP == "" {
		writeCode(w, app.CodeValidation, "OTP is required")
		return
	}
	if req.Timestamp <= 0 {
		writeCode(w, app.CodeValidation, "Timestamp is required")
		return
	}
	result, err := s.app.VerifyOTP(req.Phone, req.OTP, req.Timestamp)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, result)
}

// Pointer fields distinguish "not present" from "set to empty".
type updateRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatarUrl"`
}

// /users/{id}, /users/{id}/conversations or /users/{id}/files
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeCode(w, app.CodeMissingID, "User ID is required")
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "conversations":
			s.handleUserConversations(w, r, id)
		case "files":
			s.handleUserFiles(w, r, id)
		default:
			writeCode(w, app.CodeUserNotFound, "User not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := s.app.UserByID(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, user)
	case http.MethodPatch:
		var req updateRequest
		if err := decodeBody(r, &req); err != nil {
			writeAppError(w, r, err)
			return
		}
		user, err := s.app.UpdateUser(id, app.UpdateInput{
			Name:      req.Name,
			Email:     req.Email,
			AvatarURL: req.AvatarURL,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, user)
	case http.MethodDelete:
		summary, err := s.app.DeleteUser(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, summary)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUserConversations(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	conversations, err := s.app.ConversationsByUser(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, conversations)
}

func (s *Server) handleUserFiles(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	files, err := s.app.FilesByUser(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, files)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	conversations, err := s.app.Conversations()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, conversations)
}

// /conversations/{id} or /conversations/{id}/messages
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/conversations/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeCode(w, app.CodeMissingID, "Conversation ID is required")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "messages" {
			writeCode(w, app.CodeConversationNotFound, "Conversation not found")
			return
		}
		messages, err := s.app.ConversationMessages(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, messages)
		return
	}

	conversation, err := s.app.ConversationByID(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, conversation)
}

type appendMessageRequest struct {
	Metadata struct {
		User string `json:"user"`
	} `json:"metadata"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.withLimit(s.messageLimiter, s.handleAppendMessage).ServeHTTP(w, r)
	case http.MethodGet:
		if phone := r.URL.Query().Get("phone"); phone != "" {
			messages, err := s.app.MessagesByPhone(phone)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			writeData(w, messages)
			return
		}
		messages, err := s.app.Messages()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, messages)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	receipt, err := s.app.AppendMessage(req.Metadata.User, domain.MessageRole(req.Message.Role), req.Message.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, receipt)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		files, err := s.app.Files()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, files)
	case http.MethodPost:
		s.handleUploadFile(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeCode(w, app.CodeValidation, "Invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeCode(w, app.CodeValidation, "File is required (field: file)")
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := s.allowedExtensions[ext]; !ok {
		writeCode(w, app.CodeValidation, "Unsupported file type: "+ext)
		return
	}
	record, err := s.app.UploadFile(r.Context(), app.UploadInput{
		UserID:         r.FormValue("userId"),
		ConversationID: r.FormValue("conversationId"),
		FileName:       header.Filename,
		FileType:       header.Header.Get("Content-Type"),
		Size:           header.Size,
		Content:        file,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, record)
}

// /files/{id} or /files/{id}/url
func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/files/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeCode(w, app.CodeMissingID, "File ID is required")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "url" {
			writeCode(w, app.CodeFileNotFound, "File not found")
			return
		}
		url, err := s.app.FileURL(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, map[string]string{"url": url})
		return
	}

	record, err := s.app.FileByID(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, record)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, stats)
}

// decodeBody parses a JSON request body. Malformed JSON surfaces as an
// internal error here; the check and OTP endpoints report INVALID_JSON
// themselves because clients depend on that contract.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
		Success: false,
		Error:   "Method not allowed",
		Code:    "METHOD_NOT_ALLOWED",
	})
}
