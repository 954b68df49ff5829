package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/compose"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/events"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/ratelimit"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
)

// maxUploadBytes caps a whole multipart request body.
const maxUploadBytes = 64 << 20

// MessageStore is the persistence surface the handlers need. Satisfied by
// *PGStore.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *chat.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
	ConversationExists(ctx context.Context, conversationID string) (bool, error)
}

// AttachmentStore uploads attachment blobs and resolves their URLs.
// Satisfied by *ObjectStore.
type AttachmentStore interface {
	PutAttachment(ctx context.Context, messageID, fileName, contentType string, data []byte) (string, error)
}

// Publisher fans persisted messages out to live subscribers. Satisfied by
// *messaging.NATSClient.
type Publisher interface {
	PublishMessageEvent(conversationID string, data []byte) error
}

// Options configures a Server.
type Options struct {
	Store       MessageStore
	Attachments AttachmentStore
	Publisher   Publisher
	Limiter     *ratelimit.Limiter
	SendRule    ratelimit.Rule
	CORSOrigin  string

	// Attachment policy. Zero values fall back to the compose defaults.
	MaxFiles      int
	MaxFileSizeMB int
}

// Server handles the message backend's HTTP API.
type Server struct {
	store       MessageStore
	attachments AttachmentStore
	publisher   Publisher
	limiter     *ratelimit.Limiter
	sendRule    ratelimit.Rule
	buffer      *MessageBuffer

	corsOrigin string
	maxFiles   int
	maxSizeMB  int
}

// NewServer builds a Server from Options.
func NewServer(opts Options) *Server {
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = compose.DefaultMaxFiles
	}
	maxSizeMB := opts.MaxFileSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = compose.DefaultMaxSizeMB
	}
	rule := opts.SendRule
	if rule.Limit == 0 {
		rule = ratelimit.RuleSend
	}
	return &Server{
		store:       opts.Store,
		attachments: opts.Attachments,
		publisher:   opts.Publisher,
		limiter:     opts.Limiter,
		sendRule:    rule,
		buffer:      NewMessageBuffer(),
		corsOrigin:  opts.CORSOrigin,
		maxFiles:    maxFiles,
		maxSizeMB:   maxSizeMB,
	}
}

// Routes assembles the chi router for the message API.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.corsOriginOrAny()},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/conversations/{conversationId}/messages", func(r chi.Router) {
		r.Post("/", s.handleSendText)
		r.Post("/files", s.handleSendFiles)
		r.Post("/audio", s.handleSendAudio)
		r.Get("/recent", s.handleRecent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

func (s *Server) corsOriginOrAny() string {
	if s.corsOrigin == "" {
		return "*"
	}
	return s.corsOrigin
}

// handleSendText persists a text-only message.
func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	var out transport.OutgoingMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out.Content = strings.TrimSpace(out.Content)
	if out.Content == "" {
		writeError(w, http.StatusBadRequest, "message content is required")
		return
	}
	if err := chat.ValidateContent(out.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := s.newMessage(conversationID, out)
	msg.MessageType = chat.TypeText
	s.persistAndRespond(w, r, msg)
}

// handleSendFiles persists a message with file attachments. The multipart
// body carries a "message" JSON part and one or more "files" parts.
func (s *Server) handleSendFiles(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	out, form, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	if err := chat.ValidateContent(strings.TrimSpace(out.Content)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	if len(parts) > s.maxFiles {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d files per message", s.maxFiles))
		return
	}

	msg := s.newMessage(conversationID, out)
	msg.MessageType = chat.TypeFile

	allImages := true
	maxBytes := int64(s.maxSizeMB) << 20
	for _, fh := range parts {
		contentType := fh.Header.Get("Content-Type")
		if !compose.AllowedMIME(contentType) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("file type %q is not allowed", contentType))
			return
		}
		if fh.Size > maxBytes {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("file %q exceeds the %d MB limit", fh.Filename, s.maxSizeMB))
			return
		}

		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file")
			return
		}

		url, err := s.attachments.PutAttachment(r.Context(), msg.ID, fh.Filename, contentType, data)
		if err != nil {
			log.Printf("[server] upload attachment: %v", err)
			writeError(w, http.StatusInternalServerError, "attachment upload failed")
			return
		}

		fileType := compose.FileTypeForMIME(contentType)
		if fileType != chat.FileImage {
			allImages = false
		}
		msg.Attachments = append(msg.Attachments, chat.Attachment{
			ID:         uuid.NewString(),
			FileName:   fh.Filename,
			FileType:   fileType,
			FileURL:    url,
			FileSize:   fh.Size,
			UploadedAt: msg.CreatedAt,
		})
	}
	if allImages {
		msg.MessageType = chat.TypeImage
	}

	s.persistAndRespond(w, r, msg)
}

// handleSendAudio persists a voice message. The multipart body carries a
// "message" JSON part and a single "audio" part.
func (s *Server) handleSendAudio(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	out, form, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	if err := chat.ValidateContent(strings.TrimSpace(out.Content)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parts := form.File["audio"]
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one audio clip is required")
		return
	}
	fh := parts[0]

	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "audio/") {
		writeError(w, http.StatusBadRequest, "audio uploads must have an audio content type")
		return
	}
	if fh.Size > int64(s.maxSizeMB)<<20 {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("audio clip exceeds the %d MB limit", s.maxSizeMB))
		return
	}

	data, err := readPart(fh)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio clip")
		return
	}

	msg := s.newMessage(conversationID, out)
	msg.MessageType = chat.TypeAudio

	url, err := s.attachments.PutAttachment(r.Context(), msg.ID, fh.Filename, contentType, data)
	if err != nil {
		log.Printf("[server] upload audio: %v", err)
		writeError(w, http.StatusInternalServerError, "attachment upload failed")
		return
	}
	msg.Attachments = []chat.Attachment{{
		ID:         uuid.NewString(),
		FileName:   fh.Filename,
		FileType:   chat.FileAudio,
		FileURL:    url,
		FileSize:   fh.Size,
		UploadedAt: msg.CreatedAt,
	}}

	s.persistAndRespond(w, r, msg)
}

// handleRecent serves the conversation's newest messages, oldest first.
// The in-memory buffer answers when it has content; otherwise the
// database does.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	limit := MaxBufferMessages
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	msgs := s.buffer.Recent(conversationID, limit)
	if len(msgs) == 0 {
		var err error
		msgs, err = s.store.RecentMessages(r.Context(), conversationID, limit)
		if err != nil {
			log.Printf("[server] recent messages: %v", err)
			writeError(w, http.StatusInternalServerError, "could not load messages")
			return
		}
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	writeJSON(w, http.StatusOK, msgs)
}

// parseUpload parses a multipart upload and decodes its "message" part.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (transport.OutgoingMessage, *multipart.Form, bool) {
	var out transport.OutgoingMessage

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return out, nil, false
	}
	form := r.MultipartForm

	raw := form.Value["message"]
	if len(raw) != 1 {
		form.RemoveAll()
		writeError(w, http.StatusBadRequest, "message part is required")
		return out, nil, false
	}
	if err := json.Unmarshal([]byte(raw[0]), &out); err != nil {
		form.RemoveAll()
		writeError(w, http.StatusBadRequest, "invalid message part")
		return out, nil, false
	}
	return out, form, true
}

// newMessage builds the authoritative message record for a send.
func (s *Server) newMessage(conversationID string, out transport.OutgoingMessage) *chat.Message {
	return &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       out.SenderID,
		SenderName:     out.SenderName,
		SenderType:     out.SenderType,
		SenderOrgCode:  out.SenderOrgCode,
		Content:        strings.TrimSpace(out.Content),
		MessageType:    out.MessageType,
		ReadBy:         []string{out.SenderID},
		CreatedAt:      time.Now().UTC(),
	}
}

// persistAndRespond runs the shared tail of every send: sender checks,
// rate limit, persistence, buffer, fan-out, echo.
func (s *Server) persistAndRespond(w http.ResponseWriter, r *http.Request, msg *chat.Message) {
	if msg.SenderID == "" {
		writeError(w, http.StatusBadRequest, "senderId is required")
		return
	}

	exists, err := s.store.ConversationExists(r.Context(), msg.ConversationID)
	if err != nil {
		log.Printf("[server] check conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "could not verify conversation")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(r.Context(), msg.SenderID, s.sendRule)
		if !allowed {
			writeError(w, http.StatusTooManyRequests,
				"You are sending messages too quickly. Please wait a moment.")
			return
		}
	}

	if err := s.store.SaveMessage(r.Context(), msg); err != nil {
		log.Printf("[server] save message: %v", err)
		writeError(w, http.StatusInternalServerError, "could not store message")
		return
	}
	metrics.MessagesStored.WithLabelValues(msg.MessageType).Inc()
	s.buffer.Add(msg.ConversationID, *msg)

	if s.publisher != nil {
		ev := events.NewMessageEvent(msg.ConversationID, *msg)
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[server] marshal event: %v", err)
		} else if err := s.publisher.PublishMessageEvent(msg.ConversationID, data); err != nil {
			// Delivery is best effort: clients recover via the
			// recent-messages fetch.
			log.Printf("[server] publish event: %v", err)
		}
	}

	writeJSON(w, http.StatusCreated, msg)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
