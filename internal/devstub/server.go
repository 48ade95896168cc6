package devstub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/internal/llm"
	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/pkg/logger"
)

// Server is the HTTP face of the development backend.
type Server struct {
	store  *Store
	llm    llm.Client
	logger *logger.Logger
}

// NewServer creates a devstub server. The LLM client is optional; without
// one, replies are echoes.
func NewServer(store *Store, llmClient llm.Client, log *logger.Logger) *Server {
	return &Server{store: store, llm: llmClient, logger: log}
}

// Router builds the devstub's route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/visitors", s.createVisitor)
		r.Get("/visitors/{uuid}", s.getVisitor)
		r.Delete("/visitors/{uuid}", s.deleteVisitor)

		r.Post("/conversations", s.createConversation)
		r.Get("/conversations/{uuid}", s.getConversation)
		r.Get("/conversations/visitor/{uuid}", s.listConversations)
		r.Get("/conversations/visitor/{uuid}/active", s.activeConversation)

		r.Post("/messages", s.createMessage)
		r.Get("/messages/history", s.history)
	})
	return r
}

func (s *Server) envelope(w http.ResponseWriter, httpStatus int, status, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

func (s *Server) ok(w http.ResponseWriter, data interface{}) {
	s.envelope(w, http.StatusOK, "success", "", data)
}

func (s *Server) created(w http.ResponseWriter, data interface{}) {
	s.envelope(w, http.StatusCreated, "success", "", data)
}

func (s *Server) fail(w http.ResponseWriter, httpStatus int, message string) {
	s.envelope(w, httpStatus, "error", message, nil)
}

func (s *Server) createVisitor(w http.ResponseWriter, r *http.Request) {
	s.created(w, s.store.CreateVisitor())
}

func (s *Server) getVisitor(w http.ResponseWriter, r *http.Request) {
	v := s.store.GetVisitor(chi.URLParam(r, "uuid"))
	if v == nil {
		s.fail(w, http.StatusNotFound, "visitor not found")
		return
	}
	s.ok(w, v)
}

func (s *Server) deleteVisitor(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteVisitor(chi.URLParam(r, "uuid")) {
		s.fail(w, http.StatusNotFound, "visitor not found")
		return
	}
	s.ok(w, map[string]bool{"deleted": true})
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VisitorUUID == "" {
		s.fail(w, http.StatusBadRequest, "visitor_uuid is required")
		return
	}
	conv := s.store.CreateConversation(req.VisitorUUID)
	if conv == nil {
		s.fail(w, http.StatusNotFound, "visitor not found")
		return
	}
	s.created(w, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv := s.store.GetConversation(chi.URLParam(r, "uuid"))
	if conv == nil {
		s.fail(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.ok(w, conv)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items := s.store.ListConversations(chi.URLParam(r, "uuid"), limit, offset)
	if items == nil {
		items = []model.Conversation{}
	}
	s.ok(w, items)
}

func (s *Server) activeConversation(w http.ResponseWriter, r *http.Request) {
	conv := s.store.ActiveConversation(chi.URLParam(r, "uuid"))
	if conv == nil {
		s.fail(w, http.StatusNotFound, "no active conversation")
		return
	}
	s.ok(w, conv)
}

// createMessage persists the visitor message, produces the assistant
// reply, and answers with both records. An LLM error is a soft failure:
// the visitor message stays persisted, the envelope carries status
// "warning", and the data is the visitor record alone.
func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var req model.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationUUID == "" || req.MessageContent == "" {
		s.fail(w, http.StatusBadRequest, "conversation_uuid and message_content are required")
		return
	}
	if s.store.GetConversation(req.ConversationUUID) == nil {
		s.fail(w, http.StatusNotFound, "conversation not found")
		return
	}

	visitorMsg := s.store.AppendMessage(req.ConversationUUID, model.Message{
		Sender:         model.SenderVisitor,
		Engine:         req.Engine,
		MessageType:    model.TypeText,
		MessageContent: req.MessageContent,
		IsSuccessful:   boolPtr(true),
		CreatedAt:      model.FlexTime{Time: time.Now()},
	})

	replyText, err := s.reply(r, req.MessageContent)
	if err != nil {
		s.logger.Warn("reply generation failed", zap.Error(err))
		s.envelope(w, http.StatusOK, "warning", "AI response failed", visitorMsg)
		return
	}

	aiMsg := s.store.AppendMessage(req.ConversationUUID, model.Message{
		Sender:         model.SenderAssistant,
		Engine:         req.Engine,
		MessageType:    model.TypeText,
		MessageContent: replyText,
		IsSuccessful:   boolPtr(true),
		CreatedAt:      model.FlexTime{Time: time.Now()},
	})

	s.created(w, map[string]*model.Message{
		"visitor_message": visitorMsg,
		"ai_message":      aiMsg,
	})
}

func (s *Server) reply(r *http.Request, content string) (string, error) {
	if s.llm == nil {
		return fmt.Sprintf("You said: %s", content), nil
	}
	resp, err := s.llm.Complete(r.Context(), &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	conversationUUID := r.URL.Query().Get("conversation_uuid")
	if conversationUUID == "" {
		s.fail(w, http.StatusBadRequest, "conversation_uuid is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	var beforeID int64
	if v := r.URL.Query().Get("before_id"); v != "" {
		beforeID, _ = strconv.ParseInt(v, 10, 64)
	}

	items, hasMore, nextBefore := s.store.History(conversationUUID, limit, beforeID)
	if items == nil {
		items = []model.Message{}
	}
	s.ok(w, model.HistoryPage{
		Items:        items,
		HasMore:      hasMore,
		NextBeforeID: nextBefore,
	})
}

func boolPtr(b bool) *bool { return &b }
