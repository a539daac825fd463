package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type phraseSearchRequest struct {
	Phrase string `json:"phrase"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handlePhraseSearch(w http.ResponseWriter, r *http.Request) {
	var req phraseSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phrase == "" {
		s.respondError(w, http.StatusBadRequest, "phrase is required")
		return
	}
	hits, err := s.text.PhraseSearch(r.Context(), req.Phrase, req.Limit)
	if err != nil {
		s.logger.Error("phrase search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Content == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}

	note := &models.Note{
		ID:       input.ID,
		Title:    input.Title,
		Content:  input.Content,
		Tags:     input.Tags,
		Headings: input.Headings,
		Category: input.Category,
	}
	if err := s.store.CreateNote(r.Context(), note); err != nil {
		s.logger.Error("create note failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.engine.InvalidateIDF()

	jobID, err := s.queue.Enqueue(r.Context(), models.AnalyzePayload{
		NoteID:    note.ID,
		UpdatedAt: note.UpdatedAt,
		IsNew:     true,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue analyze", zap.String("note", note.ID), zap.Error(err))
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":     note.ID,
		"job_id": jobID,
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := s.store.GetNote(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "note not found")
		return
	}
	s.respondJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := s.store.GetNote(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "note not found")
		return
	}
	prevContent := note.Content

	note.Title = input.Title
	note.Content = input.Content
	note.Tags = input.Tags
	note.Headings = input.Headings
	note.Category = input.Category
	if err := s.store.UpdateNote(r.Context(), note); err != nil {
		s.logger.Error("update note failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.engine.InvalidateIDF()

	jobID, err := s.queue.Enqueue(r.Context(), models.AnalyzePayload{
		NoteID:      note.ID,
		UpdatedAt:   note.UpdatedAt,
		PrevContent: prevContent,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue analyze", zap.String("note", note.ID), zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"id":     note.ID,
		"job_id": jobID,
	})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetNote(ctx, id); err != nil {
		s.respondError(w, http.StatusNotFound, "note not found")
		return
	}

	if err := s.store.DeleteNote(ctx, id); err != nil {
		s.logger.Error("delete note failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Derived artifacts go with the note. Best-effort: a failure here leaves
	// orphans that the reconstruct workflow cleans up.
	if err := s.store.DeleteEmbedding(ctx, id); err != nil {
		s.logger.Warn("failed to delete embedding", zap.String("note", id), zap.Error(err))
	}
	if err := s.graph.RemoveNote(ctx, id); err != nil {
		s.logger.Warn("failed to delete edges", zap.String("note", id), zap.Error(err))
	}
	if err := s.store.DeleteRelationsForNote(ctx, id); err != nil {
		s.logger.Warn("failed to delete relations", zap.String("note", id), zap.Error(err))
	}
	s.index.Remove(id)
	if s.index.ShouldRebuild() {
		if _, err := s.queue.Enqueue(ctx, models.IndexRebuildPayload{}); err != nil {
			s.logger.Warn("failed to enqueue index rebuild", zap.Error(err))
		}
	}
	if err := s.text.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to remove from full-text index", zap.String("note", id), zap.Error(err))
	}
	s.engine.InvalidateIDF()

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleNoteRelations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rels, err := s.store.RelationsFrom(r.Context(), id)
	if err != nil {
		s.logger.Error("relations lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"relations": rels})
}

func (s *Server) handleNoteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := s.store.HistoryForNote(r.Context(), id)
	if err != nil {
		s.logger.Error("history lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.orchestrator.GetWorkflow(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "workflow not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, wf)
}

func (s *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	wf, err := s.orchestrator.Reconstruct(r.Context())
	if err != nil {
		s.logger.Error("reconstruct failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, wf)
}

func (s *Server) handleInfluence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	direction := r.URL.Query().Get("direction")
	decayed := r.URL.Query().Get("decay") == "true"
	limit := queryInt(r, "limit", 10)

	if decayed {
		var (
			edges []*models.DecayedEdge
			err   error
		)
		if direction == "out" {
			edges, err = s.graph.InfluencedByDecayed(ctx, id, limit)
		} else {
			edges, err = s.graph.InfluencersOfDecayed(ctx, id, limit)
		}
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"edges": edges})
		return
	}

	var (
		edges []*models.InfluenceEdge
		err   error
	)
	if direction == "out" {
		edges, err = s.graph.InfluencedBy(ctx, id, limit)
	} else {
		edges, err = s.graph.InfluencersOf(ctx, id, limit)
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"edges": edges})
}

func (s *Server) handleAllEdges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 50)
	if r.URL.Query().Get("decay") == "true" {
		edges, err := s.graph.AllEdgesDecayed(ctx, limit)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"edges": edges})
		return
	}
	edges, err := s.graph.AllEdges(ctx, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"edges": edges})
}

func (s *Server) handleInfluenceStats(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("decay") == "true" {
		stats, err := s.graph.GraphDecayStats(r.Context())
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, stats)
		return
	}
	stats, err := s.graph.GraphStats(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.index.Stats())
}

func (s *Server) handleIndexRebuild(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.queue.Enqueue(r.Context(), models.IndexRebuildPayload{})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.store.ListClusters(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"clusters": clusters})
}

type clusterRebuildRequest struct {
	K                    int   `json:"k,omitempty"`
	RegenerateEmbeddings *bool `json:"regenerate_embeddings,omitempty"`
}

func (s *Server) handleClusterRebuild(w http.ResponseWriter, r *http.Request) {
	var req clusterRebuildRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	jobID, err := s.queue.Enqueue(r.Context(), models.ClusterRebuildPayload{
		K:                    req.K,
		RegenerateEmbeddings: req.RegenerateEmbeddings,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
