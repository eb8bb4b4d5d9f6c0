package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/mo"

	"github.com/jinford/doc-rag/internal/core/chat"
	"github.com/jinford/doc-rag/internal/core/document"
	"github.com/jinford/doc-rag/internal/core/index"
	"github.com/jinford/doc-rag/internal/core/llm"
)

type uploadResponse struct {
	DocID         string `json:"doc_id"`
	FileName      string `json:"file_name"`
	Format        string `json:"format"`
	ChunksCreated int    `json:"chunks_created"`
}

type chatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type citationResponse struct {
	Number   int      `json:"number"`
	FileName string   `json:"file_name"`
	Page     *int     `json:"page"`
	ChunkID  int      `json:"chunk_id"`
	Score    *float64 `json:"score,omitempty"`
}

type sourceResponse struct {
	DocID    string  `json:"doc_id"`
	ChunkID  int     `json:"chunk_id"`
	FileName string  `json:"file_name"`
	Page     *int    `json:"page"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

type chatResponse struct {
	Answer    string             `json:"answer"`
	Citations []citationResponse `json:"citations"`
	Sources   []sourceResponse   `json:"sources"`
	Refused   bool               `json:"refused"`
}

type documentResponse struct {
	DocID      string    `json:"doc_id"`
	FileName   string    `json:"file_name"`
	Format     string    `json:"format"`
	UploadedAt time.Time `json:"uploaded_at"`
	ChunkCount int       `json:"chunk_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleUpload はmultipartで受け取ったファイルをインジェストする
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "multipart form must contain a \"file\" field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := s.ingester.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, uploadResponse{
		DocID:         result.DocID,
		FileName:      result.FileName,
		Format:        string(result.Format),
		ChunksCreated: result.ChunksCreated,
	})
}

// handleChat は質問に対して引用付きの回答を返す
// リフューザルは200で返る（エラーではなく正常なパイプライン結果）
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.chatter.Chat(r.Context(), chat.ChatParams{Query: req.Query, TopK: req.TopK})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	resp := chatResponse{
		Answer:    result.Answer,
		Citations: make([]citationResponse, 0, len(result.Citations)),
		Sources:   make([]sourceResponse, 0, len(result.Sources)),
		Refused:   result.Refused,
	}
	for _, cit := range result.Citations {
		entry := citationResponse{
			Number:   cit.Number,
			FileName: cit.FileName,
			ChunkID:  cit.ChunkID,
			Page:     optionToPtr(cit.Page),
		}
		if cit.Source != nil {
			score := cit.Source.Score
			entry.Score = &score
		}
		resp.Citations = append(resp.Citations, entry)
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, sourceResponse{
			DocID:    src.DocID,
			ChunkID:  src.ChunkID,
			FileName: src.FileName,
			Page:     optionToPtr(src.Page),
			Score:    src.Score,
			Text:     src.Text,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleListDocuments は登録済みドキュメントの一覧を返す
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingester.ListDocuments(r.Context())
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, documentResponse{
			DocID:      doc.ID,
			FileName:   doc.FileName,
			Format:     string(doc.Format),
			UploadedAt: doc.UploadedAt,
			ChunkCount: doc.ChunkCount,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleDeleteDocument はドキュメントを削除する（冪等なので常に204）
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if docID == "" {
		s.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	if err := s.ingester.DeleteDocument(r.Context(), docID); err != nil {
		s.writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth は登録済みコンポーネントの疎通状態を返す
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string, len(s.healthChecks))
	overall := "ok"
	for name, check := range s.healthChecks {
		if err := check(r.Context()); err != nil {
			services[name] = "unavailable"
			overall = "degraded"
			continue
		}
		services[name] = "ok"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   overall,
		"services": services,
	})
}

// writePipelineError はパイプラインのエラー種別をHTTPステータスに対応付ける
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var (
		procErr  *document.ProcessingError
		embErr   *llm.EmbeddingError
		genErr   *llm.GenerationError
		storeErr *index.StoreError
	)
	switch {
	case errors.As(err, &procErr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &embErr), errors.As(err, &genErr):
		s.writeError(w, http.StatusBadGateway, "an upstream provider failed, please try again")
	case errors.As(err, &storeErr):
		s.writeError(w, http.StatusInternalServerError, "the vector store is unavailable")
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
	s.logger.Error("request failed", "error", err)
}

// optionToPtr はJSONでnullを表現するためにOptionをポインタに変換する
func optionToPtr(opt mo.Option[int]) *int {
	if value, ok := opt.Get(); ok {
		return &value
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
