package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/pinecone"
	"docchat/internal/providers"
	"docchat/internal/retrieve"
	"docchat/internal/storage"
	"docchat/internal/util"
	"docchat/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

const noAnswerFallback = "I'm sorry, but I don't know the answer. The information is not available in the document."

// minUsableChunkLen filters out fragments too short to answer from.
const minUsableChunkLen = 20

type Server struct {
	cfg          config.Config
	db           *storage.DB
	documentRepo *storage.DocumentRepo
	chunkRepo    *storage.ChunkRepo
	index        *pinecone.Index
	providers    *providers.Manager
	engine       *retrieve.Engine
	temporal     tclient.Client
	log          *zap.Logger
}

func NewServer(cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		panic(err)
	}
	pc, err := pinecone.NewClient(pinecone.Config{APIKey: cfg.PineconeAPIKey})
	if err != nil {
		panic(err)
	}
	index, err := pinecone.NewIndex(pc, cfg.PineconeIndexName, cfg.EmbedDim, cfg.PineconeIndexHost, log)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	embedder := pm.FirstEmbedProvider()
	return &Server{
		cfg:          cfg,
		db:           db,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		index:        index,
		providers:    pm,
		engine:       retrieve.NewEngine(embedder, index, chunkRepo, documentRepo, cfg.EmbedDim, log),
		temporal:     tc,
		log:          log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/chat", s.handleChat)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func ownerFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.documentRepo.ListDocuments(r.Context(), ownerFromRequest(r))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	if len(parts) == 1 && parts[0] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r)
		return
	}

	docID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.documentRepo.GetDocument(r.Context(), docID)
			if err != nil {
				writeErr(w, statusForErr(err), err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodDelete:
			s.handleDelete(w, r, docID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var status workflows.IngestStatus
		resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+docID, "", workflows.QueryGetIngestStatus)
		if err == nil {
			if err := resp.Get(&status); err == nil {
				writeJSON(w, http.StatusOK, status)
				return
			}
		}
		// No live workflow to query; serve the persisted status.
		doc, err := s.documentRepo.GetDocument(r.Context(), docID)
		if err != nil {
			writeErr(w, statusForErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, workflows.IngestStatus{
			DocumentID:  doc.ID,
			Status:      doc.Status,
			Progress:    doc.Progress,
			Stage:       doc.Stage,
			TotalPages:  doc.TotalPages,
			TotalChunks: doc.TotalChunks,
			FailReason:  doc.Error,
		})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	fh := files[0]
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("only pdf files are supported"))
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_, savedPath, err := saveUploadedFile(s.cfg.UploadDir, fh)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	ownerID := ownerFromRequest(r)
	doc, err := s.documentRepo.CreateDocument(r.Context(), ownerID, fh.Filename, filepath.Base(savedPath), fh.Size)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	_, err = s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "ingest-" + doc.ID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentID:   doc.ID,
		OwnerID:      ownerID,
		DisplayName:  doc.DisplayName,
		FilePath:     savedPath,
		ChunkSize:    s.cfg.ChunkSize,
		ChunkOverlap: s.cfg.ChunkOverlap,
	})
	if err != nil {
		reason := "failed to start processing"
		_ = s.documentRepo.UpdateStatus(r.Context(), doc.ID, models.StatusFailed, models.DocumentPatch{Error: &reason})
		writeErr(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, docID string) {
	doc, err := s.documentRepo.DeleteDocument(r.Context(), docID, ownerFromRequest(r))
	if err != nil {
		writeErr(w, statusForErr(err), err)
		return
	}
	// Index cleanup is best effort; the chunks are already gone.
	if err := s.index.DeleteByDocumentID(r.Context(), doc.ID); err != nil {
		s.log.Warn("vector cleanup on delete failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": doc.ID})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Query        string `json:"query"`
		TopK         int    `json:"top_k"`
		DocumentName string `json:"document_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.SearchTopK
	}

	results, err := s.engine.Search(r.Context(), req.Query, req.TopK, strings.TrimSpace(req.DocumentName), ownerFromRequest(r))
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Question     string `json:"question"`
		DocumentName string `json:"document_name"`
		TopK         int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.SearchTopK
	}

	results, err := s.engine.Search(r.Context(), req.Question, req.TopK, strings.TrimSpace(req.DocumentName), ownerFromRequest(r))
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}

	sources := make([]map[string]any, 0, len(results))
	contextSnippets := make([]string, 0, len(results))
	usable := false
	for _, res := range results {
		content := strings.TrimSpace(res.Chunk.Content)
		if len(content) > minUsableChunkLen {
			usable = true
		}
		contextSnippets = append(contextSnippets, fmt.Sprintf("[Page %d] %s", res.Chunk.PageNumber, content))
		sources = append(sources, map[string]any{
			"document_id":   res.Document.ID,
			"document_name": res.Document.DisplayName,
			"page_number":   res.Chunk.PageNumber,
			"chunk_index":   res.Chunk.ChunkIndex,
			"score":         res.Score,
		})
	}
	if !usable {
		writeJSON(w, http.StatusOK, map[string]any{"answer": noAnswerFallback, "sources": []any{}})
		return
	}

	prompt := "" +
		"You are a helpful assistant that answers questions about a document.\n" +
		"Answer using ONLY the provided document excerpts. Do not use outside knowledge.\n" +
		"If the excerpts do not contain the answer, reply exactly:\n" +
		noAnswerFallback + "\n\n" +
		"Question: " + req.Question + "\n\n" +
		"Document excerpts:\n"

	llm := s.providers.FirstLLMProvider()
	resp, info, err := llm.Generate(r.Context(), providers.GenerateRequest{
		Operation: "chat.answer",
		Prompt:    prompt,
		Context:   contextSnippets,
	})
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("generation failed: %w", err))
		return
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = noAnswerFallback
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":    answer,
		"sources":   sources,
		"llm_model": info.Model,
	})
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (fileHash, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	fileHash = fmt.Sprintf("%x", h.Sum(nil))
	finalPath := filepath.Join(dstDir, fileHash+".pdf")
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}

	return fileHash, finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func statusForErr(err error) int {
	if errors.Is(err, util.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DC-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DC-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "DC-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DC-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DC-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DC-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "DC-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "DC-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "DC-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, surface user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "no files provided"):
			msg = "No PDF file was provided."
		case strings.Contains(low, "only pdf files"):
			msg = "Only PDF files are supported."
		case strings.Contains(low, "query is required"):
			msg = "A search query is required."
		case strings.Contains(low, "question is required"):
			msg = "A question is required."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
