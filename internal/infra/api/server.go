package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
	"docchat/internal/usecase"
)

// defaultSessionID is used by chat requests that carry no session id.
const defaultSessionID = "default"

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

type Options struct {
	RequestTimeout time.Duration
	KeepAlive      time.Duration
	CORSOrigins    []string
	MaxUploadBytes int64
	MaxBatchFiles  int
}

// Server exposes the conversation, file and chat use cases over HTTP.
type Server struct {
	convs usecase.ConversationUseCase
	files usecase.FileUseCase
	chat  usecase.ChatUseCase
	opts  Options
	log   *zerolog.Logger
}

func NewServer(convs usecase.ConversationUseCase, files usecase.FileUseCase, chat usecase.ChatUseCase, opts Options, logger *zerolog.Logger) *Server {
	if opts.MaxBatchFiles <= 0 {
		opts.MaxBatchFiles = 10
	}
	return &Server{convs: convs, files: files, chat: chat, opts: opts, log: logger}
}

// Handler builds the router. Streaming routes are not subject to the request
// timeout.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Post("/chat", s.handleChat)

	r.Group(func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(Timeout(s.opts.RequestTimeout))
		}
		r.Get("/", s.handleIndex)
		r.Get("/api/models", s.handleModels)
		r.Post("/api/sessions", s.handleCreateSession)

		r.Route("/api/conversations", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleDetail)
				r.Delete("/", s.handleDelete)
				r.Post("/star", s.handleStar)
				r.Post("/files", s.handleUpload)
				r.Post("/files/batch", s.handleUploadBatch)
				r.Get("/files/{fileID}", s.handleFileContent)
				r.Delete("/files/{fileID}", s.handleRemoveFile)
			})
		})
	})

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return Chain(r, c.Handler, TraceID(s.log), RequestLog(s.log), Recover(s.log))
}

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	MaxTokens    *int   `json:"max_tokens"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(domain.ErrInvalidArgument, err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = defaultSessionID
	}
	ctx := logging.WithSessID(r.Context(), req.SessionID)

	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}
	stop := sw.keepAlive(s.opts.KeepAlive)
	err = s.chat.Send(ctx, usecase.ChatInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		Override: usecase.SettingsOverride{
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			MaxTokens:    req.MaxTokens,
		},
	}, func(f usecase.Frame) error { return sw.Data(f) })
	stop()
	if err == nil {
		return
	}

	if !sw.Started() {
		writeError(w, err)
		return
	}
	if ctx.Err() != nil || errors.Is(err, usecase.ErrClientGone) {
		return
	}
	if werr := sw.Data(toErrorBody(err)); werr != nil {
		logging.With(ctx, s.log).Debug().Err(werr).Msg("error frame not delivered")
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.chat.ListModels(r.Context())
	if err != nil {
		writeError(w, domain.NewUpstreamError("chat", 0, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.convs.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"conversations": s.convs.List(r.Context())})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	d, err := s.convs.Detail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.convs.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	starred, err := s.convs.ToggleStar(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"starred": starred})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.parseMultipart(w, r, 1); err != nil {
		writeError(w, err)
		return
	}
	fh, err := firstFile(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	in, err := readUpload(fh, model.FileKind(strings.TrimSpace(r.FormValue("type"))))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.files.Upload(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": rec.Summary()})
}

type batchItem struct {
	Filename string             `json:"filename"`
	Success  bool               `json:"success"`
	File     *model.FileSummary `json:"file,omitempty"`
	Error    string             `json:"error,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.parseMultipart(w, r, s.opts.MaxBatchFiles); err != nil {
		writeError(w, err)
		return
	}
	var fhs []*multipart.FileHeader
	if r.MultipartForm != nil {
		fhs = r.MultipartForm.File["files"]
	}
	if len(fhs) == 0 {
		writeError(w, domain.ErrEmptyFile)
		return
	}
	if len(fhs) > s.opts.MaxBatchFiles {
		writeError(w, errors.Join(domain.ErrInvalidArgument, errors.New("too many files in one batch")))
		return
	}

	items := make([]batchItem, len(fhs))
	ins := make([]usecase.UploadInput, 0, len(fhs))
	slot := make([]int, 0, len(fhs))
	for i, fh := range fhs {
		items[i].Filename = fh.Filename
		in, err := readUpload(fh, "")
		if err != nil {
			b := toErrorBody(err)
			items[i].Error, items[i].Detail = b.Error, b.Detail
			continue
		}
		ins = append(ins, in)
		slot = append(slot, i)
	}
	for j, res := range s.files.UploadBatch(r.Context(), id, ins) {
		it := &items[slot[j]]
		if res.Err != nil {
			b := toErrorBody(res.Err)
			it.Error, it.Detail = b.Error, b.Detail
			continue
		}
		sum := res.File.Summary()
		it.Success, it.File = true, &sum
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	rec, err := s.files.Content(r.Context(), id, chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.files.Remove(r.Context(), id, chi.URLParam(r, "fileID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request, files int) error {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes*int64(files)+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return domain.ErrFileTooLarge
		}
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	return nil
}

func firstFile(r *http.Request, field string) (*multipart.FileHeader, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, domain.ErrEmptyFile
	}
	return r.MultipartForm.File[field][0], nil
}

func readUpload(fh *multipart.FileHeader, kind model.FileKind) (usecase.UploadInput, error) {
	f, err := fh.Open()
	if err != nil {
		return usecase.UploadInput{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return usecase.UploadInput{}, err
	}
	return usecase.UploadInput{Filename: fh.Filename, Kind: kind, Data: data}, nil
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := usecase.ValidateSessionID(id); err != nil {
		writeError(w, err)
		return "", false
	}
	return id, true
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="zh">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Title}}</title>
</head>
<body>
<h2>{{.Title}}</h2>
<p>POST /chat streams replies as server-sent events. Upload files under /api/conversations/{id}/files and reference them as 文件1, 文件2, ...</p>
<ul>
{{range .Models}}<li>{{.}}</li>
{{end}}</ul>
</body>
</html>`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	models, _ := s.chat.ListModels(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = indexPage.Execute(w, struct {
		Title  string
		Models []string
	}{Title: "docchat", Models: models})
}
