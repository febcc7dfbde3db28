// Package server exposes a translator over HTTP for diagnostics: model
// inspection, one-shot encoding and incremental decode sessions.
package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// Options configures a Server.
type Options struct {
	// MaxSessions bounds open sessions. Zero means no limit.
	MaxSessions int
	// SessionTTL drops sessions idle for longer than this when a new one is
	// created. Creating and stepping a session both count as use. Zero keeps
	// sessions until deleted.
	SessionTTL time.Duration
	Logger     logger.Logger
}

// Server serves one translator.
//
// Layers keep per-call state, so model calls are serialized by mu. Each
// session additionally serializes its own steps.
type Server struct {
	mu    sync.Mutex
	model *model.Translator
	store *SessionStore
	ttl   time.Duration
	log   logger.Logger
	clock func() time.Time
}

// NewServer creates a server for t.
func NewServer(t *model.Translator, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		model: t,
		store: NewSessionStore(opts.MaxSessions),
		ttl:   opts.SessionTTL,
		log:   log,
		clock: time.Now,
	}
}

// Register adds the routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/encode", s.handleEncode)
	e.POST("/v1/sessions", s.handleCreateSession)
	e.POST("/v1/sessions/:id/step", s.handleStep)
	e.DELETE("/v1/sessions/:id", s.handleDeleteSession)
}

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore {
	return s.store
}

func (s *Server) handleModel(c *echo.Context) error {
	cfg := s.model.Config()
	return c.JSON(http.StatusOK, ModelResponse{
		Backend:       s.model.Backend().Name(),
		ModelDim:      cfg.Layer.ModelDim,
		InnerDim:      cfg.Layer.InnerDim,
		Heads:         cfg.Layer.Heads,
		EncoderLayers: cfg.EncoderLayers,
		DecoderLayers: cfg.DecoderLayers,
		SourceVocab:   cfg.SourceVocab,
		TargetVocab:   cfg.TargetVocab,
		Position:      cfg.Layer.Position.String(),
		Parameters:    nn.CountParameters(s.model),
		Kernels:       s.model.KernelReport(),
		Sessions:      s.store.Len(),
	})
}

func (s *Server) handleEncode(c *echo.Context) error {
	req, err := decodeJSON[EncodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := checkSource(req.Source); err != nil {
		return writeBadRequest(c, err.Error())
	}

	var src nn.Source
	err = s.run(func() {
		src = s.model.Encode(model.NewTokens(req.Source, s.model.Config().PadID), req.SourceLang)
	})
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, EncodeResponse{
		Shape: src.Context.Shape(),
		Norms: rowNorms(src.Context),
	})
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	req, err := decodeJSON[CreateSessionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := checkSource(req.Source); err != nil {
		return writeBadRequest(c, err.Error())
	}

	now := s.clock()
	if s.ttl > 0 {
		if n := s.store.Expire(now.Add(-s.ttl)); n > 0 {
			s.log.Info("expired sessions", "count", n)
		}
	}

	var session *model.Session
	err = s.run(func() {
		src := model.NewTokens(req.Source, s.model.Config().PadID)
		session = s.model.NewSession(src, req.SourceLang, req.TargetLang)
	})
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.store.Add(session, now); err != nil {
		return writeError(c, http.StatusTooManyRequests, "rate_limit_error", err.Error())
	}

	ctx := session.Source().Context
	s.log.Info("session created", "id", session.ID(), "batch", ctx.Dim(1), "source_len", ctx.Dim(0))
	return c.JSON(http.StatusOK, SessionResponse{
		ID:        session.ID().String(),
		Object:    "session",
		Batch:     ctx.Dim(1),
		SourceLen: ctx.Dim(0),
	})
}

func (s *Server) handleStep(c *echo.Context) error {
	id, session, ok := s.lookup(c)
	if !ok {
		return writeNotFound(c, "session not found")
	}
	s.store.Touch(id, s.clock())
	req, err := decodeJSON[StepRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if batch := session.Source().Context.Dim(1); len(req.Tokens) != batch {
		return writeBadRequest(c, fmt.Sprintf("tokens: got %d, want one per batch entry (%d)", len(req.Tokens), batch))
	}

	var out model.DecoderOutput
	if err := s.run(func() { out = session.Step(req.Tokens) }); err != nil {
		return writeBadRequest(c, err.Error())
	}

	resp := StepResponse{ID: id.String(), Step: session.Len()}
	for _, row := range rowNorms(out.Hidden) {
		resp.Norms = append(resp.Norms, row[0])
	}
	if out.Coverage != nil {
		resp.Focus = focus(out.Coverage)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(c *echo.Context) error {
	id, _, ok := s.lookup(c)
	if !ok || !s.store.Delete(id) {
		return writeNotFound(c, "session not found")
	}
	s.log.Info("session deleted", "id", id)
	return c.JSON(http.StatusOK, DeleteSessionResponse{ID: id.String(), Object: "session", Deleted: true})
}

// lookup resolves the :id parameter.
func (s *Server) lookup(c *echo.Context) (uuid.UUID, *model.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, nil, false
	}
	session, ok := s.store.Get(id)
	return id, session, ok
}

// run calls fn with the model lock held and turns contract panics into
// errors.
func (s *Server) run(fn func()) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, nn.ErrContract) {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func checkSource(src [][]int) error {
	if len(src) == 0 {
		return errors.New("source: at least one sequence is required")
	}
	for i, seq := range src {
		if len(seq) == 0 {
			return fmt.Errorf("source[%d]: empty sequence", i)
		}
	}
	return nil
}

// rowNorms returns the L2 norms of x [seq, batch, dim] as [batch][seq].
func rowNorms(x *tensor.Tensor) [][]float32 {
	seq, batch, dim := x.Dim(0), x.Dim(1), x.Dim(2)
	data := x.Data()
	out := make([][]float32, batch)
	for b := range out {
		out[b] = make([]float32, seq)
		for t := 0; t < seq; t++ {
			var sum float64
			for _, v := range data[(t*batch+b)*dim : (t*batch+b+1)*dim] {
				sum += float64(v) * float64(v)
			}
			out[b][t] = float32(math.Sqrt(sum))
		}
	}
	return out
}

// focus returns, per batch entry, the source position with the largest
// head-averaged weight in the last query row of coverage [batch, heads, q, src].
func focus(coverage *tensor.Tensor) []int {
	batch, heads, q, src := coverage.Dim(0), coverage.Dim(1), coverage.Dim(2), coverage.Dim(3)
	out := make([]int, batch)
	for b := range out {
		best, bestW := 0, float32(-1)
		for j := 0; j < src; j++ {
			var w float32
			for h := 0; h < heads; h++ {
				w += coverage.At(b, h, q-1, j)
			}
			if w > bestW {
				best, bestW = j, w
			}
		}
		out[b] = best
	}
	return out
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid request body: %w", err)
	}
	return out, nil
}
