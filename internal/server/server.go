package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"agriguardian/internal/advisor"
	"agriguardian/internal/classifier"
	"agriguardian/internal/config"
	"agriguardian/internal/lookup"
	"agriguardian/internal/snapshot"
)

const (
	rootMessage   = "AgriGuardian API is running. Use /snapshot to analyze plant images."
	maxImageBytes = 20 << 20
)

type Classifier interface {
	Classify(ctx context.Context, img image.Image) (classifier.Prediction, error)
}

type Advisor interface {
	Disease(ctx context.Context, disease, queryType string, conditions map[string]float64) advisor.DiseaseInfo
	Market(ctx context.Context, query, queryType string, conditions map[string]float64) advisor.MarketInfo
}

type Weather interface {
	CurrentWeather(ctx context.Context) lookup.Weather
}

// Index reports the size of the vector index for the health check.
type Index interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators built by the caller.
type Deps struct {
	Classifier Classifier
	Advisor    Advisor
	Weather    Weather
	Index      Index
	Store      *snapshot.Store
	Metrics    *Metrics
}

type Server struct {
	cfg    *config.ServerConfig
	deps   Deps
	router *gin.Engine
	now    func() time.Time
}

func New(cfg *config.ServerConfig, deps Deps) *Server {
	if deps.Store == nil {
		deps.Store = snapshot.NewStore()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	s := &Server{cfg: cfg, deps: deps, now: time.Now}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(s.deps.Metrics.Middleware())

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	router.POST("/snapshot", s.receiveSnapshot)
	router.POST("/query_disease", s.queryDisease)
	router.GET("/latest_snapshot", s.latestSnapshot)
	router.POST("/searchdata", s.searchData)

	s.router = router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Debug().Msg("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": rootMessage})
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Index == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	count, err := s.deps.Index.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": count})
}

func (s *Server) conditions(ctx context.Context) map[string]float64 {
	if s.deps.Weather == nil {
		return lookup.FallbackWeather.Conditions()
	}
	return s.deps.Weather.CurrentWeather(ctx).Conditions()
}

func fail(c *gin.Context, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

func (s *Server) receiveSnapshot(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes))
	if err != nil {
		fail(c, err, "Error processing snapshot")
		return
	}
	img, err := classifier.Decode(body)
	if err != nil {
		fail(c, err, "Error processing snapshot")
		return
	}
	pred, err := s.deps.Classifier.Classify(ctx, img)
	if err != nil {
		fail(c, err, "Error processing snapshot")
		return
	}
	dataURL, err := classifier.EncodeDataURL(img)
	if err != nil {
		fail(c, err, "Error processing snapshot")
		return
	}

	version := s.deps.Store.Replace(dataURL, snapshot.Prediction{
		DiseasePrediction: pred.Label,
		Model:             pred.Model,
		Timestamp:         snapshot.Timestamp(s.now()),
	})
	log.Info().Str("disease", pred.Label).Bool("stub", pred.Stub).Uint64("version", version).Msg("Snapshot classified")

	info := s.deps.Advisor.Disease(ctx, pred.Label, advisor.QueryAll, s.conditions(ctx))
	if !s.deps.Store.MergeDisease(version, info) {
		log.Warn().Uint64("version", version).Msg("Snapshot replaced before disease info was ready, dropping merge")
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "disease": pred.Label})
}

type diseaseQuery struct {
	DiseaseName             string             `json:"disease_name" binding:"required"`
	QueryType               string             `json:"query_type"`
	EnvironmentalConditions map[string]float64 `json:"environmental_conditions"`
}

func (s *Server) queryDisease(c *gin.Context) {
	var req diseaseQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.QueryType == "" {
		req.QueryType = advisor.QueryAll
	}

	info := s.deps.Advisor.Disease(c.Request.Context(), req.DiseaseName, req.QueryType, req.EnvironmentalConditions)
	if s.deps.Store.MergeQuery(info) {
		log.Debug().Str("disease", req.DiseaseName).Str("query_type", req.QueryType).Msg("Updated latest snapshot")
	}

	c.JSON(http.StatusOK, gin.H{
		"disease":      req.DiseaseName,
		"query_type":   req.QueryType,
		"disease_info": info,
	})
}

func (s *Server) latestSnapshot(c *gin.Context) {
	snap, err := s.deps.Store.Latest()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No snapshot available"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type searchRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters"`
}

func (s *Server) searchData(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err, "Error processing search request")
		return
	}
	log.Info().Str("query", req.Query).Interface("filters", req.Filters).Msg("Search request")

	ctx := c.Request.Context()
	info := s.deps.Advisor.Market(ctx, req.Query, advisor.QueryAll, s.conditions(ctx))
	insights := s.deps.Store.SetMarket(info, s.now())

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"market_insights": insights,
		"timestamp":       snapshot.Timestamp(s.now()),
	})
}
