package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/GideonNut/moviemeter/internal/allocator"
	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/comments"
	"github.com/GideonNut/moviemeter/internal/identity"
	"github.com/GideonNut/moviemeter/internal/importer"
	"github.com/GideonNut/moviemeter/internal/ledger"
	"github.com/GideonNut/moviemeter/internal/live"
	"github.com/GideonNut/moviemeter/internal/notify"
	"github.com/GideonNut/moviemeter/internal/points"
	"github.com/GideonNut/moviemeter/internal/ratelimit"
	"github.com/GideonNut/moviemeter/internal/votes"
	"github.com/GideonNut/moviemeter/pkg/database"
	"github.com/GideonNut/moviemeter/pkg/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := utils.Load()

	dbCfg := database.DefaultConfig()
	db := database.MustOpen(dbCfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Live tally feed + UDP push notifications
	hub := live.NewHub()
	router.GET("/ws", live.WSHandler(hub))

	registry := notify.NewRegistry()
	notifySrv := notify.NewServer(cfg.NotifyAddr, registry, nil)
	if err := notifySrv.Listen(); err != nil {
		log.Fatalf("notify listen failed: %v", err)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbCfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": hub.Count(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": hub.Count(),
		})
	})

	// Ledger access goes through one rate-limited relayer client
	limiter := ratelimit.NewMemoryLimiter()
	chain := ledger.NewClient(cfg.Relayer, limiter)

	catalogRepo := catalog.NewRepo(db)
	pointsRepo := points.NewRepo(db)
	commentsRepo := comments.NewRepo(db)

	alloc := allocator.New(catalogRepo, chain)

	reconciler := votes.NewReconciler(catalogRepo, pointsRepo, chain, alloc)
	reconciler.VotePoints = cfg.VotePoints
	reconciler.Broadcaster = hub
	reconciler.Notifier = notifySrv

	// Catalog + points + comment reads (public)
	catalog.NewHandler(catalogRepo, cfg.Provider.ImageBaseURL).RegisterRoutes(router.Group("/media"))
	points.NewHandler(pointsRepo).RegisterRoutes(router.Group("/points"))

	commentsHandler := comments.NewHandler(commentsRepo, catalogRepo, pointsRepo, cfg.CommentPoints)
	commentsHandler.RegisterPublicRoutes(router.Group(""))

	// Voting and comment writes (token required)
	tokenSvc := identity.TokenService{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
	}
	protected := router.Group("")
	protected.Use(identity.Middleware(tokenSvc))

	votesHandler := votes.NewHandler(reconciler)
	votesHandler.RegisterProtectedRoutes(protected)
	commentsHandler.RegisterProtectedRoutes(protected)

	// Maintenance surface (shared secret)
	admin := router.Group("/admin")
	admin.Use(identity.AdminMiddleware(cfg.AdminSecret))

	source := importer.NewTMDBSource(cfg.Provider)
	importSvc := importer.NewService(catalogRepo, source)
	importSvc.Announce = notifySrv
	importer.NewHandler(importSvc, cfg.RetractionWindow).RegisterAdminRoutes(admin)
	votesHandler.RegisterAdminRoutes(admin)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notifySrv.Run(); err != nil && !errors.Is(err, net.ErrClosed) {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := notifySrv.Close(); err != nil {
		log.Printf("notify shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("servers stopped")
}
