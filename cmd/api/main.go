package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostel/internal/allocation"
	"hostel/internal/allottee"
	"hostel/internal/apperr"
	"hostel/internal/attendance"
	"hostel/internal/audit"
	"hostel/internal/auth"
	"hostel/internal/complaint"
	"hostel/internal/config"
	"hostel/internal/httpmiddleware"
	"hostel/internal/metrics"
	"hostel/internal/queue"
	"hostel/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		if db == nil {
			return err
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Printf("warning: schema bootstrap failed: %v", err)
	}

	authRepo := auth.NewRepository(db.Client)
	if cfg.AdminEmail != "" {
		if err := authRepo.UpsertAdmin(context.Background(), cfg.AdminName, cfg.AdminEmail); err != nil {
			log.Printf("warning: admin bootstrap failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "hostel:audit")
	}

	allotteeSvc := allottee.NewService(allottee.NewRepository(db.Client), authRepo)
	allocSvc := allocation.NewService(allocation.NewRepository(db.Client))
	attendanceSvc := attendance.NewService(
		attendance.NewRepository(db.Client),
		authRepo,
		attendance.NewRedisCache(redisClient.Client),
		cfg.StatsCacheTTL,
	)
	complaintSvc := complaint.NewService(complaint.NewRepository(db.Client))
	auditRepo := audit.NewRepository(db.Client)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.NewRedisStore(redisClient.Client), cfg.RateLimitPerMin)
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		admin, err := authRepo.FindAdmin(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if admin == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized, admin not found"})
			return
		}

		tokens, err := auth.Issue(admin.Email, admin.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if err := authRepo.SaveRefreshToken(c.Request.Context(), admin.Email, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("refresh token save failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"admin":         admin,
		})
	})

	r.POST("/v1/auth/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.ParseRefresh(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		ok, err := authRepo.RefreshTokenValid(c.Request.Context(), claims.Subject, req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
			return
		}
		admin, err := authRepo.FindAdmin(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if admin == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized, admin not found"})
			return
		}

		tokens, err := auth.Issue(admin.Email, admin.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		// Rotation: the presented token becomes single-use
		if err := authRepo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
			log.Printf("refresh token revoke failed: %v", err)
		}
		if err := authRepo.SaveRefreshToken(c.Request.Context(), admin.Email, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("refresh token save failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	g := r.Group("/v1", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Allottees
	g.POST("/allottees", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Roll  string `json:"roll"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := allotteeSvc.Register(c.Request.Context(), req.Name, req.Email, req.Roll, c.GetString("adminEmail"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "allottee registered successfully", "allottee": a})
	})

	g.GET("/allottees", func(c *gin.Context) {
		list, err := allotteeSvc.List(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allottees": list})
	})

	g.GET("/allocations/unallocated", func(c *gin.Context) {
		list, err := allocSvc.Unallocated(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allottees": list})
	})

	g.GET("/allottees/:id", func(c *gin.Context) {
		a, err := allotteeSvc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	})

	g.PUT("/allottees/:id", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
			Roll string `json:"roll"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := allotteeSvc.Update(c.Request.Context(), c.Param("id"), req.Name, req.Roll)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "allottee updated successfully", "allottee": a})
	})

	g.DELETE("/allottees/:id", func(c *gin.Context) {
		if err := allotteeSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "allottee deleted successfully"})
	})

	// Rooms
	g.POST("/rooms", func(c *gin.Context) {
		var req struct {
			Number   string `json:"number"`
			Block    string `json:"block"`
			Floor    string `json:"floor"`
			Capacity int    `json:"capacity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, err := allocSvc.CreateRoom(c.Request.Context(), req.Number, req.Block, req.Floor, req.Capacity)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "room created successfully", "room": room})
	})

	g.GET("/rooms", func(c *gin.Context) {
		rooms, err := allocSvc.ListRooms(c.Request.Context(), c.Query("block"), c.Query("floor"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	g.GET("/rooms/:id", func(c *gin.Context) {
		room, err := allocSvc.GetRoom(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	})

	g.PUT("/rooms/:id", func(c *gin.Context) {
		var req allocation.RoomUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, err := allocSvc.UpdateRoom(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "room updated successfully", "room": room})
	})

	g.DELETE("/rooms/:id", func(c *gin.Context) {
		if err := allocSvc.DeleteRoom(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "room deleted successfully"})
	})

	g.PUT("/rooms/:id/allot", func(c *gin.Context) {
		var req struct {
			AllotteeID string `json:"alloteeId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, err := allocSvc.Allot(c.Request.Context(), c.Param("id"), req.AllotteeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.Allocations.Inc()
		publishAudit(c.Request.Context(), q, "allot", gin.H{
			"room": room.Number, "block": room.Block, "alloteeId": req.AllotteeID, "by": c.GetString("adminEmail"),
		})
		c.JSON(http.StatusOK, gin.H{"message": "allottee allotted to room successfully", "room": room})
	})

	g.PUT("/rooms/:id/deallocate", func(c *gin.Context) {
		var req struct {
			AllotteeID string `json:"alloteeId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, err := allocSvc.Deallocate(c.Request.Context(), c.Param("id"), req.AllotteeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.Deallocations.Inc()
		publishAudit(c.Request.Context(), q, "deallocate", gin.H{
			"room": room.Number, "block": room.Block, "alloteeId": req.AllotteeID, "by": c.GetString("adminEmail"),
		})
		c.JSON(http.StatusOK, gin.H{"message": "allottee deallocated from room successfully", "room": room})
	})

	// Attendance
	g.GET("/attendance", func(c *gin.Context) {
		day, err := parseDay(c.Query("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date, entries, err := attendanceSvc.ForDay(c.Request.Context(), day)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "attendanceRecords": entries})
	})

	g.POST("/attendance", func(c *gin.Context) {
		var req struct {
			Records []attendance.Entry `json:"records"`
			Date    string             `json:"date"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		day, err := parseDay(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		result, err := attendanceSvc.RecordBatch(c.Request.Context(), req.Records, c.GetString("adminEmail"), day)
		if err != nil {
			respondErr(c, err)
			return
		}
		for _, item := range result.Results {
			if item.Success {
				metrics.AttendanceMarked.Inc()
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "attendance processed", "date": result.Day, "results": result.Results})
	})

	g.GET("/attendance/stats", func(c *gin.Context) {
		stats, err := attendanceSvc.TodayStats(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// Complaints
	g.POST("/complaints", func(c *gin.Context) {
		var req complaint.CreateParams
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cpl, err := complaintSvc.Create(c.Request.Context(), req)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.ComplaintsFiled.Inc()
		publishAudit(c.Request.Context(), q, "complaint", gin.H{
			"id": cpl.ID, "title": cpl.Title, "room": cpl.RoomNumber, "block": cpl.HostelBlock,
		})
		c.JSON(http.StatusCreated, cpl)
	})

	g.GET("/complaints", func(c *gin.Context) {
		list, err := complaintSvc.List(c.Request.Context(), c.Query("studentId"), complaint.Status(c.Query("status")))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"complaints": list})
	})

	g.GET("/complaints/:id", func(c *gin.Context) {
		cpl, err := complaintSvc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cpl)
	})

	g.PATCH("/complaints/:id", func(c *gin.Context) {
		var req struct {
			Status     string `json:"status"`
			Resolution string `json:"resolution"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cpl, err := complaintSvc.Update(c.Request.Context(), c.Param("id"), complaint.Status(req.Status), req.Resolution)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cpl)
	})

	g.DELETE("/complaints/:id", func(c *gin.Context) {
		if err := complaintSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "complaint deleted successfully"})
	})

	// Audit trail
	g.GET("/audit", func(c *gin.Context) {
		entries, err := auditRepo.Recent(c.Request.Context(), parseLimit(c.Query("limit")))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": entries})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// respondErr maps the error taxonomy onto HTTP status codes.
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthorized:
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseDay accepts YYYY-MM-DD or RFC3339; empty means "today".
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseLimit parses a positive result cap; 0 means "use the default".
func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func publishAudit(ctx context.Context, q queue.Queue, kind string, detail gin.H) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := q.Publish(ctx, queue.Event{Kind: kind, Detail: payload}); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
