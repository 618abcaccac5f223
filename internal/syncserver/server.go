// Package syncserver is the self-hosted counterpart of the selfhosted
// backend client. It stores one snapshot per API token and performs the
// merge server-side with the same shared merge module the blob backends
// use on-device, so there is exactly one merge implementation.
package syncserver

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/entities"
	"github.com/okayu/mangasync/internal/snapshot"
	"github.com/okayu/mangasync/internal/syncer"
)

const tokenContextKey = "api_token"

// Server serves the sync exchange API.
type Server struct {
	db     *database.Database
	tokens *TokenStore
}

// NewServer creates a sync server over the given database.
func NewServer(db *database.Database) *Server {
	return &Server{
		db:     db,
		tokens: NewTokenStore(db.DB),
	}
}

// Tokens exposes the token store for CLI management commands.
func (s *Server) Tokens() *TokenStore {
	return s.tokens
}

// NewRouter builds the gin router with all sync endpoints.
func (s *Server) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	api.Use(s.authRequired())
	api.POST("/sync", s.handleExchange)
	api.GET("/sync", s.handleDownload)
	api.PUT("/sync", s.handleUpload)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	sqlDB, err := s.db.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// authRequired validates the bearer token and stashes it in the context.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, found := strings.CutPrefix(header, "Bearer ")
		if !found || presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := s.tokens.Verify(presented)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token lookup failed"})
			return
		}

		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// handleExchange merges the posted snapshot with the stored one,
// persists the result and returns it. update_required is set when the
// stored snapshot advanced past the client's last-synced epoch, meaning
// another device wrote since this client last applied.
func (s *Server) handleExchange(c *gin.Context) {
	token := c.MustGet(tokenContextKey).(*entities.APIToken)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	incoming, err := snapshot.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var record entities.SnapshotRecord
	err = s.db.DB.Where("token_id = ?", token.ID).First(&record).Error
	haveStored := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot lookup failed"})
		return
	}

	merged := incoming
	updateRequired := false
	if haveStored {
		stored, err := snapshot.Decode(record.Payload)
		if err != nil {
			// A corrupt stored snapshot must not wedge the account;
			// the incoming copy becomes the new baseline.
			log.Printf("syncserver: discarding corrupt stored snapshot for token %d: %v", token.ID, err)
		} else {
			merged = syncer.Merge(incoming, stored)
			updateRequired = record.SyncedEpoch > incoming.Sync.LastSyncedEpoch
		}
	}

	now := time.Now()
	merged.UpdateRequired = updateRequired
	merged.Sync = snapshot.NewStatus("completed", now)

	payload, err := merged.Encode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode snapshot"})
		return
	}

	record.TokenID = token.ID
	record.Payload = payload
	record.SyncedEpoch = now.UnixMilli()
	record.UpdatedAt = now
	if haveStored {
		err = s.db.DB.Save(&record).Error
	} else {
		err = s.db.DB.Create(&record).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store snapshot"})
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

// handleDownload returns the stored snapshot verbatim, 204 when the
// token has never synced.
func (s *Server) handleDownload(c *gin.Context) {
	token := c.MustGet(tokenContextKey).(*entities.APIToken)

	var record entities.SnapshotRecord
	err := s.db.DB.Where("token_id = ?", token.ID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot lookup failed"})
		return
	}

	c.Data(http.StatusOK, "application/json", record.Payload)
}

// handleUpload replaces the stored snapshot without merging.
func (s *Server) handleUpload(c *gin.Context) {
	token := c.MustGet(tokenContextKey).(*entities.APIToken)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if _, err := snapshot.Decode(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	var record entities.SnapshotRecord
	err = s.db.DB.Where("token_id = ?", token.ID).First(&record).Error
	haveStored := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot lookup failed"})
		return
	}

	record.TokenID = token.ID
	record.Payload = body
	record.SyncedEpoch = now.UnixMilli()
	record.UpdatedAt = now
	if haveStored {
		err = s.db.DB.Save(&record).Error
	} else {
		err = s.db.DB.Create(&record).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store snapshot"})
		return
	}

	c.Status(http.StatusNoContent)
}
