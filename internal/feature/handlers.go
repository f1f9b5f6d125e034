package feature

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ageniuscoder/relaychat/internal/httpx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Service struct {
	DB  *sql.DB
	Log *zap.Logger
}

func Register(rg *gin.RouterGroup, db *sql.DB, log *zap.Logger) {
	s := Service{DB: db, Log: log}
	rg.GET("/users/:id/last-seen", s.getLastSeen)
	rg.GET("/users/search", s.searchUsers)
}

func (s Service) searchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		httpx.Err(c, http.StatusBadRequest, "query parameter is required")
		return
	}

	rows, err := s.DB.Query(`SELECT id, username, profile_pic FROM users WHERE username LIKE ? LIMIT 10`, "%"+query+"%")
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "database query failed")
		return
	}
	defer rows.Close()

	var users []gin.H
	for rows.Next() {
		var (
			id         int64
			username   string
			profilePic sql.NullString
		)
		if err := rows.Scan(&id, &username, &profilePic); err != nil {
			continue
		}
		users = append(users, gin.H{
			"id":              id,
			"username":        username,
			"profile_picture": profilePic.String,
		})
	}

	httpx.OK(c, gin.H{"users": users})
}

func (s Service) getLastSeen(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid user id")
		return
	}

	row := s.DB.QueryRow(`SELECT is_online, last_active FROM users WHERE id=?`, userID)
	var online bool
	var lastActive int64
	if err := row.Scan(&online, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Err(c, http.StatusNotFound, "user not found")
		} else {
			s.Log.Error("last-seen lookup failed", zap.Int64("user_id", userID), zap.Error(err))
			httpx.Err(c, http.StatusInternalServerError, "database error")
		}
		return
	}

	httpx.OK(c, gin.H{
		"online":    online,
		"last_seen": time.UnixMilli(lastActive).UTC().Format(time.RFC3339),
	})
}
