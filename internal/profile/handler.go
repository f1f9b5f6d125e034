package profile

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/ageniuscoder/relaychat/internal/httpx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Service struct {
	DB  *sql.DB
	Log *zap.Logger
}

type updateReq struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

func Register(rg *gin.RouterGroup, db *sql.DB, log *zap.Logger) {
	s := Service{DB: db, Log: log}
	rg.GET("/me", s.getMe)
	rg.PUT("/me", s.updateMe)
}

func (s Service) getMe(c *gin.Context) {
	uid := auth.MustUserID(c)
	if uid == 0 {
		httpx.Err(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	row := s.DB.QueryRow(
		`SELECT id, username, phone_number, COALESCE(profile_pic, '') AS profile_pic, created_at
		FROM users WHERE id=?`, uid,
	)

	var id int64
	var username, phone, pic, created string
	if err := row.Scan(&id, &username, &phone, &pic, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Err(c, http.StatusNotFound, "user not found")
		} else {
			s.Log.Error("profile load failed", zap.Int64("user_id", uid), zap.Error(err))
			httpx.Err(c, http.StatusInternalServerError, "database error")
		}
		return
	}

	httpx.OK(c, gin.H{
		"id":              id,
		"username":        username,
		"phone_number":    phone,
		"profile_picture": pic,
		"created_at":      created,
	})
}

func (s Service) updateMe(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" && req.ProfilePicture == "" {
		httpx.Err(c, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Username != "" {
		if _, err := s.DB.Exec(`UPDATE users SET username=? WHERE id=?`, req.Username, uid); err != nil {
			httpx.Err(c, http.StatusConflict, "username taken")
			return
		}
	}
	if req.ProfilePicture != "" {
		if _, err := s.DB.Exec(`UPDATE users SET profile_pic=? WHERE id=?`, req.ProfilePicture, uid); err != nil {
			httpx.Err(c, http.StatusInternalServerError, "update failed")
			return
		}
	}
	httpx.OK(c, gin.H{"ok": true})
}
