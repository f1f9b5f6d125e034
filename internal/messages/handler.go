package messages

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/ageniuscoder/relaychat/internal/httpx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sending and acknowledging messages happen over the websocket; REST only
// serves history.
type Service struct {
	DB  *sql.DB
	Log *zap.Logger
}

type pageReq struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func Register(rg *gin.RouterGroup, db *sql.DB, log *zap.Logger) {
	s := Service{DB: db, Log: log}
	rg.GET("/conversations/:id/messages", s.list)
}

func (s Service) list(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid := c.Param("id")

	var n int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=?`, cid, uid).Scan(&n)
	if n == 0 {
		httpx.Err(c, http.StatusForbidden, "not a participant")
		return
	}

	var q pageReq
	_ = c.BindQuery(&q)
	if q.Limit <= 0 {
		q.Limit = 50
	}

	rows, err := s.DB.Query(`
		SELECT m.id, m.sender_id, u.username, m.content, m.attachment, m.sent_at, m.edited_at, m.deleted
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id=?
		ORDER BY m.sent_at DESC LIMIT ? OFFSET ?`, cid, q.Limit, q.Offset)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	var list []gin.H
	for rows.Next() {
		var (
			id, sid, sentAt int64
			uname, content  string
			att             sql.NullString
			edited          sql.NullInt64
			deleted         bool
		)
		if err := rows.Scan(&id, &sid, &uname, &content, &att, &sentAt, &edited, &deleted); err != nil {
			s.Log.Warn("message row scan failed", zap.Error(err))
			continue
		}
		entry := gin.H{
			"id":              id,
			"sender_id":       sid,
			"sender_username": uname,
			"deleted":         deleted,
			"sent_at":         time.UnixMilli(sentAt).UTC().Format(time.RFC3339),
		}
		if !deleted {
			entry["content"] = content
			entry["attachment"] = att.String
		}
		if edited.Valid {
			entry["edited_at"] = time.UnixMilli(edited.Int64).UTC().Format(time.RFC3339)
		}
		list = append(list, entry)
	}
	httpx.OK(c, gin.H{"messages": list})
}
