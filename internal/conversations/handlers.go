package conversations

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/ageniuscoder/relaychat/internal/httpx"
	"github.com/ageniuscoder/relaychat/internal/hub"
	"github.com/ageniuscoder/relaychat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Service struct {
	DB  *sql.DB
	Hub *hub.Hub
	Log *zap.Logger
}

type privateReq struct {
	OtherUserID int64 `json:"other_user_id" binding:"required"`
}

type groupReq struct {
	Name      string  `json:"name" binding:"required"`
	MemberIDs []int64 `json:"member_ids"`
}

type addReq struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func Register(rg *gin.RouterGroup, db *sql.DB, h *hub.Hub, log *zap.Logger) {
	s := Service{DB: db, Hub: h, Log: log}
	rg.POST("/conversations/private", s.createOrGetPrivate)
	rg.POST("/conversations/group", s.createGroup)
	rg.POST("/conversations/:id/participants", s.addParticipant)
	rg.DELETE("/conversations/:id/participants/:userId", s.removeParticipant)
	rg.GET("/conversations", s.listMine)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return false
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s Service) createOrGetPrivate(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req privateReq
	if !bindJSON(c, &req) {
		return
	}

	// find existing conversation
	row := s.DB.QueryRow(`SELECT c.id FROM conversations c
		JOIN participants p1 ON p1.conversation_id=c.id AND p1.user_id=?
		JOIN participants p2 ON p2.conversation_id=c.id AND p2.user_id=?
		WHERE c.is_group_chat=0 LIMIT 1`, uid, req.OtherUserID)

	var id int64
	if err := row.Scan(&id); err == nil {
		httpx.OK(c, gin.H{"conversation_id": id, "is_group": false})
		return
	}

	tx, err := s.DB.Begin()
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "db transaction failed")
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO conversations (name, is_group_chat) VALUES (NULL, 0)`)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create conversation failed")
		return
	}
	id, _ = res.LastInsertId()

	// FK failure means the other user doesn't exist
	_, err = tx.Exec(`INSERT INTO participants (conversation_id, user_id, is_admin) VALUES (?, ?, 0), (?, ?, 0)`,
		id, uid, id, req.OtherUserID)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := tx.Commit(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "commit failed")
		return
	}

	s.Hub.NotifyConversationUpdate(id, "new_conversation")
	httpx.OK(c, gin.H{"conversation_id": id, "is_group": false})
}

func (s Service) createGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req groupReq
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.DB.Exec(`INSERT INTO conversations (name, is_group_chat) VALUES (?, 1)`, req.Name)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create group failed")
		return
	}
	cid, _ := res.LastInsertId()

	_, _ = s.DB.Exec(`INSERT INTO participants (conversation_id, user_id, is_admin) VALUES (?, ?, 1)`, cid, uid)
	for _, mid := range req.MemberIDs {
		if mid == uid {
			continue
		}
		_, _ = s.DB.Exec(`INSERT OR IGNORE INTO participants (conversation_id, user_id, is_admin) VALUES (?, ?, 0)`, cid, mid)
	}

	s.Hub.NotifyConversationUpdate(cid, "new_conversation")
	httpx.OK(c, gin.H{"conversation_id": cid, "is_group": true})
}

func (s Service) addParticipant(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid := c.Param("id")

	var n int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=? AND is_admin=1`, cid, uid).Scan(&n)
	if n == 0 {
		httpx.Err(c, http.StatusForbidden, "only admin can add participants")
		return
	}

	var req addReq
	if !bindJSON(c, &req) {
		return
	}

	if _, err := s.DB.Exec(`INSERT OR IGNORE INTO participants (conversation_id, user_id, is_admin) VALUES (?, ?, 0)`, cid, req.UserID); err != nil {
		httpx.Err(c, http.StatusBadRequest, "add failed")
		return
	}

	if id, err := strconv.ParseInt(cid, 10, 64); err == nil {
		s.Hub.NotifyConversationUpdate(id, "participant_added")
	}
	httpx.OK(c, gin.H{"ok": true})
}

func (s Service) removeParticipant(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid := c.Param("id")

	var n int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=? AND is_admin=1`, cid, uid).Scan(&n)
	if n == 0 {
		httpx.Err(c, http.StatusForbidden, "only admin can remove participants")
		return
	}
	if _, err := s.DB.Exec(`DELETE FROM participants WHERE conversation_id=? AND user_id=?`, cid, c.Param("userId")); err != nil {
		httpx.Err(c, http.StatusBadRequest, "remove failed")
		return
	}

	if id, err := strconv.ParseInt(cid, 10, 64); err == nil {
		s.Hub.NotifyConversationUpdate(id, "participant_removed")
	}
	httpx.OK(c, gin.H{"ok": true})
}

func (s Service) listMine(c *gin.Context) {
	uid := auth.MustUserID(c)

	rows, err := s.DB.Query(`
		SELECT c.id, c.name, c.is_group_chat, c.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.created_at DESC`, uid)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	defer rows.Close()

	var list []gin.H
	for rows.Next() {
		var (
			id   int64
			name sql.NullString
			isg  bool
			ca   string
		)
		if err := rows.Scan(&id, &name, &isg, &ca); err != nil {
			s.Log.Warn("conversation row scan failed", zap.Error(err))
			continue
		}
		list = append(list, gin.H{
			"id":         id,
			"name":       name.String,
			"is_group":   isg,
			"created_at": ca,
		})
	}
	if err := rows.Err(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "error reading conversation list")
		return
	}

	httpx.OK(c, gin.H{"conversations": list})
}
