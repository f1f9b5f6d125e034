package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store is the single repository both the REST shell and the hub talk to.
// It presents one canonical shape regardless of the backing driver.
type Store struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	mirror *PresenceMirror
	log    *zap.Logger
}

type Option func(*Store)

// WithPresenceMirror attaches an optional Redis mirror of online state.
func WithPresenceMirror(m *PresenceMirror) Option {
	return func(s *Store) { s.mirror = m }
}

func New(db *sql.DB, driver string, log *zap.Logger, opts ...Option) *Store {
	s := &Store{db: db, driver: driver, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// q rewrites ? placeholders to $n for the postgres driver.
func (s *Store) q(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *Store) Conversation(ctx context.Context, id int64) (Conversation, error) {
	var c Conversation
	var name sql.NullString
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, name, is_group_chat, last_message_id FROM conversations WHERE id=?`), id).
		Scan(&c.ID, &name, &c.IsGroup, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	c.Name = name.String
	c.LastMessageID = last.Int64
	return c, nil
}

func (s *Store) IsMember(ctx context.Context, convID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=?`), convID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return n > 0, nil
}

func (s *Store) MembersOf(ctx context.Context, convID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT user_id FROM participants WHERE conversation_id=?`), convID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (s *Store) UserIDByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id FROM users WHERE phone_number=?`), phone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user by phone: %w", err)
	}
	return id, nil
}

func (s *Store) UsernameOf(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT username FROM users WHERE id=?`), userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

// FindOrCreateDirect returns the direct conversation between two users,
// creating it inside a transaction when absent.
func (s *Store) FindOrCreateDirect(ctx context.Context, a, b int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT c.id FROM conversations c
		JOIN participants p1 ON p1.conversation_id=c.id AND p1.user_id=?
		JOIN participants p2 ON p2.conversation_id=c.id AND p2.user_id=?
		WHERE c.is_group_chat=0 LIMIT 1`), a, b).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find direct conversation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if s.driver == "postgres" {
		err = tx.QueryRowContext(ctx,
			s.q(`INSERT INTO conversations (name, is_group_chat) VALUES (NULL, 0) RETURNING id`)).Scan(&id)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `INSERT INTO conversations (name, is_group_chat) VALUES (NULL, 0)`)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("create direct conversation: %w", err)
	}

	// FK failure here means the peer user does not exist
	if _, err := tx.ExecContext(ctx,
		s.q(`INSERT INTO participants (conversation_id, user_id, is_admin) VALUES (?, ?, 0), (?, ?, 0)`),
		id, a, id, b); err != nil {
		return 0, fmt.Errorf("add direct participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *Message) error {
	if m.SentAt == 0 {
		m.SentAt = NowMillis()
	}
	var err error
	if s.driver == "postgres" {
		err = s.db.QueryRowContext(ctx,
			s.q(`INSERT INTO messages (conversation_id, sender_id, content, attachment, client_id, sent_at)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			m.ConversationID, m.SenderID, m.Content, m.Attachment, m.ClientID, m.SentAt).Scan(&m.ID)
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, sender_id, content, attachment, client_id, sent_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ConversationID, m.SenderID, m.Content, m.Attachment, m.ClientID, m.SentAt)
		if err == nil {
			m.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE conversations SET last_message_id=? WHERE id=?`), m.ID, m.ConversationID); err != nil {
		s.log.Warn("update last message pointer failed",
			zap.Int64("conversation_id", m.ConversationID), zap.Error(err))
	}
	return nil
}

func (s *Store) MessageByID(ctx context.Context, id int64) (Message, error) {
	var m Message
	var att, cid sql.NullString
	var edited sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, conversation_id, sender_id, content, attachment, client_id, sent_at, edited_at, deleted
		 FROM messages WHERE id=?`), id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &att, &cid, &m.SentAt, &edited, &m.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("load message: %w", err)
	}
	m.Attachment = att.String
	m.ClientID = cid.String
	m.EditedAt = edited.Int64
	return m, nil
}

func (s *Store) EditMessage(ctx context.Context, id int64, content string, editedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE messages SET content=?, edited_at=? WHERE id=? AND deleted=0`), content, editedAt, id)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// DeleteMessage sets the tombstone flag; rows are never physically removed.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE messages SET deleted=1, content='' WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// AdvanceCursor applies a set-if-greater update to one watermark and reports
// whether it advanced, plus the previous value. The UPDATE carries the
// comparison so concurrent receipts from multiple devices cannot move the
// watermark backward.
func (s *Store) AdvanceCursor(ctx context.Context, convID, userID int64, c Cursor, ts int64) (bool, int64, error) {
	col := string(c)
	var prev int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+col+` FROM participants WHERE conversation_id=? AND user_id=?`), convID, userID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, ErrNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("read cursor: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE participants SET `+col+`=? WHERE conversation_id=? AND user_id=? AND `+col+`<?`),
		ts, convID, userID, ts)
	if err != nil {
		return false, 0, fmt.Errorf("advance cursor: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, prev, nil
}

// SendersBetween lists the distinct senders of messages in (after, upto]
// excluding the given user. Used to scope "delivered/read up to T" events.
func (s *Store) SendersBetween(ctx context.Context, convID, exclude, after, upto int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT DISTINCT sender_id FROM messages
		 WHERE conversation_id=? AND sender_id<>? AND sent_at>? AND sent_at<=?`),
		convID, exclude, after, upto)
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

// CatchUpCandidates lists conversations the user is a current member of that
// hold messages from others newer than the user's delivered watermark.
func (s *Store) CatchUpCandidates(ctx context.Context, userID int64) ([]CatchUp, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT m.conversation_id, MAX(m.sent_at)
		 FROM messages m
		 JOIN participants p ON p.conversation_id=m.conversation_id AND p.user_id=?
		 WHERE m.sender_id<>? AND m.sent_at>p.delivered_up_to
		 GROUP BY m.conversation_id`),
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("catch-up scan: %w", err)
	}
	defer rows.Close()

	var out []CatchUp
	for rows.Next() {
		var c CatchUp
		if err := rows.Scan(&c.ConversationID, &c.Latest); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetUserOnline persists the online flag and last-active time, and mirrors
// the transition to Redis when a mirror is configured. Mirror failures are
// logged, never returned: the in-process state stays authoritative.
func (s *Store) SetUserOnline(ctx context.Context, userID int64, online bool, atMillis int64) error {
	flag := 0
	if online {
		flag = 1
	}
	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE users SET is_online=?, last_active=? WHERE id=?`), flag, atMillis, userID); err != nil {
		return fmt.Errorf("persist online flag: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Set(ctx, userID, online, atMillis); err != nil {
			s.log.Warn("presence mirror update failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Peers lists every user sharing at least one conversation with the subject,
// with their persisted presence.
func (s *Store) Peers(ctx context.Context, userID int64) ([]Peer, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT DISTINCT u.id, u.username, u.last_active, u.is_online
		 FROM participants p1
		 JOIN participants p2 ON p1.conversation_id = p2.conversation_id
		 JOIN users u ON u.id = p2.user_id
		 WHERE p1.user_id = ? AND p2.user_id <> ?`),
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	defer rows.Close()

	var out []Peer
	for rows.Next() {
		var p Peer
		if err := rows.Scan(&p.ID, &p.Username, &p.LastActive, &p.IsOnline); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LogCall(ctx context.Context, r CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO calls (id, caller_id, callee_id, kind, outcome, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.CallerID, r.CalleeID, r.Kind, r.Outcome, r.StartedAt, r.EndedAt)
	if err != nil {
		return fmt.Errorf("log call: %w", err)
	}
	return nil
}
