package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentmarket/pkg/models"
)

var ErrConversationNotFound = fmt.Errorf("conversation %w", models.ErrNotFound)

type ConversationRepository interface {
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	FindConversationByOffer(ctx context.Context, offerID string) (models.Conversation, error)
	FindDirectConversation(ctx context.Context, userA, userB string) (models.Conversation, error)
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	CreateMessage(ctx context.Context, m models.Message) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) ([]models.ReadReceipt, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type postgresConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &postgresConversationRepository{pool: pool}
}

const conversationColumns = `c.id::text, c.type, c.property_id, c.offer_id::text, c.status, c.created_at, c.updated_at`

func scanConversation(row pgx.Row, extra ...any) (models.Conversation, error) {
	var (
		conv        models.Conversation
		typ, status string
	)
	dest := append([]any{&conv.ID, &typ, &conv.PropertyID, &conv.OfferID, &status, &conv.CreatedAt, &conv.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	conv.Type = models.ConversationType(typ)
	conv.Status = models.ConversationStatus(status)
	conv.Participants = make([]models.Participant, 0)
	return conv, nil
}

func (r *postgresConversationRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `,
                     (SELECT COUNT(*) FROM messages m
                       WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.is_read = FALSE)
              FROM conversations c
              JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
              ORDER BY c.updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := make([]models.Conversation, 0)
	for rows.Next() {
		var unread int
		conv, err := scanConversation(rows, &unread)
		if err != nil {
			return nil, err
		}
		conv.UnreadCount = unread
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachParticipants(ctx, convs); err != nil {
		return nil, err
	}
	if err := r.attachLastMessages(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func conversationIDs(convs []models.Conversation) ([]string, map[string]int) {
	ids := make([]string, len(convs))
	index := make(map[string]int, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
		index[c.ID] = i
	}
	return ids, index
}

func (r *postgresConversationRepository) attachParticipants(ctx context.Context, convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids, index := conversationIDs(convs)

	rows, err := r.pool.Query(ctx, `
		SELECT cp.conversation_id::text, cp.user_id::text, u.name, cp.role, cp.joined_at
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id::text = ANY($1::text[])
		ORDER BY cp.joined_at, u.name`, ids)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			convID, role string
			p            models.Participant
		)
		if err := rows.Scan(&convID, &p.UserID, &p.Name, &role, &p.JoinedAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		p.Role = models.ParticipantRole(role)
		i := index[convID]
		convs[i].Participants = append(convs[i].Participants, p)
	}
	return rows.Err()
}

func (r *postgresConversationRepository) attachLastMessages(ctx context.Context, convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids, index := conversationIDs(convs)

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (m.conversation_id) `+messageColumns+`
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		WHERE m.conversation_id::text = ANY($1::text[])
		ORDER BY m.conversation_id, m.created_at DESC`, ids)
	if err != nil {
		return fmt.Errorf("query last messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return fmt.Errorf("scan last message: %w", err)
		}
		convs[index[m.ConversationID]].LastMessage = &m
	}
	return rows.Err()
}

func (r *postgresConversationRepository) getOne(ctx context.Context, where string, args ...any) (models.Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE `+where+` LIMIT 1`, args...))
	if err != nil {
		return models.Conversation{}, err
	}
	convs := []models.Conversation{conv}
	if err := r.attachParticipants(ctx, convs); err != nil {
		return models.Conversation{}, err
	}
	return convs[0], nil
}

func (r *postgresConversationRepository) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	return r.getOne(ctx, `c.id = $1`, id)
}

func (r *postgresConversationRepository) FindConversationByOffer(ctx context.Context, offerID string) (models.Conversation, error) {
	return r.getOne(ctx, `c.offer_id = $1`, offerID)
}

func (r *postgresConversationRepository) FindDirectConversation(ctx context.Context, userA, userB string) (models.Conversation, error) {
	return r.getOne(ctx, `c.type = 'DIRECT'
		AND EXISTS (SELECT 1 FROM conversation_participants a WHERE a.conversation_id = c.id AND a.user_id = $1)
		AND EXISTS (SELECT 1 FROM conversation_participants b WHERE b.conversation_id = c.id AND b.user_id = $2)`, userA, userB)
}

func (r *postgresConversationRepository) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO conversations (id, type, property_id, offer_id, status, created_at, updated_at)
                           VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		conv.ID, string(conv.Type), conv.PropertyID, conv.OfferID, string(conv.Status))
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	for _, p := range conv.Participants {
		if _, err := tx.Exec(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
                                   VALUES ($1, $2, $3, NOW())`, conv.ID, p.UserID, string(p.Role)); err != nil {
			return models.Conversation{}, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Conversation{}, err
	}
	return r.GetConversation(ctx, conv.ID)
}

func (r *postgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`, conversationID, userID).Scan(&ok)
	return ok, err
}

const messageColumns = `m.id::text, m.conversation_id::text, m.sender_id::text, s.name, m.content, m.type,
       m.attachment_url, m.attachment_name, m.attachment_mime, m.attachment_size,
       m.is_read, m.read_at, m.reply_to_id::text, m.created_at, m.updated_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m                        models.Message
		typ                      string
		attURL, attName, attMime *string
		attSize                  *int64
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &typ,
		&attURL, &attName, &attMime, &attSize,
		&m.IsRead, &m.ReadAt, &m.ReplyToID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return models.Message{}, err
	}
	m.Type = models.MessageType(typ)
	if attURL != nil {
		m.Attachment = &models.Attachment{URL: *attURL}
		if attName != nil {
			m.Attachment.Name = *attName
		}
		if attMime != nil {
			m.Attachment.MimeType = *attMime
		}
		if attSize != nil {
			m.Attachment.Size = *attSize
		}
	}
	return m, nil
}

// ListMessages reads a newest-first page and returns it oldest first.
func (r *postgresConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, `SELECT `+messageColumns+`
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (r *postgresConversationRepository) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	var attURL, attName, attMime *string
	var attSize *int64
	if m.Attachment != nil {
		attURL, attName, attMime, attSize = &m.Attachment.URL, &m.Attachment.Name, &m.Attachment.MimeType, &m.Attachment.Size
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctxTimeout)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback(ctxTimeout)

	_, err = tx.Exec(ctxTimeout, `INSERT INTO messages (id, conversation_id, sender_id, content, type,
                                         attachment_url, attachment_name, attachment_mime, attachment_size,
                                         reply_to_id, created_at, updated_at)
                                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, string(m.Type),
		attURL, attName, attMime, attSize, m.ReplyToID, m.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctxTimeout, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("touch conversation: %w", err)
	}

	saved, err := scanMessage(tx.QueryRow(ctxTimeout, `SELECT `+messageColumns+`
		FROM messages m JOIN users s ON s.id = m.sender_id WHERE m.id = $1`, m.ID))
	if err != nil {
		return models.Message{}, err
	}
	return saved, tx.Commit(ctxTimeout)
}

// MarkRead flips unread messages not sent by the reader and returns only those
// that changed, so repeated calls produce no receipts.
func (r *postgresConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) ([]models.ReadReceipt, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, `
		UPDATE messages
		SET is_read = TRUE, read_at = $4, updated_at = $4
		WHERE conversation_id = $1
		  AND id::text = ANY($3::text[])
		  AND sender_id <> $2
		  AND is_read = FALSE
		RETURNING id::text, read_at`, conversationID, readerID, messageIDs, at)
	if err != nil {
		return nil, fmt.Errorf("mark messages as read: %w", err)
	}
	defer rows.Close()

	receipts := make([]models.ReadReceipt, 0, len(messageIDs))
	for rows.Next() {
		rr := models.ReadReceipt{ConversationID: conversationID}
		if err := rows.Scan(&rr.MessageID, &rr.ReadAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, rr)
	}
	return receipts, rows.Err()
}

func (r *postgresConversationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = $1
		WHERE m.sender_id <> $1 AND m.is_read = FALSE`, userID).Scan(&n)
	return n, err
}
