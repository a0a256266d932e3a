package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maildeck/maildeck/internal/models"
)

// MessageStore handles message, label and association persistence on top of
// the base Store. Every mutating method runs as one transaction per logical
// operation, so concurrent writers (interactive path and reconciler) can
// interleave at message granularity without exposing half-written rows.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a message store from a base store
func NewMessageStore(store *Store) *MessageStore {
	if store == nil {
		return nil
	}
	return &MessageStore{db: store.DB()}
}

const messageColumns = `id, thread_id, from_address, to_address, subject, snippet, body_plain, body_html, internal_date, is_read`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.From, &m.To, &m.Subject, &m.Snippet,
		&m.BodyPlain, &m.BodyHTML, &m.InternalDate, &m.IsRead)
	return m, err
}

// UpsertMessages inserts or replaces each message by id and associates it
// with contextLabelID in addition to any labels already recorded for it.
// Re-applying the same snapshot is a no-op. Each message commits on its own
// so one bad item cannot abort the rest of a sync pass.
func (ms *MessageStore) UpsertMessages(ctx context.Context, msgs []models.Message, contextLabelID string) error {
	if ms == nil || ms.db == nil {
		return fmt.Errorf("message store not initialized")
	}
	for _, m := range msgs {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("upsert message: empty id")
		}
		if err := ms.upsertOne(ctx, m, contextLabelID); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return nil
}

func (ms *MessageStore) upsertOne(ctx context.Context, m models.Message, contextLabelID string) error {
	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO messages (id, thread_id, from_address, to_address, subject, snippet, body_plain, body_html, internal_date, is_read)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  thread_id=excluded.thread_id,
  from_address=excluded.from_address,
  to_address=excluded.to_address,
  subject=excluded.subject,
  snippet=excluded.snippet,
  body_plain=excluded.body_plain,
  body_html=excluded.body_html,
  internal_date=excluded.internal_date,
  is_read=excluded.is_read;
`, m.ID, m.ThreadID, m.From, m.To, m.Subject, m.Snippet, m.BodyPlain, m.BodyHTML, m.InternalDate, m.IsRead)
	if err == nil && contextLabelID != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?,?)`,
			m.ID, contextLabelID)
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteMessage removes the message, its associations and its index entry in
// one transaction. Deleting an absent id is not an error.
func (ms *MessageStore) DeleteMessage(ctx context.Context, id string) error {
	if ms == nil || ms.db == nil {
		return fmt.Errorf("message store not initialized")
	}
	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Explicit two-step delete; the FTS trigger fires on the row delete.
	if _, err = tx.ExecContext(ctx, `DELETE FROM message_labels WHERE message_id=?`, id); err == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE id=?`, id)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return tx.Commit()
}

// AddLabel associates a label with a message (idempotent)
func (ms *MessageStore) AddLabel(ctx context.Context, messageID, labelID string) error {
	_, err := ms.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?,?)`,
		messageID, labelID)
	if err != nil {
		return fmt.Errorf("add label %s to %s: %w", labelID, messageID, err)
	}
	return nil
}

// RemoveLabel removes a label association from a message (idempotent)
func (ms *MessageStore) RemoveLabel(ctx context.Context, messageID, labelID string) error {
	_, err := ms.db.ExecContext(ctx,
		`DELETE FROM message_labels WHERE message_id=? AND label_id=?`,
		messageID, labelID)
	if err != nil {
		return fmt.Errorf("remove label %s from %s: %w", labelID, messageID, err)
	}
	return nil
}

// MessageLabels returns the label ids currently associated with a message
func (ms *MessageStore) MessageLabels(ctx context.Context, messageID string) ([]string, error) {
	rows, err := ms.db.QueryContext(ctx,
		`SELECT label_id FROM message_labels WHERE message_id=? ORDER BY label_id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("message labels: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplaceLabels swaps the label table wholesale in one transaction. Labels
// are few and cheap to refresh in full on every sync pass.
func (ms *MessageStore) ReplaceLabels(ctx context.Context, labels []models.Label) error {
	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM labels`); err == nil {
		for _, l := range labels {
			if _, err = tx.ExecContext(ctx, `
INSERT INTO labels (id, name, type, color_foreground, color_background)
VALUES (?,?,?,?,?)`, l.ID, l.Name, l.Type, l.ColorForeground, l.ColorBackground); err != nil {
				break
			}
		}
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("replace labels: %w", err)
	}
	return tx.Commit()
}

// Labels returns all cached labels, INBOX first, then by name
func (ms *MessageStore) Labels(ctx context.Context) ([]models.Label, error) {
	rows, err := ms.db.QueryContext(ctx, `
SELECT id, name, type, COALESCE(color_foreground,''), COALESCE(color_background,'')
FROM labels
ORDER BY CASE WHEN id='INBOX' THEN 0 ELSE 1 END, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()
	var out []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.ColorForeground, &l.ColorBackground); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MessagesByLabel returns messages carrying the label, one row per thread,
// newest first (original client behavior: a thread is represented by its
// most recent message).
func (ms *MessageStore) MessagesByLabel(ctx context.Context, labelID string, limit, offset int64) ([]models.Message, error) {
	rows, err := ms.db.QueryContext(ctx, `
SELECT m.id, m.thread_id, m.from_address, m.to_address, m.subject, m.snippet,
       m.body_plain, m.body_html, MAX(m.internal_date) AS latest_date, m.is_read
FROM messages m
JOIN message_labels ml ON m.id = ml.message_id
WHERE ml.label_id = ?
GROUP BY m.thread_id
ORDER BY latest_date DESC
LIMIT ? OFFSET ?`, labelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("messages by label %s: %w", labelID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MessagesByThread returns every message sharing the thread id, newest first
func (ms *MessageStore) MessagesByThread(ctx context.Context, threadID string) ([]models.Message, error) {
	rows, err := ms.db.QueryContext(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE thread_id = ?
ORDER BY internal_date DESC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("messages by thread %s: %w", threadID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Search runs a full-text query over subject/from/snippet/body and returns
// matches in the index's relevance order.
func (ms *MessageStore) Search(ctx context.Context, term string) ([]models.Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	// Quote each token so FTS5 operators in user input cannot break the query
	fields := strings.Fields(term)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	match := strings.Join(fields, " ")

	rows, err := ms.db.QueryContext(ctx, `
SELECT m.id, m.thread_id, m.from_address, m.to_address, m.subject, m.snippet,
       m.body_plain, m.body_html, m.internal_date, m.is_read
FROM messages_fts f
JOIN messages m ON m.rowid = f.rowid
WHERE messages_fts MATCH ?
ORDER BY rank`, match)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SetRead updates the read flag of a message
func (ms *MessageStore) SetRead(ctx context.Context, id string, read bool) error {
	_, err := ms.db.ExecContext(ctx, `UPDATE messages SET is_read=? WHERE id=?`, read, id)
	if err != nil {
		return fmt.Errorf("set read %s: %w", id, err)
	}
	return nil
}

// MessageExists reports whether a message id is present in the cache
func (ms *MessageStore) MessageExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := ms.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message exists %s: %w", id, err)
	}
	return true, nil
}

// MessageDate returns the internal date of a cached message, or ok=false if
// the id is absent.
func (ms *MessageStore) MessageDate(ctx context.Context, id string) (int64, bool, error) {
	var date int64
	err := ms.db.QueryRowContext(ctx, `SELECT internal_date FROM messages WHERE id=?`, id).Scan(&date)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("message date %s: %w", id, err)
	}
	return date, true, nil
}

// MessageRefsByLabel returns (id, internal date) pairs for locally cached
// messages under a label, newest first. The reconciler uses this window to
// confirm remote removals.
func (ms *MessageStore) MessageRefsByLabel(ctx context.Context, labelID string, limit int64) ([]models.MessageRef, error) {
	rows, err := ms.db.QueryContext(ctx, `
SELECT m.id, m.internal_date
FROM messages m
JOIN message_labels ml ON m.id = ml.message_id
WHERE ml.label_id = ?
ORDER BY m.internal_date DESC
LIMIT ?`, labelID, limit)
	if err != nil {
		return nil, fmt.Errorf("message refs by label %s: %w", labelID, err)
	}
	defer rows.Close()
	var out []models.MessageRef
	for rows.Next() {
		var r models.MessageRef
		if err := rows.Scan(&r.ID, &r.InternalDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
