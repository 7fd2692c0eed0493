package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackStat is one row of a per-type feedback aggregation.
type FeedbackStat struct {
	FeedbackType string  `json:"type"`
	AvgScore     float64 `json:"avg_score"`
	Count        int     `json:"count"`
}

// FeedbackRecord is a feedback row joined with its message content, as
// exported by the backup handler.
type FeedbackRecord struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	FeedbackType   string    `json:"feedback_type"`
	FeedbackScore  float64   `json:"feedback_score"`
	CreatedAt      time.Time `json:"created_at"`
	MessageContent string    `json:"message_content"`
}

// ReportStore runs the maintenance and analytics queries behind the
// db_manager and support handlers. These touch the application tables
// (conversations, messages, feedback), not agent_tasks.
type ReportStore interface {
	// ArchiveConversationsOlderThan flags conversations older than the given
	// number of days as archived and returns how many were flagged.
	ArchiveConversationsOlderThan(ctx context.Context, days int) (int64, error)
	// RecentFeedback returns feedback joined with message content created
	// within the window.
	RecentFeedback(ctx context.Context, window time.Duration) ([]FeedbackRecord, error)
	// UserFeedbackStats aggregates a user's feedback by type.
	UserFeedbackStats(ctx context.Context, userID string) ([]FeedbackStat, error)
}

type reportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore wraps a pgxpool with the ReportStore interface.
func NewReportStore(pool *pgxpool.Pool) ReportStore {
	return &reportStore{pool: pool}
}

func (s *reportStore) ArchiveConversationsOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET is_archived = TRUE
		WHERE created_at < NOW() - make_interval(days => $1)
		  AND is_archived = FALSE
	`, days)
	if err != nil {
		return 0, fmt.Errorf("archive conversations older than %d days: %w", days, err)
	}
	return tag.RowsAffected(), nil
}

func (s *reportStore) RecentFeedback(ctx context.Context, window time.Duration) ([]FeedbackRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.message_id, f.feedback_type, f.feedback_score,
		       f.created_at, m.content
		FROM feedback f
		JOIN messages m ON f.message_id = m.id
		WHERE f.created_at >= NOW() - $1::interval
		ORDER BY f.created_at DESC
	`, window)
	if err != nil {
		return nil, fmt.Errorf("query recent feedback: %w", err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		if err := rows.Scan(
			&r.ID, &r.MessageID, &r.FeedbackType, &r.FeedbackScore,
			&r.CreatedAt, &r.MessageContent,
		); err != nil {
			return nil, fmt.Errorf("scan feedback record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *reportStore) UserFeedbackStats(ctx context.Context, userID string) ([]FeedbackStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.feedback_type, COALESCE(AVG(f.feedback_score), 0), COUNT(*)
		FROM feedback f
		JOIN messages m ON f.message_id = m.id
		JOIN conversations c ON m.conversation_id = c.id
		WHERE c.user_id = $1
		GROUP BY f.feedback_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query feedback stats for user %s: %w", userID, err)
	}
	defer rows.Close()

	var stats []FeedbackStat
	for rows.Next() {
		var st FeedbackStat
		if err := rows.Scan(&st.FeedbackType, &st.AvgScore, &st.Count); err != nil {
			return nil, fmt.Errorf("scan feedback stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
