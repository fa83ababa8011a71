package store

import (
	"context"
	"time"
)

type labelCount struct {
	Label string `db:"label"`
	Count int    `db:"count"`
}

func (s *Store) groupCount(ctx context.Context, op, query string) (map[string]int, error) {
	rows := []labelCount{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, mapErr(op, "stats", "", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.Count
	}
	return out, nil
}

func (s *Store) CountBusinessesByStatus(ctx context.Context) (map[string]int, error) {
	return s.groupCount(ctx, "count_businesses_by_status",
		`SELECT status AS label, COUNT(*) AS count FROM businesses GROUP BY status`)
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	return s.groupCount(ctx, "count_users_by_role",
		`SELECT role AS label, COUNT(*) AS count FROM users GROUP BY role`)
}

func (s *Store) CountReviews(ctx context.Context) (int, error) {
	n, err := count(ctx, s.db, `SELECT COUNT(*) FROM reviews WHERE NOT hidden`)
	return n, mapErr("count_reviews", "stats", "", err)
}

// CountOpenSupportChats counts support chats with messages no superadmin has read yet.
func (s *Store) CountOpenSupportChats(ctx context.Context) (int, error) {
	n, err := count(ctx, s.db, `
		SELECT COUNT(DISTINCT c.id)
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		JOIN users u ON u.id = m.user_id
		WHERE c.type = 'support' AND u.role = 'superadmin' AND m.unread > 0`)
	return n, mapErr("count_open_support_chats", "stats", "", err)
}

func (s *Store) CountActiveCampaigns(ctx context.Context, now time.Time) (int, error) {
	n, err := count(ctx, s.db,
		`SELECT COUNT(*) FROM campaigns WHERE status = 'published' AND starts_at <= $1 AND ends_at > $1`, now)
	return n, mapErr("count_active_campaigns", "stats", "", err)
}

// CountUnreadChats counts chats where the user has unread messages.
func (s *Store) CountUnreadChats(ctx context.Context, userID string) (int, error) {
	n, err := count(ctx, s.db, `SELECT COUNT(*) FROM chat_members WHERE user_id = $1 AND unread > 0`, userID)
	return n, mapErr("count_unread_chats", "stats", userID, err)
}
