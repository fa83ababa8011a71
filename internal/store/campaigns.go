package store

import (
	"context"
	"time"

	"tucomercio/internal/models"

	"github.com/lib/pq"
)

const campaignColumns = `id, title, description, banner_url, starts_at, ends_at, status, created_by, created_at, updated_at`

const participantSelect = `
	SELECT p.campaign_id, p.business_id, b.name AS business_name, b.owner_id, b.status AS business_status, p.status, p.discount, p.created_at
	FROM campaign_participants p JOIN businesses b ON b.id = p.business_id`

func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (:id, :title, :description, :banner_url, :starts_at, :ends_at, :status, :created_by, :created_at, :updated_at)`, c)
	return mapErr("create_campaign", "campaign", c.ID, err)
}

func (s *Store) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE campaigns SET title = :title, description = :description, banner_url = :banner_url,
			starts_at = :starts_at, ends_at = :ends_at, updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		return mapErr("update_campaign", "campaign", c.ID, err)
	}
	return requireRow(res, "campaign", c.ID)
}

func (s *Store) SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return mapErr("set_campaign_status", "campaign", id, err)
	}
	return requireRow(res, "campaign", id)
}

// GetCampaign loads the campaign with all participants.
func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id); err != nil {
		return nil, mapErr("get_campaign", "campaign", id, err)
	}
	c.Participants = []models.CampaignParticipant{}
	if err := s.db.SelectContext(ctx, &c.Participants, participantSelect+
		` WHERE p.campaign_id = $1 ORDER BY p.created_at`, id); err != nil {
		return nil, mapErr("list_participants", "campaign", id, err)
	}
	return &c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	queryArgs := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		queryArgs = append(queryArgs, status)
	}
	query += ` ORDER BY starts_at DESC`

	out := []models.Campaign{}
	if err := s.db.SelectContext(ctx, &out, query, queryArgs...); err != nil {
		return nil, mapErr("list_campaigns", "campaign", "", err)
	}
	return out, nil
}

// ListActiveCampaigns returns published campaigns running at now with their approved
// participants whose business is itself approved.
func (s *Store) ListActiveCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	campaigns := []models.Campaign{}
	err := s.db.SelectContext(ctx, &campaigns, `SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'published' AND starts_at <= $1 AND ends_at > $1
		ORDER BY ends_at`, now)
	if err != nil {
		return nil, mapErr("list_active_campaigns", "campaign", "", err)
	}
	if len(campaigns) == 0 {
		return campaigns, nil
	}

	ids := make([]string, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}
	participants := []models.CampaignParticipant{}
	err = s.db.SelectContext(ctx, &participants, participantSelect+`
		WHERE p.campaign_id = ANY($1) AND p.status = 'approved' AND b.status = 'approved'
		ORDER BY p.discount DESC`, pq.Array(ids))
	if err != nil {
		return nil, mapErr("list_active_participants", "campaign", "", err)
	}

	byCampaign := map[string][]models.CampaignParticipant{}
	for _, p := range participants {
		byCampaign[p.CampaignID] = append(byCampaign[p.CampaignID], p)
	}
	for i := range campaigns {
		campaigns[i].Participants = byCampaign[campaigns[i].ID]
		if campaigns[i].Participants == nil {
			campaigns[i].Participants = []models.CampaignParticipant{}
		}
	}
	return campaigns, nil
}

// UpsertParticipant adds the business to the campaign or updates its discount and status.
func (s *Store) UpsertParticipant(ctx context.Context, p models.CampaignParticipant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_participants (campaign_id, business_id, status, discount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (campaign_id, business_id) DO UPDATE SET status = EXCLUDED.status, discount = EXCLUDED.discount`,
		p.CampaignID, p.BusinessID, p.Status, p.Discount, p.CreatedAt)
	return mapErr("upsert_participant", "campaign", p.CampaignID, err)
}

func (s *Store) GetParticipant(ctx context.Context, campaignID, businessID string) (*models.CampaignParticipant, error) {
	var p models.CampaignParticipant
	err := s.db.GetContext(ctx, &p, participantSelect+` WHERE p.campaign_id = $1 AND p.business_id = $2`, campaignID, businessID)
	if err != nil {
		return nil, mapErr("get_participant", "participant", businessID, err)
	}
	return &p, nil
}

func (s *Store) SetParticipantStatus(ctx context.Context, campaignID, businessID string, status models.ParticipantStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_participants SET status = $3 WHERE campaign_id = $1 AND business_id = $2`,
		campaignID, businessID, status)
	if err != nil {
		return mapErr("set_participant_status", "participant", businessID, err)
	}
	return requireRow(res, "participant", businessID)
}

func (s *Store) RemoveParticipant(ctx context.Context, campaignID, businessID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaign_participants WHERE campaign_id = $1 AND business_id = $2`, campaignID, businessID)
	if err != nil {
		return mapErr("remove_participant", "participant", businessID, err)
	}
	return requireRow(res, "participant", businessID)
}
