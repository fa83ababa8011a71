package models

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignPublished CampaignStatus = "published"
	CampaignArchived  CampaignStatus = "archived"
)

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantApproved ParticipantStatus = "approved"
	ParticipantRejected ParticipantStatus = "rejected"
)

type Campaign struct {
	ID           string                `json:"id" db:"id"`
	Title        string                `json:"title" db:"title"`
	Description  string                `json:"description" db:"description"`
	BannerURL    string                `json:"bannerUrl,omitempty" db:"banner_url"`
	StartsAt     time.Time             `json:"startsAt" db:"starts_at"`
	EndsAt       time.Time             `json:"endsAt" db:"ends_at"`
	Status       CampaignStatus        `json:"status" db:"status"`
	CreatedBy    string                `json:"createdBy" db:"created_by"`
	CreatedAt    time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time             `json:"updatedAt" db:"updated_at"`
	Participants []CampaignParticipant `json:"participants" db:"-"`
}

// ActiveAt reports whether the campaign is visible to the public at t.
func (c Campaign) ActiveAt(t time.Time) bool {
	return c.Status == CampaignPublished && !t.Before(c.StartsAt) && t.Before(c.EndsAt)
}

type CampaignParticipant struct {
	CampaignID     string            `json:"campaignId" db:"campaign_id"`
	BusinessID     string            `json:"businessId" db:"business_id"`
	BusinessName   string            `json:"businessName,omitempty" db:"business_name"`
	OwnerID        string            `json:"-" db:"owner_id"`
	BusinessStatus BusinessStatus    `json:"-" db:"business_status"`
	Status         ParticipantStatus `json:"status" db:"status"`
	Discount       int               `json:"discount" db:"discount"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}
