package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type BusinessStatus string

const (
	BusinessPending   BusinessStatus = "pending"
	BusinessApproved  BusinessStatus = "approved"
	BusinessRejected  BusinessStatus = "rejected"
	BusinessSuspended BusinessStatus = "suspended"
)

var businessTransitions = map[BusinessStatus][]BusinessStatus{
	BusinessPending:   {BusinessApproved, BusinessRejected},
	BusinessApproved:  {BusinessSuspended},
	BusinessSuspended: {BusinessApproved},
	BusinessRejected:  {BusinessApproved},
}

// CanTransition reports whether an admin may move a business from s to next.
func (s BusinessStatus) CanTransition(next BusinessStatus) bool {
	for _, allowed := range businessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Business struct {
	ID             string         `json:"id" db:"id"`
	OwnerID        string         `json:"ownerId" db:"owner_id"`
	Name           string         `json:"name" db:"name"`
	Slug           string         `json:"slug" db:"slug"`
	Description    string         `json:"description" db:"description"`
	Category       string         `json:"category" db:"category"`
	Department     string         `json:"department" db:"department"`
	City           string         `json:"city" db:"city"`
	Address        string         `json:"address" db:"address"`
	Phone          string         `json:"phone,omitempty" db:"phone"`
	WhatsApp       string         `json:"whatsapp,omitempty" db:"whatsapp"`
	Email          string         `json:"email,omitempty" db:"email"`
	Website        string         `json:"website,omitempty" db:"website"`
	Instagram      string         `json:"instagram,omitempty" db:"instagram"`
	Facebook       string         `json:"facebook,omitempty" db:"facebook"`
	LogoURL        string         `json:"logoUrl,omitempty" db:"logo_url"`
	Images         pq.StringArray `json:"images" db:"images"`
	Schedule       Schedule       `json:"schedule" db:"schedule"`
	Status         BusinessStatus `json:"status" db:"status"`
	StatusReason   string         `json:"statusReason,omitempty" db:"status_reason"`
	PlanID         *string        `json:"planId,omitempty" db:"plan_id"`
	Featured       bool           `json:"featured" db:"featured"`
	RatingAvg      float64        `json:"ratingAvg" db:"rating_avg"`
	RatingCount    int            `json:"ratingCount" db:"rating_count"`
	FavoritesCount int            `json:"favoritesCount" db:"favorites_count"`
	ViewCount      int64          `json:"viewCount" db:"view_count"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// BusinessSummary is the card shown in listings and favorites.
type BusinessSummary struct {
	ID             string  `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	Slug           string  `json:"slug" db:"slug"`
	Category       string  `json:"category" db:"category"`
	City           string  `json:"city" db:"city"`
	LogoURL        string  `json:"logoUrl,omitempty" db:"logo_url"`
	RatingAvg      float64 `json:"ratingAvg" db:"rating_avg"`
	RatingCount    int     `json:"ratingCount" db:"rating_count"`
	FavoritesCount int     `json:"favoritesCount" db:"favorites_count"`
	Featured       bool    `json:"featured" db:"featured"`
}

type BusinessFilter struct {
	Category   string
	Department string
	City       string
	Featured   *bool
	Text       string
	// Status is only honored for admin listings; public listings force approved.
	Status   BusinessStatus
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f *BusinessFilter) Normalize() {
	f.Page, f.PageSize = NormalizePage(f.Page, f.PageSize)
}

func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// TimeRange is an opening window in "HH:MM" local time. Close before Open spans midnight.
type TimeRange struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Schedule maps lowercase English weekday names to opening windows.
type Schedule map[string][]TimeRange

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

func (s *Schedule) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = Schedule{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule type %T", src)
	}
	out := Schedule{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// Validate checks every window parses.
func (s Schedule) Validate() error {
	for day, ranges := range s {
		if _, ok := weekdays[day]; !ok {
			return fmt.Errorf("unknown weekday %q", day)
		}
		for _, r := range ranges {
			if _, err := parseClock(r.Open); err != nil {
				return fmt.Errorf("%s: %w", day, err)
			}
			if _, err := parseClock(r.Close); err != nil {
				return fmt.Errorf("%s: %w", day, err)
			}
		}
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func dayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// IsOpenAt reports whether t, converted to loc, falls inside an opening window.
func (s Schedule) IsOpenAt(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	now := t.Hour()*60 + t.Minute()

	for _, r := range s[dayName(t.Weekday())] {
		open, errO := parseClock(r.Open)
		closeAt, errC := parseClock(r.Close)
		if errO != nil || errC != nil {
			continue
		}
		if closeAt > open {
			if now >= open && now < closeAt {
				return true
			}
		} else if now >= open {
			return true
		}
	}

	// Overnight windows that started yesterday.
	for _, r := range s[dayName(t.AddDate(0, 0, -1).Weekday())] {
		open, errO := parseClock(r.Open)
		closeAt, errC := parseClock(r.Close)
		if errO != nil || errC != nil {
			continue
		}
		if closeAt <= open && now < closeAt {
			return true
		}
	}
	return false
}

func parseClock(v string) (int, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	return h*60 + m, nil
}
