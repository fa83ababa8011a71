package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"tucomercio/internal/cache"
	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"
	"tucomercio/internal/storage"
	"tucomercio/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var (
	admin   = auth.Principal{UserID: "admin-1", Name: "Admin", Role: models.RoleSuperAdmin}
	owner   = auth.Principal{UserID: "owner-1", Name: "Ana", Role: models.RoleBusiness}
	visitor = auth.Principal{UserID: "user-1", Name: "Bruno", Role: models.RoleUser}

	anonymous auth.Principal
)

// memStore is an in-memory stand-in for *store.Store.
type memStore struct {
	mu             sync.Mutex
	users          map[string]*models.User
	businesses     map[string]*models.Business
	plans          map[string]*models.Plan
	reviews        map[string]*models.Review
	favorites      map[[2]string]bool
	notifications  map[string]*models.Notification
	recipients     map[string]map[string]bool // notification -> user -> read
	chats          map[string]*models.Chat
	messages       []models.Message
	campaigns      map[string]*models.Campaign
	participants   map[[2]string]*models.CampaignParticipant
	promotions     map[string]*models.Promotion
	failCreateUser error
	failAssign     error
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*models.User{},
		businesses:    map[string]*models.Business{},
		plans:         map[string]*models.Plan{},
		reviews:       map[string]*models.Review{},
		favorites:     map[[2]string]bool{},
		notifications: map[string]*models.Notification{},
		recipients:    map[string]map[string]bool{},
		chats:         map[string]*models.Chat{},
		campaigns:     map[string]*models.Campaign{},
		participants:  map[[2]string]*models.CampaignParticipant{},
		promotions:    map[string]*models.Promotion{},
	}
}

func (m *memStore) addUser(id string, role models.Role) {
	m.users[id] = &models.User{ID: id, Email: id + "@example.com", DisplayName: id, Role: role}
}

func (m *memStore) addBusiness(id, ownerID string, status models.BusinessStatus) *models.Business {
	b := &models.Business{
		ID: id, OwnerID: ownerID, Name: "La Esquina " + id, Slug: "la-esquina-" + id,
		Status: status, Schedule: models.Schedule{}, Images: []string{},
	}
	m.businesses[id] = b
	return b
}

// --- businesses ---

func (m *memStore) CreateBusiness(_ context.Context, b *models.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := []string{}
	for _, other := range m.businesses {
		if other.OwnerID == b.OwnerID {
			return errors.NewConflictError("owner already has a business")
		}
		taken = append(taken, other.Slug)
	}
	b.Slug = store.UniqueSlug(b.Slug, taken)
	cp := *b
	m.businesses[b.ID] = &cp
	return nil
}

func (m *memStore) GetBusiness(_ context.Context, id string) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, errors.NewNotFoundError("business", id)
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBusinessBySlug(_ context.Context, slug string) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.businesses {
		if b.Slug == slug {
			cp := *b
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("business", slug)
}

func (m *memStore) GetBusinessByOwner(_ context.Context, ownerID string) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.businesses {
		if b.OwnerID == ownerID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("business", ownerID)
}

func (m *memStore) UpdateBusiness(_ context.Context, b *models.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[b.ID]; !ok {
		return errors.NewNotFoundError("business", b.ID)
	}
	cp := *b
	m.businesses[b.ID] = &cp
	return nil
}

func (m *memStore) SetBusinessStatus(_ context.Context, id string, from, next models.BusinessStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok || b.Status != from {
		return errors.NewConflictError("business status changed concurrently")
	}
	b.Status, b.StatusReason = next, reason
	return nil
}

func (m *memStore) SetBusinessPlan(_ context.Context, id string, planID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[id].PlanID = planID
	return nil
}

func (m *memStore) SetBusinessFeatured(_ context.Context, id string, featured bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[id].Featured = featured
	return nil
}

func (m *memStore) DeleteBusiness(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.businesses, id)
	return nil
}

func (m *memStore) ListBusinesses(_ context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Normalize()
	out := models.Page[models.BusinessSummary]{Items: []models.BusinessSummary{}, Page: f.Page, PageSize: f.PageSize}
	for _, b := range m.businesses {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out.Items = append(out.Items, models.BusinessSummary{ID: b.ID, Name: b.Name, Slug: b.Slug})
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	out.Total = len(out.Items)
	return out, nil
}

func (m *memStore) AssignBusinessOwner(_ context.Context, businessID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAssign != nil {
		return m.failAssign
	}
	b, ok := m.businesses[businessID]
	if !ok {
		return errors.NewNotFoundError("business", businessID)
	}
	b.OwnerID = userID
	if u, ok := m.users[userID]; ok {
		u.BusinessID = &businessID
		if u.Role == models.RoleUser {
			u.Role = models.RoleBusiness
		}
	}
	return nil
}

// --- plans ---

func (m *memStore) ListPlans(_ context.Context, activeOnly bool) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Plan{}
	for _, p := range m.plans {
		if !activeOnly || p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, errors.NewNotFoundError("plan", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreatePlan(_ context.Context, p *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.plans {
		if other.Name == p.Name {
			return errors.NewConflictError("plan name already exists")
		}
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePlan(_ context.Context, p *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return errors.NewNotFoundError("plan", p.ID)
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memStore) DeactivatePlan(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return errors.NewNotFoundError("plan", id)
	}
	p.Active = false
	return nil
}

func (m *memStore) PlanForBusiness(_ context.Context, businessID string) (models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok || b.PlanID == nil {
		return models.DefaultPlan, nil
	}
	return *m.plans[*b.PlanID], nil
}

// --- reviews ---

// refreshRating recomputes the business aggregate from the visible reviews. Caller holds mu.
func (m *memStore) refreshRating(businessID string) models.Rating {
	var totals models.RatingTotals
	for _, r := range m.reviews {
		if r.BusinessID == businessID && !r.Hidden {
			totals = totals.Apply(0, r.Rating)
		}
	}
	rating := totals.Rating()
	if b, ok := m.businesses[businessID]; ok {
		b.RatingAvg, b.RatingCount = rating.Avg, rating.Count
	}
	return rating
}

func (m *memStore) UpsertReview(_ context.Context, r models.Review) (*store.ReviewChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[r.BusinessID]; !ok {
		return nil, errors.NewNotFoundError("business", r.BusinessID)
	}
	created := true
	for _, existing := range m.reviews {
		if existing.BusinessID == r.BusinessID && existing.UserID == r.UserID {
			created = false
			r.ID, r.CreatedAt, r.Hidden = existing.ID, existing.CreatedAt, existing.Hidden
		}
	}
	cp := r
	m.reviews[r.ID] = &cp
	return &store.ReviewChange{Review: r, Rating: m.refreshRating(r.BusinessID), Created: created}, nil
}

func (m *memStore) DeleteReview(_ context.Context, id string) (*store.ReviewChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, errors.NewNotFoundError("review", id)
	}
	delete(m.reviews, id)
	return &store.ReviewChange{Review: *r, Rating: m.refreshRating(r.BusinessID)}, nil
}

func (m *memStore) SetReviewHidden(_ context.Context, id string, hidden bool) (*store.ReviewChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, errors.NewNotFoundError("review", id)
	}
	r.Hidden = hidden
	return &store.ReviewChange{Review: *r, Rating: m.refreshRating(r.BusinessID)}, nil
}

func (m *memStore) ReplyReview(_ context.Context, id, text string, at time.Time) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, errors.NewNotFoundError("review", id)
	}
	r.Reply, r.RepliedAt = text, &at
	cp := *r
	return &cp, nil
}

func (m *memStore) GetReview(_ context.Context, id string) (*models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, errors.NewNotFoundError("review", id)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListReviewsForBusiness(_ context.Context, businessID string, includeHidden bool, page, size int) (models.Page[models.Review], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.Review]{Items: []models.Review{}, Page: page, PageSize: size}
	for _, r := range m.reviews {
		if r.BusinessID == businessID && (includeHidden || !r.Hidden) {
			out.Items = append(out.Items, *r)
		}
	}
	out.Total = len(out.Items)
	return out, nil
}

func (m *memStore) ListReviewsByUser(_ context.Context, userID string) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// --- favorites ---

func (m *memStore) SetFavorite(_ context.Context, userID, businessID string, want *bool) (models.FavoriteState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return models.FavoriteState{}, errors.NewNotFoundError("business", businessID)
	}
	key := [2]string{userID, businessID}
	exists := m.favorites[key]
	target := !exists
	if want != nil {
		target = *want
	}
	switch {
	case target && !exists:
		m.favorites[key] = true
		b.FavoritesCount++
	case !target && exists:
		delete(m.favorites, key)
		b.FavoritesCount--
	}
	return models.FavoriteState{Favorite: target, Count: b.FavoritesCount}, nil
}

func (m *memStore) IsFavorite(_ context.Context, userID, businessID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites[[2]string{userID, businessID}], nil
}

func (m *memStore) ListFavorites(_ context.Context, userID string) ([]models.FavoriteBusiness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.FavoriteBusiness{}
	for key := range m.favorites {
		if key[0] == userID {
			b := m.businesses[key[1]]
			out = append(out, models.FavoriteBusiness{BusinessSummary: models.BusinessSummary{ID: b.ID, Name: b.Name}})
		}
	}
	return out, nil
}

// --- notifications ---

func (m *memStore) InsertNotification(_ context.Context, n *models.Notification, recipients []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	m.recipients[n.ID] = map[string]bool{}
	for _, uid := range recipients {
		m.recipients[n.ID][uid] = false
	}
	return nil
}

func (m *memStore) Feed(_ context.Context, userID string, page, size int) (models.Page[models.FeedItem], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.FeedItem]{Items: []models.FeedItem{}, Page: page, PageSize: size}
	for id, readers := range m.recipients {
		if read, ok := readers[userID]; ok {
			out.Items = append(out.Items, models.FeedItem{Notification: *m.notifications[id], Read: read})
		}
	}
	out.Total = len(out.Items)
	return out, nil
}

func (m *memStore) UnreadNotifications(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, readers := range m.recipients {
		if read, ok := readers[userID]; ok && !read {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, userID, notificationID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	read, ok := m.recipients[notificationID][userID]
	if !ok {
		return false, errors.NewNotFoundError("notification", notificationID)
	}
	m.recipients[notificationID][userID] = true
	return !read, nil
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, readers := range m.recipients {
		if read, ok := readers[userID]; ok && !read {
			readers[userID] = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteNotification(_ context.Context, userID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipients[notificationID][userID]; !ok {
		return errors.NewNotFoundError("notification", notificationID)
	}
	delete(m.recipients[notificationID], userID)
	return nil
}

func (m *memStore) recipientsOf(typ models.NotificationType) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for id, n := range m.notifications {
		if n.Type != typ {
			continue
		}
		for uid := range m.recipients[id] {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

// --- users ---

func (m *memStore) UserIDsByRole(_ context.Context, roles ...models.Role) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[models.Role]bool{}
	for _, r := range roles {
		want[r] = true
	}
	out := []string{}
	for id, u := range m.users {
		if !u.Disabled && (len(roles) == 0 || want[u.Role]) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateUser != nil {
		return m.failCreateUser
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return errors.NewNotFoundError("user", id)
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateProfile(_ context.Context, id, displayName, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user", id)
	}
	u.DisplayName, u.Phone = displayName, phone
	cp := *u
	return &cp, nil
}

func (m *memStore) SetUserDisabled(_ context.Context, id string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return errors.NewNotFoundError("user", id)
	}
	u.Disabled = disabled
	return nil
}

func (m *memStore) ListUsers(_ context.Context, role models.Role, page, size int) (models.Page[models.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.User]{Items: []models.User{}, Page: page, PageSize: size}
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out.Items = append(out.Items, *u)
		}
	}
	out.Total = len(out.Items)
	return out, nil
}

// --- chats ---

func (m *memStore) OpenChat(_ context.Context, c models.Chat, members []string) (*models.Chat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.chats {
		sameBusiness := (existing.BusinessID == nil && c.BusinessID == nil) ||
			(existing.BusinessID != nil && c.BusinessID != nil && *existing.BusinessID == *c.BusinessID)
		if existing.Type == c.Type && existing.OpenedBy == c.OpenedBy && sameBusiness {
			cp := *existing
			return &cp, false, nil
		}
	}
	c.Participants = append([]string{}, members...)
	c.Unread = map[string]int{}
	for _, uid := range members {
		c.Unread[uid] = 0
	}
	cp := c
	m.chats[c.ID] = &cp
	return &c, true, nil
}

func (m *memStore) GetChat(_ context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, errors.NewNotFoundError("chat", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) AppendMessage(_ context.Context, msg models.Message, extraMembers []string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[msg.ChatID]
	if !ok {
		return nil, errors.NewNotFoundError("chat", msg.ChatID)
	}
	for _, uid := range append([]string{msg.SenderID}, extraMembers...) {
		if _, member := c.Unread[uid]; !member {
			c.Participants = append(c.Participants, uid)
			c.Unread[uid] = 0
		}
	}
	for _, uid := range c.Participants {
		if uid != msg.SenderID {
			c.Unread[uid]++
		}
	}
	m.messages = append(m.messages, msg)
	c.LastMessage, c.LastSenderID, c.LastMessageAt = msg.Text, &msg.SenderID, &msg.CreatedAt

	cp := *c
	cp.Participants = append([]string{}, c.Participants...)
	cp.Unread = map[string]int{}
	for k, v := range c.Unread {
		cp.Unread[k] = v
	}
	return &cp, nil
}

func (m *memStore) MarkChatRead(_ context.Context, chatID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chats[chatID]
	n := int64(c.Unread[userID])
	c.Unread[userID] = 0
	return n, nil
}

func (m *memStore) ListChats(_ context.Context, userID string, allSupport bool) ([]models.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatSummary{}
	for _, c := range m.chats {
		if c.HasParticipant(userID) || (allSupport && c.Type == models.ChatSupport) {
			out = append(out, models.ChatSummary{Chat: *c, MyUnread: c.Unread[userID]})
		}
	}
	return out, nil
}

func (m *memStore) ListMessages(_ context.Context, chatID string, _ *time.Time, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) UnreadChatTotal(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chats {
		n += c.Unread[userID]
	}
	return n, nil
}

// --- campaigns ---

func (m *memStore) CreateCampaign(_ context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCampaign(_ context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) SetCampaignStatus(_ context.Context, id string, status models.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return errors.NewNotFoundError("campaign", id)
	}
	c.Status = status
	return nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, errors.NewNotFoundError("campaign", id)
	}
	cp := *c
	cp.Participants = []models.CampaignParticipant{}
	for key, p := range m.participants {
		if key[0] == id {
			part := *p
			part.OwnerID = m.businesses[p.BusinessID].OwnerID
			part.BusinessStatus = m.businesses[p.BusinessID].Status
			cp.Participants = append(cp.Participants, part)
		}
	}
	return &cp, nil
}

func (m *memStore) ListCampaigns(_ context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Campaign{}
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveCampaigns(_ context.Context, now time.Time) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Campaign{}
	for _, c := range m.campaigns {
		if c.ActiveAt(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) UpsertParticipant(_ context.Context, p models.CampaignParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[[2]string{p.CampaignID, p.BusinessID}] = &p
	return nil
}

func (m *memStore) GetParticipant(_ context.Context, campaignID, businessID string) (*models.CampaignParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[[2]string{campaignID, businessID}]
	if !ok {
		return nil, errors.NewNotFoundError("participant", businessID)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SetParticipantStatus(_ context.Context, campaignID, businessID string, status models.ParticipantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[[2]string{campaignID, businessID}]
	if !ok {
		return errors.NewNotFoundError("participant", businessID)
	}
	p.Status = status
	return nil
}

func (m *memStore) RemoveParticipant(_ context.Context, campaignID, businessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{campaignID, businessID}
	if _, ok := m.participants[key]; !ok {
		return errors.NewNotFoundError("participant", businessID)
	}
	delete(m.participants, key)
	return nil
}

// --- promotions ---

func (m *memStore) activePromotions(businessID, exceptID string, now time.Time) int {
	n := 0
	for _, p := range m.promotions {
		if p.BusinessID == businessID && p.ID != exceptID && p.Active && p.EndsAt.After(now) {
			n++
		}
	}
	return n
}

func (m *memStore) CreatePromotion(_ context.Context, p *models.Promotion, max int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Active && m.activePromotions(p.BusinessID, "", now) >= max {
		return errors.NewPlanLimitReachedError("promotions", max)
	}
	cp := *p
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePromotion(_ context.Context, p *models.Promotion, max int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Active && p.EndsAt.After(now) && m.activePromotions(p.BusinessID, p.ID, now) >= max {
		return errors.NewPlanLimitReachedError("promotions", max)
	}
	cp := *p
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memStore) GetPromotion(_ context.Context, id string) (*models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok {
		return nil, errors.NewNotFoundError("promotion", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) DeletePromotion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.promotions[id]; !ok {
		return errors.NewNotFoundError("promotion", id)
	}
	delete(m.promotions, id)
	return nil
}

func (m *memStore) ListPromotions(_ context.Context, businessID string, liveAt *time.Time) ([]models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Promotion{}
	for _, p := range m.promotions {
		if p.BusinessID == businessID && (liveAt == nil || p.LiveAt(*liveAt)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// --- collaborators ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) topics(typ string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev.Topic)
		}
	}
	return out
}

type startedProcess struct {
	processID string
	vars      map[string]interface{}
}

type recordingStarter struct {
	mu      sync.Mutex
	started []startedProcess
}

func (s *recordingStarter) StartProcess(_ context.Context, processID string, vars map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, startedProcess{processID: processID, vars: vars})
	return int64(len(s.started)), nil
}

type recordingSync struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordingSync) SyncBusiness(_ context.Context, businessID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, businessID)
	return nil
}

type presenceSet map[[2]string]bool

func (p presenceSet) IsSubscribed(_ context.Context, userID, topic string) (bool, error) {
	return p[[2]string{userID, topic}], nil
}

type countingViews struct {
	mu     sync.Mutex
	counts map[string]int
}

func (v *countingViews) Incr(_ context.Context, businessID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counts == nil {
		v.counts = map[string]int{}
	}
	v.counts[businessID]++
	return nil
}

type fakeUploads struct {
	deleted []string
}

func (f *fakeUploads) PresignUpload(_ context.Context, businessID string, kind storage.Kind, contentType string, _ int64) (*storage.Upload, error) {
	key := "businesses/" + businessID + "/" + string(kind) + "/new.jpg"
	return &storage.Upload{Key: key, UploadURL: "https://s3/" + key + "?sig", PublicURL: "https://cdn/" + key, ContentType: contentType}, nil
}

func (f *fakeUploads) KeyFromURL(url string) (string, bool) {
	const prefix = "https://cdn/"
	if len(url) <= len(prefix) || url[:len(prefix)] != prefix {
		return "", false
	}
	return url[len(prefix):], true
}

func (f *fakeUploads) Delete(_ context.Context, _ string, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

// harness wires every service over one memStore.
type harness struct {
	store    *memStore
	pub      *recordingPublisher
	starter  *recordingStarter
	index    *recordingSync
	views    *countingViews
	uploads  *fakeUploads
	presence presenceSet
	cache    *cache.Cache
	notify   *Notifications
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	h := &harness{
		store:    newMemStore(),
		pub:      &recordingPublisher{},
		starter:  &recordingStarter{},
		index:    &recordingSync{},
		views:    &countingViews{},
		uploads:  &fakeUploads{},
		presence: presenceSet{},
		cache:    cache.New(rdb, log),
	}
	h.notify = NewNotifications(h.store, h.pub, h.starter,
		config.NotificationConfig{EmailTypes: []string{string(models.NotifyBusinessApproved), string(models.NotifyWelcome)}},
		nil, log)
	h.notify.now = fixedClock
	return h
}

func (h *harness) businesses(t *testing.T) *Businesses {
	s := NewBusinesses(BusinessDeps{
		Store:    h.store,
		Search:   searchFunc(h.store.ListBusinesses),
		Views:    h.views,
		Uploads:  h.uploads,
		Index:    h.index,
		Notify:   h.notify,
		Cache:    h.cache,
		CacheTTL: time.Minute,
		Logger:   logger.NewTestLogger(t),
	})
	s.now = fixedClock
	return s
}

type searchFunc func(ctx context.Context, f models.BusinessFilter) (models.Page[models.BusinessSummary], error)

func (f searchFunc) Search(ctx context.Context, filter models.BusinessFilter) (models.Page[models.BusinessSummary], error) {
	return f(ctx, filter)
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.HasCode(err, code), "want %s, got %v", code, err)
}
