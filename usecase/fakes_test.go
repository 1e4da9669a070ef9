package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"echotree/domain/model"
	"echotree/domain/repository"
	"echotree/infrastructure/adapters"
)

// memPosts is an in-memory repository.IPost with the same guards as the SQL store.
type memPosts struct {
	mu         sync.Mutex
	nextPost   int64
	nextDeliv  int64
	posts      map[int64]*model.Post
	deliveries map[int64]*model.Delivery
	accounts   *memAccounts
	audits     []*model.DeliveryAudit

	// markSentErr, when set, fails the next MarkSent.
	markSentErr error
}

func newMemPosts(accounts *memAccounts) *memPosts {
	return &memPosts{posts: map[int64]*model.Post{}, deliveries: map[int64]*model.Delivery{}, accounts: accounts}
}

func (m *memPosts) CreateWithDeliveries(_ context.Context, post *model.Post, accountIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPost++
	p := *post
	p.ID = m.nextPost
	p.Status = model.PostStatusScheduled
	m.posts[p.ID] = &p
	for _, id := range model.UniqueIDs(accountIDs) {
		m.addDelivery(p.ID, id)
	}
	post.ID = p.ID
	return p.ID, nil
}

func (m *memPosts) addDelivery(postID, accountID int64) {
	m.nextDeliv++
	m.deliveries[m.nextDeliv] = &model.Delivery{ID: m.nextDeliv, PostID: postID, AccountID: accountID, Status: model.DeliveryStatusPending}
}

func (m *memPosts) GetByID(_ context.Context, postID int64) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) filterPosts(keep func(*model.Post) bool) []*model.Post {
	var out []*model.Post
	for _, p := range m.posts {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memPosts) ListDue(_ context.Context, now time.Time) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterPosts(func(p *model.Post) bool {
		return p.Status == model.PostStatusScheduled && !p.ScheduledAt.After(now)
	}), nil
}

func (m *memPosts) ListScheduled(_ context.Context) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterPosts(func(p *model.Post) bool { return p.Status == model.PostStatusScheduled }), nil
}

func (m *memPosts) editable(postID int64) (*model.Post, error) {
	p, ok := m.posts[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != model.PostStatusScheduled {
		return nil, repository.ErrNotEditable
	}
	return p, nil
}

func (m *memPosts) UpdateScheduled(_ context.Context, postID int64, comment string, scheduledAt time.Time, accountIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.editable(postID)
	if err != nil {
		return err
	}
	p.Comment, p.ScheduledAt = comment, scheduledAt
	var existing []model.Delivery
	for _, d := range m.deliveries {
		if d.PostID == postID {
			existing = append(existing, *d)
		}
	}
	diff := model.DiffDeliveries(existing, accountIDs)
	for _, id := range diff.Remove {
		delete(m.deliveries, id)
	}
	for _, id := range diff.Add {
		m.addDelivery(postID, id)
	}
	return nil
}

func (m *memPosts) Cancel(_ context.Context, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.editable(postID)
	if err != nil {
		return err
	}
	p.Status = model.PostStatusCancelled
	for id, d := range m.deliveries {
		if d.PostID == postID && d.Status != model.DeliveryStatusSent {
			delete(m.deliveries, id)
		}
	}
	return nil
}

func (m *memPosts) FinalizeStatus(_ context.Context, postID int64, status model.PostStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[postID]; ok && p.Status == model.PostStatusScheduled {
		p.Status = status
	}
	return nil
}

func (m *memPosts) ListDeliveries(_ context.Context, postID int64) ([]*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Delivery
	for _, d := range m.deliveries {
		if d.PostID == postID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPosts) ListSelectable(ctx context.Context, postID int64) ([]*model.DeliveryTarget, error) {
	all, _ := m.ListDeliveries(ctx, postID)
	var out []*model.DeliveryTarget
	for _, d := range all {
		if d.Status == model.DeliveryStatusSent {
			continue
		}
		a, err := m.accounts.GetByID(ctx, d.AccountID)
		if err != nil || !a.IsActive {
			continue
		}
		out = append(out, &model.DeliveryTarget{Delivery: *d, Account: *a})
	}
	return out, nil
}

func (m *memPosts) CountDeliveries(ctx context.Context, postID int64) (model.DeliveryCounts, error) {
	all, _ := m.ListDeliveries(ctx, postID)
	var c model.DeliveryCounts
	for _, d := range all {
		switch d.Status {
		case model.DeliveryStatusPending:
			c.Pending++
		case model.DeliveryStatusSent:
			c.Sent++
		case model.DeliveryStatusFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (m *memPosts) MarkSent(ctx context.Context, deliveryID int64, externalID string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markSentErr; err != nil {
		m.markSentErr = nil
		return err
	}
	d, ok := m.deliveries[deliveryID]
	if !ok || d.Status == model.DeliveryStatusSent {
		return nil
	}
	d.Status, d.ExternalID, d.SentAt, d.ErrorMessage = model.DeliveryStatusSent, &externalID, &sentAt, nil
	d.AttemptCount++
	return nil
}

func (m *memPosts) MarkFailed(ctx context.Context, deliveryID int64, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[deliveryID]
	if !ok || d.Status == model.DeliveryStatusSent {
		return nil
	}
	d.Status, d.ErrorMessage = model.DeliveryStatusFailed, &errMsg
	d.AttemptCount++
	return nil
}

func (m *memPosts) HasSentSince(_ context.Context, accountID int64, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.AccountID == accountID && d.Status == model.DeliveryStatusSent && d.SentAt != nil && !d.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPosts) CreateAudit(_ context.Context, audits []*model.DeliveryAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, audits...)
	return nil
}

func (m *memPosts) delivery(id int64) model.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.deliveries[id]
}

type memAccounts struct {
	mu       sync.Mutex
	next     int64
	accounts map[int64]*model.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[int64]*model.Account{}}
}

func (m *memAccounts) Create(_ context.Context, a *model.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	a.ID = m.next
	cp := *a
	m.accounts[a.ID] = &cp
	return a.ID, nil
}

func (m *memAccounts) GetByID(_ context.Context, id int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) List(_ context.Context) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Account
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccounts) ListActiveIDs(ctx context.Context) ([]int64, error) {
	all, _ := m.List(ctx)
	var out []int64
	for _, a := range all {
		if a.IsActive {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

func (m *memAccounts) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.IsActive = active
	return nil
}

func (m *memAccounts) UpdateCredential(_ context.Context, id int64, encrypted string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.CredentialEncrypted = encrypted
	return nil
}

type memArticles struct {
	articles map[int64]*model.Article
}

func (m *memArticles) GetByID(_ context.Context, id int64) (*model.Article, error) {
	a, ok := m.articles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (m *memArticles) Create(_ context.Context, a *model.Article) (int64, error) {
	a.ID = int64(len(m.articles) + 1)
	m.articles[a.ID] = a
	return a.ID, nil
}

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error) {
	args := m.Called(ctx, text, url, account)
	return args.String(0), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) PublishDeliveryEvent(ctx context.Context, evt model.DeliveryEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

type plainCodec struct{}

func (plainCodec) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (plainCodec) Decrypt(s string) (string, error) {
	if len(s) < 4 || s[:4] != "enc:" {
		return "", errBadBlob
	}
	return s[4:], nil
}

var _ adapters.Adapter = (*MockAdapter)(nil)
