package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/queue"
)

// In-memory fakes for the repositories and collaborators the services touch.
// They mirror the conditional-update semantics of the SQL layer so the state
// machine tests exercise the same guards production does.

type fakeDeliveryRepo struct {
	mu   sync.Mutex
	rows map[string]*model.DeliveryStatus // by row id
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{rows: map[string]*model.DeliveryStatus{}}
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *model.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == "" {
		d.ID = fmt.Sprintf("row-%d", len(f.rows)+1)
	}
	if d.Status == "" {
		d.Status = model.DeliveryStatusPending
	}
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDeliveryRepo) GetByExternalID(ctx context.Context, externalID string) (*model.DeliveryStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.rows {
		if d.ExternalID == externalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) TransitionStatus(ctx context.Context, id, from, to, errorMessage string, deliveredAt *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	d.ErrorMessage = errorMessage
	if deliveredAt != nil {
		d.DeliveredAt = deliveredAt
	}
	d.LastStatusChange = time.Now()
	return true, nil
}

func (f *fakeDeliveryRepo) BeginRetry(ctx context.Context, id, newExternalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || d.Status != model.DeliveryStatusFailed || d.RetryCount >= model.MaxDeliveryRetries {
		return false, nil
	}
	d.ExternalID = newExternalID
	d.Status = model.DeliveryStatusPending
	d.RetryCount++
	d.ErrorMessage = ""
	return true, nil
}

func (f *fakeDeliveryRepo) StatsForCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := map[string]int{}
	for _, d := range f.rows {
		if d.CampaignID != nil && *d.CampaignID == campaignID {
			stats[d.Status]++
		}
	}
	return stats, nil
}

func (f *fakeDeliveryRepo) row(id string) model.DeliveryStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*model.Message
	repoints map[string]string // message id -> new external id
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{repoints: map[string]string{}}
}

func (f *fakeMessageRepo) Create(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" {
		m.ID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ExternalID == externalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) LatestCampaignMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.ConversationID == conversationID && m.Sender == model.SenderMe && m.BulkCampaignID != nil {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) UpdateExternalID(ctx context.Context, messageID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repoints[messageID] = externalID
	for _, m := range f.messages {
		if m.ID == messageID {
			m.ExternalID = externalID
		}
	}
	return nil
}

type fakeOptOutRepo struct {
	mu          sync.Mutex
	optOuts     map[string]string // number -> reason
	failed      map[string]string // number -> reason, single-campaign scope
	replies     []*model.CampaignReplyInfo
	addedFailed []string
}

func newFakeOptOutRepo() *fakeOptOutRepo {
	return &fakeOptOutRepo{optOuts: map[string]string{}, failed: map[string]string{}}
}

func (f *fakeOptOutRepo) IsOptedOut(ctx context.Context, number, phoneID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.optOuts[number]
	return ok, nil
}

func (f *fakeOptOutRepo) ListByPhone(ctx context.Context, phoneID string) ([]*model.OptOut, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.OptOut{}
	for number, reason := range f.optOuts {
		out = append(out, &model.OptOut{RecipientNumber: number, SenderPhoneID: phoneID, Reason: reason})
	}
	return out, nil
}

func (f *fakeOptOutRepo) Register(ctx context.Context, number, phoneID, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.optOuts[number]; ok {
		return false, nil
	}
	f.optOuts[number] = reason
	return true, nil
}

func (f *fakeOptOutRepo) Remove(ctx context.Context, number, phoneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.optOuts, number)
	return nil
}

func (f *fakeOptOutRepo) GetCampaignReplies(ctx context.Context, campaignID string) ([]*model.CampaignReplyInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies, nil
}

func (f *fakeOptOutRepo) RecordReply(ctx context.Context, reply *model.CampaignReply) (bool, error) {
	return true, nil
}

func (f *fakeOptOutRepo) ListFailedNumbers(ctx context.Context, campaignID string) ([]*model.CampaignFailedNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.CampaignFailedNumber{}
	for number, reason := range f.failed {
		out = append(out, &model.CampaignFailedNumber{CampaignID: campaignID, RecipientNumber: number, Reason: reason})
	}
	return out, nil
}

func (f *fakeOptOutRepo) AddFailedNumber(ctx context.Context, campaignID, number, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[number] = reason
	f.addedFailed = append(f.addedFailed, number)
	return nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	// cancelAfter > 0 makes CancelRequested return true from that read on.
	cancelAfter int
	cancelReads int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (f *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("campaign-%d", len(f.campaigns)+1)
	}
	c.CreatedAt = time.Now()
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, errors.New("campaign not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if status == "" || c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (f *fakeCampaignRepo) MarkSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.Status = model.CampaignStatusSent
		now := time.Now()
		c.SentAt = &now
	}
	return nil
}

func (f *fakeCampaignRepo) IncrementRecipientCount(ctx context.Context, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.RecipientCount += delta
	}
	return nil
}

func (f *fakeCampaignRepo) RequestCancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.CancelRequested = true
	}
	return nil
}

func (f *fakeCampaignRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelReads++
	if f.cancelAfter > 0 && f.cancelReads > f.cancelAfter {
		return true, nil
	}
	c, ok := f.campaigns[id]
	return ok && c.CancelRequested, nil
}

func (f *fakeCampaignRepo) get(id string) model.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.campaigns[id]
}

type fakePhoneRepo struct {
	phones map[string]*model.PhoneNumber
}

func (f *fakePhoneRepo) GetByID(ctx context.Context, id string) (*model.PhoneNumber, error) {
	return f.phones[id], nil
}

func (f *fakePhoneRepo) GetByNumber(ctx context.Context, number string) (*model.PhoneNumber, error) {
	for _, p := range f.phones {
		if p.Number == number {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePhoneRepo) Create(ctx context.Context, p *model.PhoneNumber) error {
	f.phones[p.ID] = p
	return nil
}

type ensureCall struct {
	phoneID   string
	number    string
	name      string
	writeName bool
	overwrite bool
}

type fakeContactRepo struct {
	mu    sync.Mutex
	calls []ensureCall
	convs map[string]*model.Conversation // by number
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{convs: map[string]*model.Conversation{}}
}

func (f *fakeContactRepo) GetByNumber(ctx context.Context, number string) (*model.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) EnsureConversation(ctx context.Context, phoneID, number, name string, writeName, overwrite bool) (*model.Contact, *model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ensureCall{phoneID, number, name, writeName, overwrite})
	conv, ok := f.convs[number]
	if !ok {
		conv = &model.Conversation{ID: fmt.Sprintf("conv-%d", len(f.convs)+1), PhoneID: phoneID}
		f.convs[number] = conv
	}
	return &model.Contact{ID: "contact-" + number, PhoneNumber: number, Name: name}, conv, nil
}

func (f *fakeContactRepo) UpdateConversationSnapshot(ctx context.Context, conversationID, lastMessage string, at time.Time, incrementUnread bool) error {
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	sends []gatewaySend
	// sendErr maps a recipient number to the error Send returns for it.
	sendErr map[string]error
	retries []string
	nextID  int
}

type gatewaySend struct {
	to      string
	message string
	from    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sendErr: map[string]error{}}
}

func (f *fakeGateway) Send(ctx context.Context, to, message, from, deliveryCallbackURL string) (*gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.sendErr[to]; ok {
		return nil, err
	}
	f.nextID++
	f.sends = append(f.sends, gatewaySend{to: to, message: message, from: from})
	return &gateway.SendResult{ExternalID: fmt.Sprintf("ext-%d", f.nextID), Status: "created"}, nil
}

func (f *fakeGateway) Retry(ctx context.Context, externalID string) (*gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, externalID)
	f.nextID++
	return &gateway.SendResult{ExternalID: fmt.Sprintf("ext-%d", f.nextID), Status: "created"}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.RetryJob
}

func (f *fakeQueue) PublishRetry(ctx context.Context, job queue.RetryJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}
