package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

type campaignState struct {
	id        string
	status    string
	sent      int
	delivered int
	failed    int
	total     int
}

// CampaignStore simulates notification campaigns the same way JobStore
// simulates jobs: batches go out per tick, controls pause or cancel the
// send.
type CampaignStore struct {
	logger    logging.Logger
	batchSize int

	mu        sync.Mutex
	campaigns map[string]*campaignState
	subs      map[string]map[chan []byte]struct{}
}

// NewCampaignStore creates an empty store. batchSize is the number of
// messages sent per tick for an active campaign.
func NewCampaignStore(logger logging.Logger, batchSize int) *CampaignStore {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &CampaignStore{
		logger:    logger,
		batchSize: batchSize,
		campaigns: make(map[string]*campaignState),
		subs:      make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe attaches a frame channel to one campaign, creating it sending
// on first contact.
func (s *CampaignStore) Subscribe(campaignID string) (chan []byte, func()) {
	sub := make(chan []byte, 16)

	s.mu.Lock()
	if s.campaigns[campaignID] == nil {
		s.campaigns[campaignID] = &campaignState{id: campaignID, status: "sending", total: 500}
	}
	if s.subs[campaignID] == nil {
		s.subs[campaignID] = make(map[chan []byte]struct{})
	}
	s.subs[campaignID][sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[campaignID], sub)
			s.mu.Unlock()
		})
	}
}

// Apply honors one control frame against a campaign.
func (s *CampaignStore) Apply(campaignID, control string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	campaign := s.campaigns[campaignID]
	if campaign == nil {
		return
	}

	switch control {
	case events.ControlCancelCampaign:
		if campaign.status == "sending" || campaign.status == "paused" {
			campaign.status = "canceled"
			s.publishLocked(campaign, events.TypeCampaignCompleted)
		}
	case events.ControlPauseCampaign:
		if campaign.status == "sending" {
			campaign.status = "paused"
			s.publishLocked(campaign, events.TypeCampaignProgress)
		}
	case events.ControlResumeCampaign:
		if campaign.status == "paused" {
			campaign.status = "sending"
			s.publishLocked(campaign, events.TypeCampaignProgress)
		}
	default:
		s.logger.WithField("control", control).Debug("Ignoring unknown campaign control")
	}
}

// Run advances active campaigns on each tick until ctx is done.
func (s *CampaignStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *CampaignStore) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, campaign := range s.campaigns {
		if campaign.status != "sending" {
			continue
		}
		batch := s.batchSize
		if remaining := campaign.total - campaign.sent; batch > remaining {
			batch = remaining
		}
		campaign.sent += batch
		// A few percent of each batch bounces.
		failures := batch / 25
		campaign.failed += failures
		campaign.delivered += batch - failures

		if campaign.sent >= campaign.total {
			campaign.status = "completed"
			s.publishLocked(campaign, events.TypeCampaignCompleted)
			continue
		}
		s.publishLocked(campaign, events.TypeCampaignProgress)
	}
}

func (s *CampaignStore) publishLocked(campaign *campaignState, eventType string) {
	progress := 0.0
	if campaign.total > 0 {
		progress = float64(campaign.sent) / float64(campaign.total)
	}
	payload := events.CampaignProgressPayload{
		Event:      events.Event{EventType: eventType, Timestamp: time.Now().UTC()},
		CampaignID: campaign.id,
		Status:     campaign.status,
		Sent:       campaign.sent,
		Delivered:  campaign.delivered,
		Failed:     campaign.failed,
		Progress:   progress,
	}
	frame, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal campaign event")
		return
	}
	for sub := range s.subs[campaign.id] {
		select {
		case sub <- frame:
		default:
		}
	}
}
