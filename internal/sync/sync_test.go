package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/salescope/salescope-api/internal/models"
	"github.com/salescope/salescope-api/internal/repository"
)

// In-memory fakes for the repository and platform interfaces. They mirror
// the upsert semantics of the SQL layer closely enough for the pipeline
// properties to be meaningful: natural-key conflict handling, boolean OR
// merges, and first-write-wins timestamps.

type fakeClock struct {
	mu gosync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeSourceRepo struct {
	sources     map[string]*models.DataSource
	now         func() time.Time
	resetCalled int
	resetFn     func(dataSourceID string) error
}

func newFakeSourceRepo(now func() time.Time) *fakeSourceRepo {
	return &fakeSourceRepo{sources: make(map[string]*models.DataSource), now: now}
}

func (r *fakeSourceRepo) add(ds models.DataSource) {
	cp := ds
	r.sources[ds.ID] = &cp
}

func (r *fakeSourceRepo) Create(ds models.DataSource) (models.DataSource, error) {
	ds.ID = fmt.Sprintf("ds-%d", len(r.sources)+1)
	ds.LastSyncState = models.SyncStatusNever
	r.add(ds)
	return ds, nil
}

func (r *fakeSourceRepo) Get(tenantID, dataSourceID string) (models.DataSource, error) {
	ds, ok := r.sources[dataSourceID]
	if !ok || ds.TenantID != tenantID {
		return models.DataSource{}, repository.ErrNotFound
	}
	return *ds, nil
}

func (r *fakeSourceRepo) List(tenantID, engagementID string) ([]models.DataSource, error) {
	var out []models.DataSource
	for _, ds := range r.sources {
		if ds.TenantID == tenantID && ds.EngagementID == engagementID {
			out = append(out, *ds)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) ListTenantIDs() ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, ds := range r.sources {
		if !seen[ds.TenantID] {
			seen[ds.TenantID] = true
			ids = append(ids, ds.TenantID)
		}
	}
	return ids, nil
}

func (r *fakeSourceRepo) AcquireLease(dataSourceID string, until time.Time) error {
	ds := r.sources[dataSourceID]
	if ds.ClaimedUntil != nil && ds.ClaimedUntil.After(r.now()) {
		return repository.ErrLeaseHeld
	}
	u := until
	ds.ClaimedUntil = &u
	ds.LastSyncState = models.SyncStatusSyncing
	return nil
}

func (r *fakeSourceRepo) RenewLease(dataSourceID string, until time.Time) error {
	ds := r.sources[dataSourceID]
	if ds.ClaimedUntil == nil || ds.ClaimedUntil.Before(r.now()) {
		return repository.ErrLeaseLost
	}
	u := until
	ds.ClaimedUntil = &u
	return nil
}

func (r *fakeSourceRepo) ReleaseLease(dataSourceID string) error {
	r.sources[dataSourceID].ClaimedUntil = nil
	return nil
}

func (r *fakeSourceRepo) SaveCheckpoint(dataSourceID string, cp *models.Checkpoint, status models.SyncStatus) error {
	raw, err := cp.Encode()
	if err != nil {
		return err
	}
	ds := r.sources[dataSourceID]
	ds.Checkpoint = raw
	ds.LastSyncState = status
	return nil
}

func (r *fakeSourceRepo) ClearCheckpoint(dataSourceID string, status models.SyncStatus) error {
	ds := r.sources[dataSourceID]
	ds.Checkpoint = nil
	ds.LastSyncState = status
	t := r.now()
	ds.LastSyncedAt = &t
	return nil
}

func (r *fakeSourceRepo) SetGlobalStats(dataSourceID string, stats json.RawMessage) error {
	r.sources[dataSourceID].GlobalStats = stats
	return nil
}

func (r *fakeSourceRepo) ResetData(dataSourceID string) error {
	r.resetCalled++
	if r.resetFn != nil {
		return r.resetFn(dataSourceID)
	}
	return nil
}

type fakeProgressRepo struct {
	rows   []*models.SyncProgress
	nextID int
}

func (r *fakeProgressRepo) Start(tenantID, dataSourceID string) (models.SyncProgress, error) {
	for _, row := range r.rows {
		if row.DataSourceID == dataSourceID && row.Status == models.ProgressRunning {
			return models.SyncProgress{}, fmt.Errorf("a running sync already exists for data source %s", dataSourceID)
		}
	}
	r.nextID++
	row := &models.SyncProgress{
		ID:           fmt.Sprintf("prog-%d", r.nextID),
		TenantID:     tenantID,
		DataSourceID: dataSourceID,
		Status:       models.ProgressRunning,
		Phase:        models.PhaseAccounts,
	}
	r.rows = append(r.rows, row)
	return *row, nil
}

func (r *fakeProgressRepo) find(progressID string) *models.SyncProgress {
	for _, row := range r.rows {
		if row.ID == progressID {
			return row
		}
	}
	return nil
}

func (r *fakeProgressRepo) GetRunning(dataSourceID string) (models.SyncProgress, error) {
	for _, row := range r.rows {
		if row.DataSourceID == dataSourceID && row.Status == models.ProgressRunning {
			return *row, nil
		}
	}
	return models.SyncProgress{}, repository.ErrNotFound
}

func (r *fakeProgressRepo) GetLatest(dataSourceID string) (models.SyncProgress, error) {
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].DataSourceID == dataSourceID {
			return *r.rows[i], nil
		}
	}
	return models.SyncProgress{}, repository.ErrNotFound
}

func (r *fakeProgressRepo) Heartbeat(progressID string, phase models.Phase, totalUnits, processed int, currentUnit string) error {
	row := r.find(progressID)
	if row == nil {
		return repository.ErrNotFound
	}
	row.Phase = phase
	row.TotalUnits = totalUnits
	row.Processed = processed
	row.CurrentUnit = currentUnit
	return nil
}

func (r *fakeProgressRepo) AppendError(progressID, message string) error {
	row := r.find(progressID)
	if row == nil {
		return repository.ErrNotFound
	}
	row.Errors = append(row.Errors, message)
	return nil
}

func (r *fakeProgressRepo) Finish(progressID string, status models.ProgressStatus) error {
	row := r.find(progressID)
	if row == nil {
		return repository.ErrNotFound
	}
	row.Status = status
	return nil
}

type fakeEntityRepo struct {
	accounts  map[string]models.SenderAccount // data source id + external id
	companies map[string]string               // engagement id + domain or name -> id
	contacts  map[string]models.Contact       // engagement id + email
	campaigns map[string]*models.Campaign     // campaign id
	byNatural map[string]string               // engagement + data source + external id -> campaign id
	order     map[string][]string             // data source id -> campaign ids
	variants  map[string]models.Variant       // campaign id + external id
	activity  map[string]*models.Activity     // campaign id + contact id + step
	nextID    int
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{
		accounts:  make(map[string]models.SenderAccount),
		companies: make(map[string]string),
		contacts:  make(map[string]models.Contact),
		campaigns: make(map[string]*models.Campaign),
		byNatural: make(map[string]string),
		order:     make(map[string][]string),
		variants:  make(map[string]models.Variant),
		activity:  make(map[string]*models.Activity),
	}
}

func (r *fakeEntityRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *fakeEntityRepo) UpsertSenderAccount(acct models.SenderAccount) (string, error) {
	key := acct.DataSourceID + "/" + acct.ExternalID
	existing, ok := r.accounts[key]
	if ok {
		acct.ID = existing.ID
	} else {
		acct.ID = r.id("acct")
	}
	r.accounts[key] = acct
	return acct.ID, nil
}

func (r *fakeEntityRepo) ResolveCompany(tenantID, engagementID, name, domain string) (string, error) {
	if domain != "" {
		if id, ok := r.companies[engagementID+"/d/"+domain]; ok {
			return id, nil
		}
	}
	if name != "" {
		if id, ok := r.companies[engagementID+"/n/"+name]; ok {
			return id, nil
		}
	}
	id := r.id("co")
	if domain != "" {
		r.companies[engagementID+"/d/"+domain] = id
	}
	if name != "" {
		r.companies[engagementID+"/n/"+name] = id
	}
	return id, nil
}

func (r *fakeEntityRepo) UpsertContact(c models.Contact) (string, error) {
	key := c.EngagementID + "/" + c.Email
	existing, ok := r.contacts[key]
	if ok {
		c.ID = existing.ID
		if c.FirstName == "" {
			c.FirstName = existing.FirstName
		}
		if c.LastName == "" {
			c.LastName = existing.LastName
		}
		if c.Title == "" {
			c.Title = existing.Title
		}
		if c.Phone == "" {
			c.Phone = existing.Phone
		}
		if c.CompanyID == nil {
			c.CompanyID = existing.CompanyID
		}
	} else {
		c.ID = r.id("contact")
	}
	r.contacts[key] = c
	return c.ID, nil
}

func (r *fakeEntityRepo) UpsertCampaign(c models.Campaign) (string, error) {
	key := c.EngagementID + "/" + c.DataSourceID + "/" + c.ExternalID
	if id, ok := r.byNatural[key]; ok {
		existing := r.campaigns[id]
		existing.Name = c.Name
		existing.Status = c.Status
		return id, nil
	}
	c.ID = r.id("camp")
	r.byNatural[key] = c.ID
	r.campaigns[c.ID] = &c
	r.order[c.DataSourceID] = append(r.order[c.DataSourceID], c.ID)
	return c.ID, nil
}

func (r *fakeEntityRepo) UpsertVariant(v models.Variant) (string, error) {
	key := v.CampaignID + "/" + v.ExternalID
	existing, ok := r.variants[key]
	if ok {
		v.ID = existing.ID
	} else {
		v.ID = r.id("var")
	}
	r.variants[key] = v
	return v.ID, nil
}

func (r *fakeEntityRepo) UpsertActivity(a models.Activity) (string, error) {
	key := fmt.Sprintf("%s/%s/%d", a.CampaignID, a.ContactID, a.StepNumber)
	existing, ok := r.activity[key]
	if !ok {
		a.ID = r.id("act")
		cp := a
		r.activity[key] = &cp
		return a.ID, nil
	}
	existing.Sent = a.Sent
	existing.Opened = existing.Opened || a.Opened
	existing.Clicked = existing.Clicked || a.Clicked
	existing.Replied = existing.Replied || a.Replied
	existing.Bounced = existing.Bounced || a.Bounced
	if a.ReplyCategory != "" {
		existing.ReplyCategory = a.ReplyCategory
	}
	if existing.SentAt == nil {
		existing.SentAt = a.SentAt
	}
	if existing.OpenedAt == nil {
		existing.OpenedAt = a.OpenedAt
	}
	if existing.RepliedAt == nil {
		existing.RepliedAt = a.RepliedAt
	}
	return existing.ID, nil
}

func (r *fakeEntityRepo) ListActivities(campaignID string) ([]models.Activity, error) {
	var out []models.Activity
	for _, a := range r.activity {
		if a.CampaignID == campaignID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeEntityRepo) ListCampaignIDs(dataSourceID string) ([]string, error) {
	return append([]string(nil), r.order[dataSourceID]...), nil
}

// reset mirrors the SQL reset: everything scoped to the data source goes,
// companies and contacts stay.
func (r *fakeEntityRepo) reset(dataSourceID string) error {
	for _, campaignID := range r.order[dataSourceID] {
		delete(r.campaigns, campaignID)
		for key, v := range r.variants {
			if v.CampaignID == campaignID {
				delete(r.variants, key)
			}
		}
		for key, a := range r.activity {
			if a.CampaignID == campaignID {
				delete(r.activity, key)
			}
		}
	}
	for key, id := range r.byNatural {
		if _, ok := r.campaigns[id]; !ok {
			delete(r.byNatural, key)
		}
	}
	delete(r.order, dataSourceID)
	for key, acct := range r.accounts {
		if acct.DataSourceID == dataSourceID {
			delete(r.accounts, key)
		}
	}
	return nil
}

type fakeMetricsRepo struct {
	totals    map[string]repository.CampaignTotals
	steps     map[string]map[int]repository.StepTotals
	daily     map[string][]models.DailyMetric
	snapshots map[string]map[time.Time]int
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{
		totals:    make(map[string]repository.CampaignTotals),
		steps:     make(map[string]map[int]repository.StepTotals),
		daily:     make(map[string][]models.DailyMetric),
		snapshots: make(map[string]map[time.Time]int),
	}
}

func (r *fakeMetricsRepo) UpdateCampaignTotals(campaignID string, t repository.CampaignTotals) error {
	r.totals[campaignID] = t
	return nil
}

func (r *fakeMetricsRepo) ZeroVariantMetrics(campaignID string) error {
	r.steps[campaignID] = make(map[int]repository.StepTotals)
	return nil
}

func (r *fakeMetricsRepo) UpdateVariantMetrics(campaignID string, stepNumber int, t repository.StepTotals) error {
	if r.steps[campaignID] == nil {
		r.steps[campaignID] = make(map[int]repository.StepTotals)
	}
	r.steps[campaignID][stepNumber] = t
	return nil
}

func (r *fakeMetricsRepo) ReplaceDailyMetrics(campaignID string, metrics []models.DailyMetric) error {
	r.daily[campaignID] = append([]models.DailyMetric(nil), metrics...)
	return nil
}

func (r *fakeMetricsRepo) UpsertEnrollmentSnapshot(campaignID string, day time.Time, enrolled int) error {
	if r.snapshots[campaignID] == nil {
		r.snapshots[campaignID] = make(map[time.Time]int)
	}
	r.snapshots[campaignID][day] = enrolled
	return nil
}

func (r *fakeMetricsRepo) CampaignDrift(string) ([]repository.DriftRow, error)    { return nil, nil }
func (r *fakeMetricsRepo) DailyRollupDrift(string) ([]repository.DriftRow, error) { return nil, nil }
func (r *fakeMetricsRepo) CountUncategorizedReplies(string) (int, error)          { return 0, nil }
func (r *fakeMetricsRepo) StaleCampaigns(string, time.Time) ([]string, error)     { return nil, nil }

func (r *fakeMetricsRepo) InsertReport(report models.ReconcileReport) (models.ReconcileReport, error) {
	report.ID = "report-1"
	report.RanAt = time.Now()
	return report, nil
}

func (r *fakeMetricsRepo) ListReports(string, int) ([]models.ReconcileReport, error) {
	return nil, nil
}

type fakeScheduler struct {
	calls []ContinuationParams
	err   error
}

func (s *fakeScheduler) ScheduleNext(ctx context.Context, p ContinuationParams) error {
	s.calls = append(s.calls, p)
	return s.err
}
