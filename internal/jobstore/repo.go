package jobstore

import (
	"context"
	"time"

	"zanowatcher.com/internal/kv"
)

// Repo binds the Job/Status/Seen entities to a KV Store and the
// operator-configured key prefix and TTLs, so every other component
// touches the data model through one seam.
type Repo struct {
	store     kv.Store
	prefix    string
	jobTTL    time.Duration
	statusTTL time.Duration
	seenTTL   time.Duration
}

func NewRepo(store kv.Store, prefix string, jobTTL, statusTTL, seenTTL time.Duration) *Repo {
	return &Repo{store: store, prefix: prefix, jobTTL: jobTTL, statusTTL: statusTTL, seenTTL: seenTTL}
}

func (r *Repo) Prefix() string { return r.prefix }

// LoadJob returns (nil, false, nil) when no Job exists for the pair.
func (r *Repo) LoadJob(ctx context.Context, ticker, paymentId string) (*Job, bool, error) {
	m, err := r.store.HGetAll(ctx, JobKey(r.prefix, ticker, paymentId))
	if err != nil {
		return nil, false, err
	}
	job, ok := JobFromFields(m)
	return job, ok, nil
}

// CreateJob writes the full Job record and applies the Job TTL.
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.CreateJobWithTTL(ctx, job, r.jobTTL)
}

// CreateJobWithTTL is CreateJob with a caller-chosen TTL override, for the
// Intake create endpoint's optional per-request ttlSeconds.
func (r *Repo) CreateJobWithTTL(ctx context.Context, job *Job, ttl time.Duration) error {
	key := JobKey(r.prefix, job.Ticker, job.PaymentId)
	if err := r.store.HSet(ctx, key, job.Fields()); err != nil {
		return err
	}
	return r.store.Expire(ctx, key, ttl)
}

// JobTTL returns the repo's default Job TTL, for callers computing an
// expiresAt without overriding it.
func (r *Repo) JobTTL() time.Duration { return r.jobTTL }

// PatchJob writes only the given fields, per §4.1's "limits blast radius"
// guidance, and refreshes the Job TTL.
func (r *Repo) PatchJob(ctx context.Context, ticker, paymentId string, patch Patch) error {
	key := JobKey(r.prefix, ticker, paymentId)
	if err := r.store.HSet(ctx, key, patch.Encode()); err != nil {
		return err
	}
	return r.store.Expire(ctx, key, r.jobTTL)
}

func (r *Repo) DeleteJob(ctx context.Context, ticker, paymentId string) error {
	return r.store.Del(ctx, JobKey(r.prefix, ticker, paymentId))
}

// ScanJobs pages through Jobs for ticker; callers loop until nextCursor
// is "0".
func (r *Repo) ScanJobs(ctx context.Context, ticker string, batchSize int64, cursor string) (string, []string, error) {
	return r.store.Scan(ctx, JobScanPattern(r.prefix, ticker), batchSize, cursor)
}

func (r *Repo) LoadStatus(ctx context.Context, ticker, paymentId string) (*Status, bool, error) {
	var s Status
	ok, err := r.store.GetJSON(ctx, StatusKey(r.prefix, ticker, paymentId), &s)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &s, true, nil
}

func (r *Repo) SaveStatus(ctx context.Context, s *Status) error {
	return r.store.SetJSON(ctx, StatusKey(r.prefix, s.Ticker, s.PaymentId), s, r.statusTTL)
}

func (r *Repo) IsSeen(ctx context.Context, hash string) (bool, error) {
	return r.store.Exists(ctx, SeenKey(r.prefix, hash))
}

func (r *Repo) MarkSeen(ctx context.Context, hash string) error {
	return r.store.Set(ctx, SeenKey(r.prefix, hash), "1", r.seenTTL)
}
