package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/embeddings"
	"github.com/papercomputeco/memd/pkg/lock"
	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
	"github.com/papercomputeco/memd/pkg/utils"
	"github.com/papercomputeco/memd/pkg/vector"
)

// Config wires the orchestrator's collaborators. Store, Index, and Locks are
// required. Embedder is optional; without one, candidates must arrive with
// embeddings attached. Clock and NewID default to real time and fresh ULIDs
// and exist for deterministic tests.
type Config struct {
	Store    store.Store
	Index    vector.Driver
	Locks    lock.Manager
	Embedder embeddings.Embedder
	Params   Params
	Logger   *zap.Logger
	Clock    func() time.Time
	NewID    func() string
}

// Outcome tells the caller what to do with the delivery after processing.
// Exactly one disposition applies: requeue with delay, dead-letter with
// reason, or ack. Result, when set, is the terminal summary to publish.
type Outcome struct {
	Result     *memory.JobResult
	Requeue    bool
	Delay      time.Duration
	DeadLetter bool
	Reason     string
}

// Orchestrator drives one consolidation job end to end: lock the scope,
// build the working set, run every candidate through detection and
// resolution, commit the accumulated ChangeSet, and sync the vector index.
// It owns all job state transitions and all retry/dead-letter policy.
type Orchestrator struct {
	store    store.Store
	index    vector.Driver
	locks    lock.Manager
	embedder embeddings.Embedder
	params   Params
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string

	detector *Detector
	resolver *Resolver
	merger   *Merger
}

// New constructs an orchestrator from the given config.
func New(cfg Config) *Orchestrator {
	params := cfg.Params.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &Orchestrator{
		store:    cfg.Store,
		index:    cfg.Index,
		locks:    cfg.Locks,
		embedder: cfg.Embedder,
		params:   params,
		logger:   logger,
		clock:    clock,
		newID:    newID,
		detector: NewDetector(cfg.Index, params),
		resolver: NewResolver(params),
		merger:   NewMerger(),
	}
}

// Process runs one job. It never panics on bad input; malformed jobs are
// rejected to the dead letter queue with a FAILED result, transient failures
// come back as requeue outcomes until attempts are exhausted.
func (o *Orchestrator) Process(ctx context.Context, job *memory.ConsolidationJob) Outcome {
	log := o.logger.With(
		zap.String("job_id", job.ID),
		zap.String("scope", job.Scope.Key()),
		zap.Int("attempt", job.AttemptCount),
	)

	if err := memory.ValidateJob(job); err != nil {
		return o.reject(ctx, job, err, log)
	}
	scopeKey := job.Scope.Key()

	// At-least-once delivery means re-seeing terminal jobs is normal.
	if rec, err := o.store.GetJob(ctx, job.ID); err == nil && rec.Status.Terminal() {
		log.Info("job already terminal", zap.String("status", string(rec.Status)))
		return Outcome{}
	}

	lease, err := o.locks.Acquire(scopeKey, o.params.LeaseTTL)
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			log.Debug("scope busy, requeueing")
		}
		return o.retry(ctx, job, fmt.Errorf("acquiring scope lock: %w", err), log)
	}
	defer o.locks.Release(lease)

	job.Status = memory.JobRunning
	now := o.clock()

	live, err := o.store.ListMemories(ctx, scopeKey, false)
	if err != nil {
		return o.retry(ctx, job, fmt.Errorf("loading scope memories: %w", err), log)
	}
	ws := newWorkingSet(job.ID, live)

	counts := memory.JobResult{JobID: job.ID}
	for i := range job.Candidates {
		cand := &job.Candidates[i]
		if err := o.consolidate(ctx, ws, job, cand, &counts, log); err != nil {
			if memory.IsRetryable(err) {
				return o.retry(ctx, job, err, log)
			}
			return o.reject(ctx, job, err, log)
		}
		if err := o.locks.Renew(lease, o.params.LeaseTTL); err != nil {
			return o.retry(ctx, job, memory.Transient(fmt.Errorf("renewing lease: %w", err)), log)
		}
	}

	if err := verifyStaged(ws); err != nil {
		return o.reject(ctx, job, err, log)
	}

	counts.Status = memory.JobCompleted
	rec := &memory.JobRecord{
		ID:           job.ID,
		ScopeKey:     scopeKey,
		Status:       memory.JobCompleted,
		AttemptCount: job.AttemptCount,
		Result:       counts,
		UpdatedAt:    o.clock(),
	}
	cs := ws.changeSet(scopeKey, rec)

	// Fence: a lease lost to expiry must not commit over a newer holder.
	if err := o.locks.Validate(lease); err != nil {
		return o.retry(ctx, job, memory.Transient(fmt.Errorf("validating lease before commit: %w", err)), log)
	}

	if err := o.store.Apply(ctx, cs); err != nil {
		var already store.AlreadyAppliedError
		if errors.As(err, &already) {
			log.Info("changeset already applied", zap.String("status", string(already.Status)))
			return Outcome{}
		}
		return o.retry(ctx, job, fmt.Errorf("applying changeset: %w", err), log)
	}

	o.syncIndex(ctx, ws, scopeKey, log)

	job.Status = memory.JobCompleted
	log.Info("job completed",
		zap.Int("created", counts.MemoriesCreated),
		zap.Int("updated", counts.MemoriesUpdated),
		zap.Int("superseded", counts.MemoriesSuperseded),
		zap.Duration("took", o.clock().Sub(now)),
	)
	return Outcome{Result: &counts}
}

// consolidate runs one candidate through the pipeline against the working
// set, staging whatever mutation the resolver decides on.
func (o *Orchestrator) consolidate(ctx context.Context, ws *workingSet, job *memory.ConsolidationJob, cand *memory.CandidateFact, counts *memory.JobResult, log *zap.Logger) error {
	if len(cand.Embedding) == 0 {
		if o.embedder == nil {
			return memory.Validationf("candidate %s has no embedding and no embedder is configured", cand.ID)
		}
		vec, err := o.embedder.Embed(ctx, cand.Fact)
		if err != nil {
			return memory.Transient(fmt.Errorf("embedding candidate %s: %w", cand.ID, err))
		}
		cand.Embedding = vec
	}

	now := o.clock()
	related, err := o.detector.FindRelated(ctx, cand.Embedding, job.Scope.Key(), ws, now)
	if err != nil {
		return memory.Transient(err)
	}

	decision := o.resolver.Resolve(cand, related)
	log.Debug("candidate resolved",
		zap.String("candidate_id", cand.ID),
		zap.String("decision", string(decision.Kind)),
		zap.String("fact", utils.Truncate(cand.Fact, 72)),
		zap.Int("related", len(related)),
	)

	switch decision.Kind {
	case DecisionSkip:
		// Nothing to stage; the existing memory already covers it.

	case DecisionCreate:
		o.stageCreate(ws, job, cand, now)
		counts.MemoriesCreated++

	case DecisionUpdate:
		target := decision.Target.Memory
		state := o.merger.Update(cand, target)
		if err := o.stageSurvivor(ctx, ws, target, state, cand, memory.ActionUpdated, now); err != nil {
			return err
		}
		counts.MemoriesUpdated++

	case DecisionMerge:
		target := decision.Target.Memory
		state := o.merger.Merge(cand, target, decision.Absorbed)
		if err := o.stageSurvivor(ctx, ws, target, state, cand, memory.ActionMerged, now); err != nil {
			return err
		}
		counts.MemoriesUpdated++
		for _, rel := range decision.Absorbed {
			o.stageSupersede(ws, rel.Memory, memory.ActionMerged, cand.ID, now)
			counts.MemoriesSuperseded++
		}

	case DecisionContradict:
		loser := decision.Target.Memory
		if !decision.CandidateWins {
			log.Debug("contradiction resolved toward existing memory",
				zap.String("candidate_id", cand.ID),
				zap.String("memory_id", loser.ID),
			)
			return nil
		}
		o.stageSupersede(ws, loser, memory.ActionUpdated, cand.ID, now)
		counts.MemoriesSuperseded++
		o.stageCreate(ws, job, cand, now)
		counts.MemoriesCreated++
	}
	return nil
}

// stageCreate stages a brand-new memory built from the candidate.
func (o *Orchestrator) stageCreate(ws *workingSet, job *memory.ConsolidationJob, cand *memory.CandidateFact, now time.Time) {
	m := &memory.Memory{
		ID:           o.newID(),
		Scope:        job.Scope,
		Fact:         cand.Fact,
		Topic:        cand.Topic,
		Confidence:   cand.Confidence,
		EmbeddingRef: cand.EmbeddingProvenanceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ws.stage(m, memory.ActionCreated, []string{cand.ID}, ws.jobID, now)
	ws.setEmbedding(m.ID, cand.Embedding)
}

// stageSurvivor applies a merged state to the surviving memory and keeps its
// embedding in step with its fact.
func (o *Orchestrator) stageSurvivor(ctx context.Context, ws *workingSet, target *memory.Memory, state MergedState, cand *memory.CandidateFact, action memory.RevisionAction, now time.Time) error {
	factChanged := !equivalentFacts(state.Fact, target.Fact)
	target.Fact = state.Fact
	target.Topic = state.Topic
	target.Confidence = state.Confidence
	ws.stage(target, action, []string{cand.ID}, ws.jobID, now)

	if !factChanged {
		return nil
	}
	if equivalentFacts(state.Fact, cand.Fact) {
		ws.setEmbedding(target.ID, cand.Embedding)
		return nil
	}
	// The surviving text came from an absorbed memory; its old index entry
	// is being deleted, so the survivor needs a fresh embedding.
	if o.embedder == nil {
		return nil
	}
	vec, err := o.embedder.Embed(ctx, state.Fact)
	if err != nil {
		return memory.Transient(fmt.Errorf("embedding merged fact of memory %s: %w", target.ID, err))
	}
	ws.setEmbedding(target.ID, vec)
	return nil
}

// stageSupersede marks a memory as displaced and records the revision.
func (o *Orchestrator) stageSupersede(ws *workingSet, m *memory.Memory, action memory.RevisionAction, candID string, now time.Time) {
	m.Superseded = true
	ws.stage(m, action, []string{candID}, ws.jobID, now)
	ws.markRemoved(m.ID)
}

// syncIndex pushes the job's embedding changes to the vector index after
// commit. Index lag is tolerated, so failures are logged, not retried; the
// store remains the source of truth.
func (o *Orchestrator) syncIndex(ctx context.Context, ws *workingSet, scopeKey string, log *zap.Logger) {
	if len(ws.removed) > 0 {
		if err := o.index.Delete(ctx, ws.removed); err != nil {
			log.Warn("deleting superseded embeddings from index", zap.Error(err))
		}
	}
	docs := make([]vector.Document, 0, len(ws.embeddings))
	for id, vec := range ws.embeddings {
		docs = append(docs, vector.Document{ID: id, ScopeKey: scopeKey, Embedding: vec})
	}
	if len(docs) == 0 {
		return
	}
	if err := o.index.Add(ctx, docs); err != nil {
		log.Warn("adding embeddings to index", zap.Error(err))
	}
}

// retry classifies a failure as transient: requeue with exponential backoff,
// or fail terminally once attempts are exhausted.
func (o *Orchestrator) retry(ctx context.Context, job *memory.ConsolidationJob, err error, log *zap.Logger) Outcome {
	if job.AttemptCount+1 >= o.params.MaxAttempts {
		log.Error("job failed, attempts exhausted", zap.Error(err))
		res := o.recordFailure(ctx, job, err, log)
		return Outcome{Result: res}
	}
	delay := o.params.Backoff(job.AttemptCount)
	log.Warn("transient failure, requeueing",
		zap.Error(err),
		zap.Duration("delay", delay),
	)
	return Outcome{Requeue: true, Delay: delay}
}

// reject terminates a job over malformed input or a broken invariant: record
// FAILED, route the delivery to the dead letter queue.
func (o *Orchestrator) reject(ctx context.Context, job *memory.ConsolidationJob, err error, log *zap.Logger) Outcome {
	log.Error("job rejected", zap.Error(err))
	res := o.recordFailure(ctx, job, err, log)
	return Outcome{Result: res, DeadLetter: true, Reason: err.Error()}
}

// recordFailure durably marks the job FAILED so redeliveries short-circuit.
func (o *Orchestrator) recordFailure(ctx context.Context, job *memory.ConsolidationJob, cause error, log *zap.Logger) *memory.JobResult {
	job.Status = memory.JobFailed
	res := &memory.JobResult{
		JobID:  job.ID,
		Status: memory.JobFailed,
		Error:  cause.Error(),
	}
	cs := &store.ChangeSet{
		JobID:    job.ID,
		ScopeKey: job.Scope.Key(),
		Job: &memory.JobRecord{
			ID:           job.ID,
			ScopeKey:     job.Scope.Key(),
			Status:       memory.JobFailed,
			AttemptCount: job.AttemptCount,
			Result:       *res,
			UpdatedAt:    o.clock(),
		},
	}
	if err := o.store.Apply(ctx, cs); err != nil {
		var already store.AlreadyAppliedError
		if !errors.As(err, &already) {
			log.Warn("recording job failure", zap.Error(err))
		}
	}
	return res
}

// verifyStaged checks the gaplessness invariant over every staged write
// before it reaches the store.
func verifyStaged(ws *workingSet) error {
	for _, id := range ws.order {
		w := ws.writes[id]
		for i, rev := range w.Revisions {
			if rev.Number != w.ExpectedRevisions+i+1 {
				return memory.Invariantf("staged revisions of memory %s are not contiguous: expected %d, found %d", id, w.ExpectedRevisions+i+1, rev.Number)
			}
		}
	}
	return nil
}
