package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ballotdesk/internal/course"
	"github.com/roach88/ballotdesk/internal/election"
	"github.com/roach88/ballotdesk/internal/metrics"
	"github.com/roach88/ballotdesk/internal/sessioncache"
	"github.com/roach88/ballotdesk/internal/store"
)

// DefaultRevalidateDelay is how long after a load the background pass runs.
const DefaultRevalidateDelay = 2 * time.Second

// Engine reconciles course rosters, the vote log and the optimistic cache.
type Engine struct {
	mu sync.Mutex

	students *election.Students
	votes    *election.VoteLog
	sessions *election.Sessions
	cache    sessioncache.Store

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	delay     time.Duration
	scheduler *Scheduler

	// rosters holds the last loaded roster per resolved course name.
	rosters map[string][]election.Student
	// aliases maps requested course names to the roster's course name.
	aliases map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records passes, drift and write failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the time source for votedAt and absentAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRevalidateDelay sets the background pass delay. Zero or negative
// disables background passes; Revalidate can still be called directly.
func WithRevalidateDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// New creates an engine over docs and the optimistic cache store.
func New(docs election.Documents, cache sessioncache.Store, opts ...Option) *Engine {
	e := &Engine{
		students: election.NewStudents(docs),
		votes:    election.NewVoteLog(docs),
		sessions: election.NewSessions(docs),
		cache:    cache,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		delay:    DefaultRevalidateDelay,
		rosters:  make(map[string][]election.Student),
		aliases:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.delay > 0 {
		e.scheduler = NewScheduler(e.delay, e.backgroundPass)
	}
	return e
}

// Close stops pending background passes and waits for running ones.
func (e *Engine) Close() {
	if e.scheduler != nil {
		e.scheduler.Close()
	}
}

// LoadCourse reconciles the course named in sc and returns its view.
//
// When the store cannot be read the optimistic cache is served with
// Degraded set and Failure describing the cause; the error return is
// reserved for the case where the cache cannot be read either.
func (e *Engine) LoadCourse(ctx context.Context, sc SessionContext) (View, error) {
	start := e.now()

	e.mu.Lock()
	view, err := e.reconcileLocked(ctx, sc.Course)
	if err != nil {
		view, err = e.degradedLocked(sc.Course, err)
	}
	e.mu.Unlock()
	if err != nil {
		return View{}, err
	}

	e.observePass("load", start)

	if !view.Degraded {
		c := view.Counts()
		if _, err := e.sessions.Record(ctx, election.Session{
			RosterKey: sc.RosterKey,
			Course:    view.Course,
			Level:     sc.Level,
			Pending:   c.Pending,
			Voted:     c.Voted,
			Absent:    c.Absent,
			LoadedAt:  e.now(),
		}); err != nil {
			e.logger.Warn("session record failed", "course", view.Course, "error", err)
		}
		if e.scheduler != nil {
			e.scheduler.Schedule(view.Course)
		}
	}

	e.logger.Info("course loaded",
		"course", view.Course,
		"requested", sc.Course,
		"records", len(view.Records),
		"unsynced", len(view.Unsynced),
		"degraded", view.Degraded)
	return view, nil
}

// Reconcile runs a full pass for course. Running it twice on an unchanged
// store and vote log yields the same view.
func (e *Engine) Reconcile(ctx context.Context, courseName string) (View, error) {
	start := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	view, err := e.reconcileLocked(ctx, courseName)
	if err != nil {
		return View{}, err
	}
	e.observePass("reconcile", start)
	return view, nil
}

// View returns the current optimistic view of course without touching the
// store.
func (e *Engine) View(courseName string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := e.resolvedName(courseName)
	cached, err := e.loadCache(resolved)
	if err != nil {
		return View{}, err
	}
	return viewFrom(cached, courseName), nil
}

func (e *Engine) reconcileLocked(ctx context.Context, requested string) (View, error) {
	resolved, roster, err := e.loadRoster(ctx, requested)
	if err != nil {
		return View{}, err
	}

	cached, err := e.loadCache(resolved)
	if err != nil {
		return View{}, err
	}

	if flushed := e.flushUnsynced(ctx, &cached, roster); flushed > 0 {
		if roster, err = e.students.ByCourse(ctx, resolved); err != nil {
			return View{}, fmt.Errorf("reload roster %s: %w", resolved, err)
		}
	}

	derived, err := e.derive(ctx, roster, true)
	if err != nil {
		return View{}, err
	}

	merged := cached.Merge(derived)
	merged.SavedAt = e.now()
	if err := e.cache.Save(merged); err != nil {
		e.logger.Error("session cache save failed", "course", resolved, "error", err)
	}

	e.rosters[resolved] = roster
	e.aliases[requested] = resolved
	return viewFrom(merged, requested), nil
}

// loadRoster fetches the course by exact name, then by fuzzy match against
// every course on the roster. An unknown course yields an empty roster.
func (e *Engine) loadRoster(ctx context.Context, requested string) (string, []election.Student, error) {
	if resolved, ok := e.aliases[requested]; ok && resolved != requested {
		requested = resolved
	}

	roster, err := e.students.ByCourse(ctx, requested)
	if err != nil {
		return "", nil, fmt.Errorf("load roster %s: %w", requested, err)
	}
	if len(roster) > 0 {
		return requested, roster, nil
	}

	courses, err := e.students.Courses(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("list courses: %w", err)
	}
	match, ok := course.FindMatchingCourse(requested, courses)
	if !ok {
		e.logger.Warn("no roster for course",
			"course", requested,
			"suggestions", course.Suggest(requested, courses))
		return requested, []election.Student{}, nil
	}

	e.logger.Info("course matched by name", "requested", requested, "course", match)
	roster, err = e.students.ByCourse(ctx, match)
	if err != nil {
		return "", nil, fmt.Errorf("load roster %s: %w", match, err)
	}
	return match, roster, nil
}

// derive builds the store-side records: flags first, then the vote log
// upgrades pending records. A vote may name its student by any identifier;
// the first one found in resolution order is used. With repair set, upgrades
// are written back to the student documents.
func (e *Engine) derive(ctx context.Context, roster []election.Student, repair bool) (map[string]StatusRecord, error) {
	derived := make(map[string]StatusRecord, len(roster))
	var ids []string
	for _, st := range roster {
		derived[st.Key()] = recordFor(st.Key(), st.Flags())
		ids = append(ids, st.Identifiers()...)
	}

	votes, err := e.votes.ForStudents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cross-reference votes: %w", err)
	}

	for _, st := range roster {
		key := st.Key()
		rec := derived[key]
		if rec.Status != StatusPending {
			continue
		}
		vote, ok := firstVote(votes, st)
		if !ok {
			continue
		}
		at := vote.Timestamp
		rec.Status = StatusVoted
		rec.VotedAt = &at
		derived[key] = rec

		if !repair {
			continue
		}
		f := st.Flags()
		f.Voted, f.VotedAt = true, at
		if _, err := e.students.SetFlags(ctx, st.ID, f); err != nil {
			e.writeFailed("repair", st.ID, err)
			continue
		}
		e.logger.Info("student repaired from vote log", "student", key, "vote_key", vote.StudentID, "voted_at", at)
	}
	return derived, nil
}

func firstVote(votes map[string]election.VoteRecord, st election.Student) (election.VoteRecord, bool) {
	for _, id := range st.Identifiers() {
		if v, ok := votes[id]; ok {
			return v, true
		}
	}
	return election.VoteRecord{}, false
}

// flushUnsynced writes unsynced optimistic records to their student
// documents and returns how many reached the store.
func (e *Engine) flushUnsynced(ctx context.Context, cached *sessioncache.CourseSessionCache, roster []election.Student) int {
	flushed := 0
	for _, id := range cached.UnsyncedIDs() {
		rec := cached.Records[id]
		st, ok := election.Resolve(roster, id)
		if !ok {
			var err error
			st, err = e.students.Resolve(ctx, id)
			if err != nil {
				e.logger.Debug("unsynced record has no student", "student", id, "error", err)
				continue
			}
		}

		if _, err := e.students.SetFlags(ctx, st.ID, flagsFor(rec, st.Flags(), e.now())); err != nil {
			e.writeFailed("flush", st.ID, err)
			continue
		}
		cached.Set(rec, false)
		flushed++
	}
	if flushed > 0 {
		e.logger.Info("unsynced records flushed", "course", cached.Course, "count", flushed)
		if e.metrics != nil {
			e.metrics.UnsyncedFlushed.Add(float64(flushed))
		}
	}
	return flushed
}

func (e *Engine) degradedLocked(requested string, cause error) (View, error) {
	failure := &Failure{Code: FailureStoreError, Message: cause.Error()}
	if store.IsUnavailable(cause) {
		failure.Code = FailureStoreUnavailable
	}

	e.logger.Warn("serving optimistic cache", "course", requested, "failure", failure.Error())
	if e.metrics != nil {
		e.metrics.DegradedLoads.Inc()
	}

	cached, err := e.loadCache(e.resolvedName(requested))
	if err != nil {
		return View{}, fmt.Errorf("degraded load %s: %w", requested, err)
	}
	view := viewFrom(cached, requested)
	view.Degraded = true
	view.Failure = failure
	return view, nil
}

func (e *Engine) resolvedName(requested string) string {
	if resolved, ok := e.aliases[requested]; ok {
		return resolved
	}
	return requested
}

func (e *Engine) loadCache(courseName string) (sessioncache.CourseSessionCache, error) {
	cached, ok, err := e.cache.Load(courseName)
	if err != nil {
		return sessioncache.CourseSessionCache{}, fmt.Errorf("load session cache %s: %w", courseName, err)
	}
	if !ok {
		return sessioncache.New(courseName), nil
	}
	return cached, nil
}

func (e *Engine) writeFailed(op, id string, err error) {
	e.logger.Error("store write failed; left for next pass", "op", op, "student", id, "error", err)
	if e.metrics != nil {
		e.metrics.StoreWriteFailures.WithLabelValues(op).Inc()
	}
}

func (e *Engine) observePass(trigger string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReconcilePasses.WithLabelValues(trigger).Inc()
	e.metrics.ReconcileDuration.Observe(e.now().Sub(start).Seconds())
}

// recordFor derives a status record from document flags.
func recordFor(studentID string, f election.Flags) StatusRecord {
	rec := StatusRecord{StudentID: studentID, Status: StatusPending}
	if f.Voted && !f.VotedAt.IsZero() {
		at := f.VotedAt
		rec.VotedAt = &at
	}
	switch {
	case f.Absent:
		rec.Status = StatusAbsent
		rec.IsAbsent = true
	case f.Voted:
		rec.Status = StatusVoted
	}
	return rec
}

// flagsFor turns a status record back into document flags, keeping prev's
// timestamps where the record does not set them.
func flagsFor(rec StatusRecord, prev election.Flags, now time.Time) election.Flags {
	f := election.Flags{VotedAt: prev.VotedAt, AbsentAt: prev.AbsentAt}
	if rec.VotedAt != nil {
		f.VotedAt = *rec.VotedAt
	}
	switch rec.Status {
	case StatusVoted:
		f.Voted = true
	case StatusAbsent:
		f.Voted = prev.Voted
		f.Absent = true
		if f.AbsentAt.IsZero() {
			f.AbsentAt = now
		}
	default:
		f.Voted = false
		f.VotedAt = time.Time{}
	}
	if rec.IsAbsent {
		f.Absent = true
	}
	return f
}
