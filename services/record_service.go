package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"hseproject/models"
	repository "hseproject/repositories"
	"hseproject/schema"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("only an administrator or the record's creator may do this")
	ErrIDExhausted     = errors.New("could not generate a unique identifier")
	ErrNoHumanID       = errors.New("this record type has no generated identifier")
	ErrUnknownReport   = errors.New("unknown report")
	ErrNoCounter       = errors.New("this record type has no such counter")
)

// MaxIDAttempts caps human-readable ID generation.
const MaxIDAttempts = 10

// Page size limits of list queries.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery is a parsed list request.
type ListQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Params    url.Values
}

// RecordService drives one record kind through create, update, action,
// delete and the read side.
type RecordService struct {
	kind   *schema.Kind
	repo   repository.RecordRepository
	logger *zap.Logger
	Now    func() time.Time
	Rand   func(n int) int
}

func NewRecordService(kind *schema.Kind, store repository.Store, logger *zap.Logger) *RecordService {
	return &RecordService{
		kind:   kind,
		repo:   store.Records(kind.Collection, kind.UniqueKeys()...),
		logger: logger.With(zap.String("kind", kind.Name)),
		Now:    func() time.Time { return time.Now().UTC() },
		Rand:   rand.IntN,
	}
}

func (s *RecordService) Kind() *schema.Kind {
	return s.kind
}

// Create stores a record through the submit path.
func (s *RecordService) Create(ctx context.Context, actor models.Actor, payload models.Document) (models.Document, error) {
	doc, err := s.create(ctx, actor, payload, false)
	observe(s.kind.Name, "create", err)
	return doc, err
}

// SaveDraft stores a record in the draft state with only the minimal
// checks applied.
func (s *RecordService) SaveDraft(ctx context.Context, actor models.Actor, payload models.Document) (models.Document, error) {
	doc, err := s.create(ctx, actor, payload, true)
	observe(s.kind.Name, "save-draft", err)
	return doc, err
}

func (s *RecordService) create(ctx context.Context, actor models.Actor, payload models.Document, draft bool) (models.Document, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	now := s.Now()
	input := s.kind.Sanitize(payload)
	doc, err := s.kind.Normalize(input)
	if err != nil {
		return nil, err
	}

	lc := s.kind.Lifecycle
	field := s.kind.StatusField()
	if draft {
		if !lc.HasDraft() {
			return nil, schema.Invalid(field, fmt.Sprintf("%s records cannot be saved as drafts", s.kind.Title))
		}
		doc[field] = lc.Draft
	} else {
		status, ok := lc.CreateStatus(doc.String(field))
		if !ok {
			return nil, schema.Invalid(field, fmt.Sprintf("%s records cannot be created as %s", s.kind.Title, doc.String(field)))
		}
		doc[field] = status
	}
	s.kind.ApplyDefaults(doc)

	doc[models.FieldID] = primitive.NewObjectID().Hex()
	doc[models.FieldCreatedBy] = actor.ID
	doc[models.FieldUpdatedBy] = actor.ID
	doc[models.FieldCreatedAt] = now
	doc[models.FieldUpdatedAt] = now

	s.kind.Prepare(doc, schema.DeriveEnv{Now: now, Input: input, Actor: actor, Creating: true})
	if err := s.kind.Validate(doc, now); err != nil {
		return nil, err
	}
	if err := s.insert(ctx, doc, now); err != nil {
		return nil, err
	}
	s.logger.Info("record created",
		zap.String("id", doc.ID()),
		zap.String("status", s.kind.Status(doc)),
		zap.String("actor", actor.ID))
	return doc, nil
}

// insert stores doc, generating its human-readable ID unless the caller
// supplied one.
func (s *RecordService) insert(ctx context.Context, doc models.Document, now time.Time) error {
	h := s.kind.HumanID
	if h == nil || doc.Present(h.Field) {
		return s.repo.Insert(ctx, doc)
	}
	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		candidate, err := s.candidate(ctx, now)
		if err != nil {
			return err
		}
		if candidate == "" {
			continue
		}
		doc[h.Field] = candidate
		err = s.repo.Insert(ctx, doc)
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		humanIDRetries.WithLabelValues(s.kind.Name).Inc()
	}
	delete(doc, h.Field)
	return s.exhausted()
}

// candidate draws one identifier and returns "" when it is already taken.
func (s *RecordService) candidate(ctx context.Context, now time.Time) (string, error) {
	h := s.kind.HumanID
	id := h.Generate(now, s.Rand)
	taken, err := s.repo.Exists(ctx, repository.Where(repository.Eq(h.Field, id)))
	if err != nil {
		return "", err
	}
	if taken {
		humanIDRetries.WithLabelValues(s.kind.Name).Inc()
		return "", nil
	}
	return id, nil
}

func (s *RecordService) exhausted() error {
	s.logger.Error("human-readable id generation exhausted",
		zap.String("field", s.kind.HumanID.Field),
		zap.Int("attempts", MaxIDAttempts))
	return fmt.Errorf("%s %s after %d attempts: %w", s.kind.Name, s.kind.HumanID.Field, MaxIDAttempts, ErrIDExhausted)
}

// GenerateID previews a free human-readable identifier.
func (s *RecordService) GenerateID(ctx context.Context) (string, error) {
	if s.kind.HumanID == nil {
		return "", ErrNoHumanID
	}
	now := s.Now()
	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		id, err := s.candidate(ctx, now)
		if err != nil || id != "" {
			return id, err
		}
	}
	return "", s.exhausted()
}

func (s *RecordService) Get(ctx context.Context, id string) (models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.kind.Read(doc, s.Now()), nil
}

// HasCounter reports whether field is an engagement counter of the kind.
func (s *RecordService) HasCounter(field string) bool {
	for _, f := range s.kind.Fields {
		if f.Name == field && f.IsCounter {
			return true
		}
	}
	return false
}

// ViewRecord fetches a record and counts the view. It is the only read
// with a side effect.
func (s *RecordService) ViewRecord(ctx context.Context, id string) (models.Document, error) {
	if !s.HasCounter("views") {
		return s.Get(ctx, id)
	}
	doc, err := s.repo.Increment(ctx, id, "views", 1)
	if err != nil {
		return nil, err
	}
	return s.kind.Read(doc, s.Now()), nil
}

// Like adds one like.
func (s *RecordService) Like(ctx context.Context, actor models.Actor, id string) (models.Document, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !s.HasCounter("likes") {
		return nil, ErrNoCounter
	}
	doc, err := s.repo.Increment(ctx, id, "likes", 1)
	observe(s.kind.Name, "like", err)
	if err != nil {
		return nil, err
	}
	return s.kind.Read(doc, s.Now()), nil
}

// List returns one page of records matching the query's filters.
func (s *RecordService) List(ctx context.Context, q ListQuery) ([]models.Document, models.Pagination, error) {
	scope, err := s.Scope(q.Params)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if err := s.settle(ctx); err != nil {
		return nil, models.Pagination{}, err
	}
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	sortBy := q.SortBy
	if sortBy == "" || !s.kind.Sortable(sortBy) {
		sortBy = s.kind.DefaultSort()
	}
	sort := []repository.Sort{{Field: sortBy, Desc: !strings.EqualFold(q.SortOrder, "asc")}}
	if sortBy != models.FieldCreatedAt {
		sort = append(sort, repository.Sort{Field: models.FieldCreatedAt, Desc: true})
	}

	total, err := s.repo.Count(ctx, scope)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	docs, err := s.repo.Find(ctx, scope, repository.FindOptions{
		Sort:  sort,
		Skip:  int64((page - 1) * limit),
		Limit: int64(limit),
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	now := s.Now()
	for _, doc := range docs {
		s.kind.Read(doc, now)
	}
	return docs, models.NewPagination(page, limit, total), nil
}

// settle writes read-time status changes, such as warning expiry, back to
// the store so that status filters and aggregates agree with what reads
// return.
func (s *RecordService) settle(ctx context.Context) error {
	if s.kind.Stale == nil {
		return nil
	}
	now := s.Now()
	docs, err := s.repo.Find(ctx, repository.Where(s.kind.Stale(now)...), repository.FindOptions{})
	if err != nil {
		return fmt.Errorf("find stale %s records: %w", s.kind.Name, err)
	}
	for _, doc := range docs {
		s.kind.Read(doc, now)
		if err := s.repo.Replace(ctx, doc.ID(), doc); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("settle %s %s: %w", s.kind.Name, doc.ID(), err)
		}
	}
	if len(docs) > 0 {
		s.logger.Info("records settled", zap.String("kind", s.kind.Name), zap.Int("count", len(docs)))
	}
	return nil
}

// Scope turns query parameters into store conditions: project, status, the
// startDate/endDate window on the kind's primary date and the kind's own
// filters.
func (s *RecordService) Scope(params url.Values) (repository.Query, error) {
	q := repository.Query{}
	ve := &schema.ValidationError{}
	if p := strings.TrimSpace(params.Get(models.FieldProjectID)); p != "" {
		q = q.And(repository.Eq(models.FieldProjectID, p))
	}
	field := s.kind.StatusField()
	for _, param := range []string{models.FieldStatus, field} {
		if v := strings.TrimSpace(params.Get(param)); v != "" {
			q = q.And(repository.Eq(field, v))
			break
		}
	}
	if s.kind.DateField != "" {
		if raw := params.Get("startDate"); raw != "" {
			t, ok := models.ToTime(raw)
			if !ok {
				ve.Add("startDate", "startDate must be a valid date")
			} else {
				q = q.And(repository.Gte(s.kind.DateField, t))
			}
		}
		if raw := params.Get("endDate"); raw != "" {
			t, ok := models.ToTime(raw)
			if !ok {
				ve.Add("endDate", "endDate must be a valid date")
			} else {
				if len(strings.TrimSpace(raw)) == len("2006-01-02") {
					t = t.Add(24*time.Hour - time.Nanosecond)
				}
				q = q.And(repository.Lte(s.kind.DateField, t))
			}
		}
	}
	for _, f := range s.kind.Filters {
		raw := strings.TrimSpace(params.Get(f.Param))
		if raw == "" {
			continue
		}
		switch f.Mode {
		case schema.FilterContains:
			q = q.And(repository.Contains(f.Field, raw))
		case schema.FilterBool:
			b, ok := models.ToBool(raw)
			if !ok {
				ve.Add(f.Param, f.Param+" must be true or false")
				continue
			}
			q = q.And(repository.Eq(f.Field, b))
		default:
			q = q.And(repository.Eq(f.Field, raw))
		}
	}
	return q, ve.Err()
}

// Update merges patch over the stored record. Top-level fields replace the
// stored value, and an empty string or null clears it. A changed status runs
// the matching lifecycle action.
func (s *RecordService) Update(ctx context.Context, actor models.Actor, id string, patch models.Document) (models.Document, error) {
	doc, err := s.update(ctx, actor, id, patch)
	observe(s.kind.Name, "update", err)
	return doc, err
}

func (s *RecordService) update(ctx context.Context, actor models.Actor, id string, patch models.Document) (models.Document, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	field := s.kind.StatusField()
	from := s.kind.Status(s.kind.Read(current.Clone(), now))

	input := s.kind.Sanitize(patch)
	requested, _ := input[field].(string)
	requested = strings.TrimSpace(requested)
	delete(input, field)

	merged := current.Clone()
	for k, v := range input {
		if v == nil {
			delete(merged, k)
			continue
		}
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	doc, err := s.kind.Normalize(merged)
	if err != nil {
		return nil, err
	}
	doc[field] = from

	if requested != "" && requested != from {
		if err := s.kind.Transition(doc, requested, schema.ActionInput{Payload: input, Actor: actor, Now: now}); err != nil {
			return nil, err
		}
		if doc, err = s.kind.Normalize(doc); err != nil {
			return nil, err
		}
	}
	return s.persist(ctx, actor, id, doc, input, now)
}

// Perform runs the named lifecycle action on a stored record.
func (s *RecordService) Perform(ctx context.Context, actor models.Actor, id, action string, payload models.Document) (models.Document, error) {
	doc, err := s.perform(ctx, actor, id, action, payload)
	observe(s.kind.Name, "action:"+action, err)
	return doc, err
}

func (s *RecordService) perform(ctx context.Context, actor models.Actor, id, action string, payload models.Document) (models.Document, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	doc := s.kind.Read(current, now)
	if payload == nil {
		payload = models.Document{}
	}
	input := s.kind.Sanitize(payload)
	if err := s.kind.Perform(doc, action, schema.ActionInput{Payload: input, Actor: actor, Now: now}); err != nil {
		return nil, err
	}
	if doc, err = s.kind.Normalize(doc); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, id, doc, input, now)
}

func (s *RecordService) persist(ctx context.Context, actor models.Actor, id string, doc, input models.Document, now time.Time) (models.Document, error) {
	doc[models.FieldID] = id
	doc[models.FieldUpdatedBy] = actor.ID
	doc[models.FieldUpdatedAt] = now
	s.kind.ApplyDefaults(doc)
	s.kind.Prepare(doc, schema.DeriveEnv{Now: now, Input: input, Actor: actor})
	if err := s.kind.Validate(doc, now); err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, id, doc); err != nil {
		return nil, err
	}
	s.logger.Info("record updated",
		zap.String("id", id),
		zap.String("status", s.kind.Status(doc)),
		zap.String("actor", actor.ID))
	return doc, nil
}

// Delete removes a record. Only administrators and the record's creator
// may delete it.
func (s *RecordService) Delete(ctx context.Context, actor models.Actor, id string) error {
	err := s.delete(ctx, actor, id)
	observe(s.kind.Name, "delete", err)
	return err
}

func (s *RecordService) delete(ctx context.Context, actor models.Actor, id string) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && doc.String(models.FieldCreatedBy) != actor.ID {
		s.logger.Warn("delete denied", zap.String("id", id), zap.String("actor", actor.ID), zap.String("role", actor.Role))
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("record deleted", zap.String("id", id), zap.String("actor", actor.ID))
	return nil
}

// Stats runs the kind's overview aggregates concurrently. Every kind gets
// a total and a per-status breakdown.
func (s *RecordService) Stats(ctx context.Context, params url.Values) (models.Document, error) {
	scope, err := s.Scope(params)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx); err != nil {
		return nil, err
	}
	field := s.kind.StatusField()
	stats := append([]schema.Stat{
		{Name: "byStatus", Agg: repository.Aggregation{
			GroupBy:  field,
			Metrics:  []repository.Metric{repository.Count("count")},
			SortBy:   "count",
			SortDesc: true,
		}},
	}, s.kind.Stats...)

	results := make([]any, len(stats))
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, scope)
		total = n
		return err
	})
	for i, st := range stats {
		g.Go(func() error {
			agg := st.Agg
			agg.Match = scope.And(agg.Match.Conds...)
			rows, err := s.repo.Aggregate(gctx, agg)
			if err != nil {
				return fmt.Errorf("stat %s: %w", st.Name, err)
			}
			if st.Single {
				results[i] = singleRow(rows, agg.Metrics)
			} else {
				results[i] = rows
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := models.Document{"total": total}
	for i, st := range stats {
		out[st.Name] = results[i]
	}
	return out, nil
}

// singleRow collapses a folded aggregation, reporting zeros when nothing
// matched.
func singleRow(rows []models.Document, metrics []repository.Metric) models.Document {
	if len(rows) > 0 {
		row := rows[0]
		delete(row, "_id")
		return row
	}
	row := models.Document{}
	for _, m := range metrics {
		row[m.Name] = 0
	}
	return row
}

// Report runs the kind's report registered under path.
func (s *RecordService) Report(ctx context.Context, path string, params url.Values) (any, error) {
	var report *schema.Report
	for i := range s.kind.Reports {
		if s.kind.Reports[i].Path == path {
			report = &s.kind.Reports[i]
			break
		}
	}
	if report == nil {
		return nil, fmt.Errorf("%s %q: %w", s.kind.Name, path, ErrUnknownReport)
	}
	scope, err := s.Scope(params)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx); err != nil {
		return nil, err
	}
	return report.Run(ctx, schema.ReportContext{
		Kind:   s.kind,
		Repo:   s.repo,
		Scope:  scope,
		Params: params,
		Now:    s.Now(),
	})
}
