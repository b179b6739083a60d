package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/payment"
)

// blobRepoStub keeps blobs in memory.
type blobRepoStub struct {
	mu        sync.Mutex
	records   map[string]models.BlobRecord
	chunks    map[string][][]byte
	createErr error
	existsErr error
	block     chan struct{}
	creates   int
	// failOn makes the n-th Create call fail.
	failOn int
}

func newBlobRepoStub() *blobRepoStub {
	return &blobRepoStub{records: make(map[string]models.BlobRecord), chunks: make(map[string][][]byte)}
}

func (b *blobRepoStub) Create(ctx context.Context, record *models.BlobRecord, chunks [][]byte) error {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creates++
	if b.createErr != nil {
		return b.createErr
	}
	if b.failOn > 0 && b.creates == b.failOn {
		return errors.New("disk full")
	}
	b.records[record.ID] = *record
	b.chunks[record.ID] = chunks
	return nil
}

func (b *blobRepoStub) GetByID(ctx context.Context, id string) (*models.BlobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (b *blobRepoStub) ReadChunks(ctx context.Context, id string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks[id], nil
}

func (b *blobRepoStub) Exists(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.existsErr != nil {
		return false, b.existsErr
	}
	_, ok := b.records[id]
	return ok, nil
}

func (b *blobRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.records[id]
	delete(b.records, id)
	delete(b.chunks, id)
	return ok, nil
}

func (b *blobRepoStub) ListAfter(ctx context.Context, cursor *repository.BlobCursor, limit int) ([]models.BlobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := make([]models.BlobRecord, 0, len(b.records))
	for _, r := range b.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	out := make([]models.BlobRecord, 0, limit)
	for _, r := range all {
		if cursor != nil {
			if r.CreatedAt.Before(cursor.CreatedAt) || (r.CreatedAt.Equal(cursor.CreatedAt) && r.ID <= cursor.ID) {
				continue
			}
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *blobRepoStub) SetOwnerIfEmpty(ctx context.Context, id string, owner models.DocumentRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[id]
	if ok && r.OwnerCollection == nil {
		c, d := owner.Collection, owner.DocumentID
		r.OwnerCollection, r.OwnerDocumentID = &c, &d
		b.records[id] = r
	}
	return nil
}

func (b *blobRepoStub) ClearOwner(ctx context.Context, id string, owner models.DocumentRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[id]
	if ok && r.OwnerRef() != nil && *r.OwnerRef() == owner {
		r.OwnerCollection, r.OwnerDocumentID = nil, nil
		b.records[id] = r
	}
	return nil
}

// backdate moves a blob's creation time into the past.
func (b *blobRepoStub) backdate(id string, age time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.records[id]
	r.CreatedAt = r.CreatedAt.Add(-age)
	b.records[id] = r
}

func (b *blobRepoStub) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// linkStoreStub is the in-memory asset link ledger.
type linkStoreStub struct {
	mu        sync.Mutex
	links     map[linkKey]models.AssetLink
	upsertErr error
}

func newLinkStoreStub() *linkStoreStub {
	return &linkStoreStub{links: make(map[linkKey]models.AssetLink)}
}

func (l *linkStoreStub) Upsert(ctx context.Context, link *models.AssetLink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.upsertErr != nil {
		return l.upsertErr
	}
	l.links[linkKey{link.Collection, link.DocumentID, link.BlobID}] = *link
	return nil
}

func (l *linkStoreStub) Delete(ctx context.Context, doc models.DocumentRef, blobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.links, linkKey{doc.Collection, doc.DocumentID, blobID})
	return nil
}

func (l *linkStoreStub) DeleteByDocument(ctx context.Context, doc models.DocumentRef) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for key := range l.links {
		if key.collection == doc.Collection && key.documentID == doc.DocumentID {
			ids = append(ids, key.blobID)
			delete(l.links, key)
		}
	}
	return ids, nil
}

func (l *linkStoreStub) ListAll(ctx context.Context) ([]models.AssetLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AssetLink, 0, len(l.links))
	for _, link := range l.links {
		out = append(out, link)
	}
	return out, nil
}

func (l *linkStoreStub) CountByBlob(ctx context.Context, blobID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key := range l.links {
		if key.blobID == blobID {
			n++
		}
	}
	return n, nil
}

func (l *linkStoreStub) has(doc models.DocumentRef, blobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.links[linkKey{doc.Collection, doc.DocumentID, blobID}]
	return ok
}

func (l *linkStoreStub) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.links)
}

// holderStub is a generic reference holder keyed by document id.
type holderStub struct {
	mu         sync.Mutex
	collection string
	docs       map[string][]models.FieldReference
	scanErr    error
	removeErr  error
}

func newHolderStub(collection string) *holderStub {
	return &holderStub{collection: collection, docs: make(map[string][]models.FieldReference)}
}

func (h *holderStub) Collection() string { return h.collection }

func (h *holderStub) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	if h.scanErr != nil {
		return h.scanErr
	}
	h.mu.Lock()
	ids := make([]string, 0, len(h.docs))
	for id := range h.docs {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		h.mu.Lock()
		refs := append([]models.FieldReference(nil), h.docs[id]...)
		h.mu.Unlock()
		if err := fn(id, refs); err != nil {
			return err
		}
	}
	return nil
}

func (h *holderStub) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	if h.removeErr != nil {
		return nil, h.removeErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	drop := make(map[string]bool, len(blobIDs))
	for _, b := range blobIDs {
		drop[b] = true
	}
	var kept, removed []models.FieldReference
	for _, fr := range h.docs[id] {
		if drop[fr.Ref.BlobID] {
			removed = append(removed, fr)
			continue
		}
		kept = append(kept, fr)
	}
	h.docs[id] = kept
	return removed, nil
}

// contentHolderStub adapts a contentRepoStub to the holder contract using the
// same field rules as the real repository.
type contentHolderStub struct{ repo *contentRepoStub }

func (h contentHolderStub) Collection() string { return models.CollectionContent }

func (h contentHolderStub) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	h.repo.mu.Lock()
	docs := make([]models.ContentDocument, 0, len(h.repo.docs))
	for _, d := range h.repo.docs {
		docs = append(docs, d)
	}
	h.repo.mu.Unlock()
	for i := range docs {
		if err := fn(docs[i].ID, docs[i].References()); err != nil {
			return err
		}
	}
	return nil
}

func (h contentHolderStub) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	doc, ok := h.repo.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var removed []models.FieldReference
	for _, fr := range doc.References() {
		for _, b := range blobIDs {
			if fr.Ref.BlobID == b {
				removed = append(removed, fr)
			}
		}
	}
	for _, b := range blobIDs {
		doc.DropReference(b)
	}
	h.repo.docs[id] = doc
	return removed, nil
}

// contentRepoStub stores content documents in memory.
type contentRepoStub struct {
	mu        sync.Mutex
	docs      map[string]models.ContentDocument
	createErr error
	lists     int
}

func newContentRepoStub() *contentRepoStub {
	return &contentRepoStub{docs: make(map[string]models.ContentDocument)}
}

func (c *contentRepoStub) Create(ctx context.Context, doc *models.ContentDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	c.docs[doc.ID] = *doc
	return nil
}

func (c *contentRepoStub) GetByID(ctx context.Context, id string) (*models.ContentDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (c *contentRepoStub) Update(ctx context.Context, doc *models.ContentDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.ID]; !ok {
		return sql.ErrNoRows
	}
	c.docs[doc.ID] = *doc
	return nil
}

func (c *contentRepoStub) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(c.docs, id)
	return nil
}

func (c *contentRepoStub) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentDocument, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	var out []models.ContentDocument
	for _, d := range c.docs {
		if filter.Type != "" && d.Type != filter.Type {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

// studentRepoStub keeps students in memory with the unique indexes enforced.
type studentRepoStub struct {
	mu        sync.Mutex
	students  map[string]models.Student
	counters  map[int]int
	createErr error
	updateErr error
	collide   int
}

func newStudentRepoStub() *studentRepoStub {
	return &studentRepoStub{students: make(map[string]models.Student), counters: make(map[int]int)}
}

func (s *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.students {
		if filter.Grade != "" && st.CurrentGrade != filter.Grade {
			continue
		}
		out = append(out, st)
	}
	return out, len(out), nil
}

func (s *studentRepoStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (s *studentRepoStub) FindBySourceRequest(ctx context.Context, requestID string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.SourceRequestID != nil && *st.SourceRequestID == requestID {
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *studentRepoStub) NextSequence(ctx context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[year]++
	return s.counters[year], nil
}

func (s *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if s.collide > 0 {
		s.collide--
		return repository.ErrDuplicateStudentID
	}
	for _, st := range s.students {
		if st.StudentID == student.StudentID {
			return repository.ErrDuplicateStudentID
		}
		if student.SourceRequestID != nil && st.SourceRequestID != nil && *st.SourceRequestID == *student.SourceRequestID {
			return repository.ErrDuplicateSourceRequest
		}
	}
	s.students[student.ID] = *student
	return nil
}

func (s *studentRepoStub) Update(ctx context.Context, student *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	current, ok := s.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	updated := *student
	updated.StudentID = current.StudentID
	updated.SourceRequestID = current.SourceRequestID
	s.students[student.ID] = updated
	return nil
}

func (s *studentRepoStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.students, id)
	return nil
}

func (s *studentRepoStub) countFor(requestID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.students {
		if st.SourceRequestID != nil && *st.SourceRequestID == requestID {
			n++
		}
	}
	return n
}

// admissionRepoStub enforces the status compare-and-swap under a mutex.
type admissionRepoStub struct {
	mu            sync.Mutex
	requests      map[string]models.AdmissionRequest
	transitions   []models.AdmissionTransition
	failTo        map[models.AdmissionStatus]error
	refundUpdates []models.RefundStatus
	afterClaim    func()
}

func newAdmissionRepoStub() *admissionRepoStub {
	return &admissionRepoStub{requests: make(map[string]models.AdmissionRequest), failTo: make(map[models.AdmissionStatus]error)}
}

func (a *admissionRepoStub) Create(ctx context.Context, req *models.AdmissionRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if req.PaymentRef != nil {
		for _, existing := range a.requests {
			if existing.PaymentRef != nil && *existing.PaymentRef == *req.PaymentRef {
				return repository.ErrDuplicatePaymentRef
			}
		}
	}
	req.UpdatedAt = req.SubmittedAt
	a.requests[req.ID] = *req
	return nil
}

func (a *admissionRepoStub) GetByID(ctx context.Context, id string) (*models.AdmissionRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

func (a *admissionRepoStub) GetByPaymentRef(ctx context.Context, ref string) (*models.AdmissionRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, req := range a.requests {
		if req.PaymentRef != nil && *req.PaymentRef == ref {
			return &req, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (a *admissionRepoStub) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AdmissionRequest
	for _, req := range a.requests {
		if len(filter.Status) > 0 {
			match := false
			for _, st := range filter.Status {
				match = match || req.Status == st
			}
			if !match {
				continue
			}
		}
		if filter.RefundStatus != "" && req.RefundStatus != filter.RefundStatus {
			continue
		}
		if filter.UpdatedBefore != nil && !req.UpdatedAt.Before(*filter.UpdatedBefore) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	page, size := pageDefaults(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + size
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (a *admissionRepoStub) Transition(ctx context.Context, t models.AdmissionTransition) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failTo[t.To]; err != nil {
		return err
	}
	req, ok := a.requests[t.ID]
	if !ok || req.Status != t.From {
		return sql.ErrNoRows
	}
	req.Status = t.To
	req.UpdatedAt = time.Now().UTC()
	switch {
	case t.ClearReview:
		req.ReviewedBy, req.ReviewedAt, req.AdminNotes = nil, nil, nil
	case t.ReviewedBy != nil:
		req.ReviewedBy, req.ReviewedAt, req.AdminNotes = t.ReviewedBy, t.ReviewedAt, t.AdminNotes
	}
	if t.RefundStatus != "" {
		req.RefundAmount, req.RefundReason, req.RefundStatus = t.RefundAmount, t.RefundReason, t.RefundStatus
	}
	a.requests[t.ID] = req
	a.transitions = append(a.transitions, t)
	if a.afterClaim != nil && t.From == models.AdmissionStatusPending {
		hook := a.afterClaim
		a.afterClaim = nil
		defer hook()
	}
	return nil
}

func (a *admissionRepoStub) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.PaymentStatus = status
	a.requests[id] = req
	return nil
}

func (a *admissionRepoStub) UpdateRefundStatus(ctx context.Context, id string, status models.RefundStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.RefundStatus = status
	a.requests[id] = req
	a.refundUpdates = append(a.refundUpdates, status)
	return nil
}

func (a *admissionRepoStub) status(id string) models.AdmissionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[id].Status
}

// gatewayStub is a deterministic payment gateway.
type gatewayStub struct {
	mu        sync.Mutex
	statuses  map[string]payment.Status
	refundErr error
	refunds   []payment.RefundInstruction
}

func (g *gatewayStub) Status(ctx context.Context, txID string) (payment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[txID]
	if !ok {
		return "", payment.ErrNotConfigured
	}
	return status, nil
}

func (g *gatewayStub) Refund(ctx context.Context, instruction payment.RefundInstruction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, instruction)
	return g.refundErr
}

// dispatcherStub records enqueued jobs.
type dispatcherStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

// auditStub records audit rows.
type auditStub struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

// cacheRepoStub is an in-memory cache repository storing values by key.
type cacheRepoStub struct {
	mu      sync.Mutex
	values  map[string]interface{}
	deletes []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: make(map[string]interface{})}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	list, ok := dest.(*cachedContentList)
	if !ok {
		return errors.New("unexpected cache destination")
	}
	*list = v.(cachedContentList)
	return nil
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

var (
	adminIdentity  = &models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
	editorIdentity = &models.Identity{UserID: "editor-1", Role: models.RoleEditor}
)

// fixture wires the real services over in-memory stubs.
type fixture struct {
	blobRepo   *blobRepoStub
	links      *linkStoreStub
	students   *studentRepoStub
	admissions *admissionRepoStub
	content    *contentRepoStub
	gateway    *gatewayStub
	dispatcher *dispatcherStub
	audit      *auditStub

	blobSvc      *BlobService
	assetSvc     *AssetService
	studentSvc   *StudentService
	admissionSvc *AdmissionService
	contentSvc   *ContentService
}

func newFixture() *fixture {
	f := &fixture{
		blobRepo:   newBlobRepoStub(),
		links:      newLinkStoreStub(),
		students:   newStudentRepoStub(),
		admissions: newAdmissionRepoStub(),
		content:    newContentRepoStub(),
		gateway:    &gatewayStub{statuses: map[string]payment.Status{}},
		dispatcher: &dispatcherStub{},
		audit:      &auditStub{},
	}
	f.blobSvc = NewBlobService(f.blobRepo, BlobServiceConfig{ChunkSize: 4, OpTimeout: time.Second, ListPageSize: 2}, nil, nil, nil)
	holders := []ReferenceHolder{
		contentHolderStub{repo: f.content},
		studentHolderStub{repo: f.students},
		admissionHolderStub{repo: f.admissions},
	}
	f.assetSvc = NewAssetService(f.links, f.blobSvc, holders, AssetServiceConfig{LinkGrace: time.Hour}, f.audit, nil, nil)
	f.studentSvc = NewStudentService(f.students, f.assetSvc, StudentServiceConfig{IDPrefix: "STU", AcademicYearStartMonth: 7}, nil, f.audit, nil)
	f.admissionSvc = NewAdmissionService(f.admissions, f.studentSvc, f.blobSvc, f.assetSvc, f.gateway, f.dispatcher, AdmissionServiceConfig{}, nil, f.audit, nil, nil)
	f.contentSvc = NewContentService(f.content, f.blobSvc, f.assetSvc, nil, nil, f.audit, nil)
	return f
}

// studentHolderStub exposes studentRepoStub documents to the reconciler.
type studentHolderStub struct{ repo *studentRepoStub }

func (h studentHolderStub) Collection() string { return models.CollectionStudents }

func (h studentHolderStub) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	h.repo.mu.Lock()
	var docs []models.Student
	for _, st := range h.repo.students {
		docs = append(docs, st)
	}
	h.repo.mu.Unlock()
	for _, st := range docs {
		refs := make([]models.FieldReference, 0, len(st.Documents))
		for _, ref := range st.Documents {
			refs = append(refs, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
		}
		if err := fn(st.ID, refs); err != nil {
			return err
		}
	}
	return nil
}

func (h studentHolderStub) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	st := h.repo.students[id]
	var removed []models.FieldReference
	for _, b := range blobIDs {
		if st.Documents.Contains(b) {
			for _, ref := range st.Documents {
				if ref.BlobID == b {
					removed = append(removed, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
				}
			}
			st.Documents = st.Documents.Without(b)
		}
	}
	h.repo.students[id] = st
	return removed, nil
}

// admissionHolderStub exposes admission documents to the reconciler.
type admissionHolderStub struct{ repo *admissionRepoStub }

func (h admissionHolderStub) Collection() string { return models.CollectionAdmissions }

func (h admissionHolderStub) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	h.repo.mu.Lock()
	var docs []models.AdmissionRequest
	for _, r := range h.repo.requests {
		docs = append(docs, r)
	}
	h.repo.mu.Unlock()
	for _, r := range docs {
		refs := make([]models.FieldReference, 0, len(r.Documents))
		for _, ref := range r.Documents {
			refs = append(refs, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
		}
		if err := fn(r.ID, refs); err != nil {
			return err
		}
	}
	return nil
}

func (h admissionHolderStub) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	r := h.repo.requests[id]
	var removed []models.FieldReference
	for _, b := range blobIDs {
		for _, ref := range r.Documents {
			if ref.BlobID == b {
				removed = append(removed, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
			}
		}
		r.Documents = r.Documents.Without(b)
	}
	h.repo.requests[id] = r
	return removed, nil
}
