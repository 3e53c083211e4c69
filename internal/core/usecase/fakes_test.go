package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/core/ports"
)

// storeFake keeps requests and documents behind one mutex. RunInTx holds the
// mutex for the whole callback and restores a snapshot, outbox included, when
// it fails.
type storeFake struct {
	mu        sync.Mutex
	requests  map[string]*domain.Request
	documents map[string]*domain.Document
	outbox    *outboxFake

	updateErr    error
	docCreateErr error
	beforeUpdate func()
}

func newStoreFake() *storeFake {
	return &storeFake{
		requests:  make(map[string]*domain.Request),
		documents: make(map[string]*domain.Document),
		outbox:    &outboxFake{},
	}
}

func (s *storeFake) Requests() ports.RequestRepository   { return requestRepoFake{s: s, lock: true} }
func (s *storeFake) Documents() ports.DocumentRepository { return documentRepoFake{s: s, lock: true} }

func (s *storeFake) RunInTx(_ context.Context, fn func(ports.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqSnap := make(map[string]*domain.Request, len(s.requests))
	for k, v := range s.requests {
		reqSnap[k] = v.Clone()
	}
	docSnap := make(map[string]*domain.Document, len(s.documents))
	for k, v := range s.documents {
		docSnap[k] = v.Clone()
	}
	outboxSnap := s.outbox.snapshot()
	err := fn(ports.Stores{
		Requests:  requestRepoFake{s: s},
		Documents: documentRepoFake{s: s},
		Outbox:    s.outbox,
	})
	if err != nil {
		s.requests = reqSnap
		s.documents = docSnap
		s.outbox.restore(outboxSnap)
	}
	return err
}

func (s *storeFake) documentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}

func (s *storeFake) request(id string) *domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Clone()
}

func (s *storeFake) putRequest(r *domain.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.RequestID] = r.Clone()
}

func (s *storeFake) putDocument(d *domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.DocumentID] = d.Clone()
}

type requestRepoFake struct {
	s    *storeFake
	lock bool
}

func (r requestRepoFake) guard() func() {
	if !r.lock {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r requestRepoFake) Create(_ context.Context, req *domain.Request) error {
	defer r.guard()()
	if _, ok := r.s.requests[req.RequestID]; ok {
		return fmt.Errorf("duplicate request %s", req.RequestID)
	}
	r.s.requests[req.RequestID] = req.Clone()
	return nil
}

func (r requestRepoFake) Get(_ context.Context, id string) (*domain.Request, error) {
	defer r.guard()()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get request", errors.New(id))
	}
	return req.Clone(), nil
}

func (r requestRepoFake) Update(_ context.Context, req *domain.Request, expected int64) error {
	if r.s.beforeUpdate != nil {
		r.s.beforeUpdate()
	}
	defer r.guard()()
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	cur, ok := r.s.requests[req.RequestID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update request", errors.New(req.RequestID))
	}
	if cur.Version != expected {
		return domain.WrapError(domain.ErrConcurrentModification, "update request", fmt.Errorf("version %d != %d", cur.Version, expected))
	}
	r.s.requests[req.RequestID] = req.Clone()
	return nil
}

func (r requestRepoFake) List(_ context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	defer r.guard()()
	var out []domain.Request
	for _, req := range r.s.requests {
		if f.CitizenID != "" && req.CitizenID != f.CitizenID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if f.DocumentType != "" && req.DocumentType != f.DocumentType {
			continue
		}
		out = append(out, *req.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r requestRepoFake) CountByTypeAndDate(_ context.Context, code string, day time.Time) (int, error) {
	defer r.guard()()
	n := 0
	for _, req := range r.s.requests {
		if req.DocumentType == code && domain.StartOfDay(req.SubmittedDate.In(day.Location())).Equal(day) {
			n++
		}
	}
	return n, nil
}

type documentRepoFake struct {
	s    *storeFake
	lock bool
}

func (d documentRepoFake) guard() func() {
	if !d.lock {
		return func() {}
	}
	d.s.mu.Lock()
	return d.s.mu.Unlock
}

func (d documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	defer d.guard()()
	if d.s.docCreateErr != nil {
		return d.s.docCreateErr
	}
	if _, ok := d.s.documents[doc.DocumentID]; ok {
		return fmt.Errorf("duplicate document %s", doc.DocumentID)
	}
	d.s.documents[doc.DocumentID] = doc.Clone()
	return nil
}

func (d documentRepoFake) Get(_ context.Context, id string) (*domain.Document, error) {
	defer d.guard()()
	doc, ok := d.s.documents[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", errors.New(id))
	}
	return doc.Clone(), nil
}

func (d documentRepoFake) Update(_ context.Context, doc *domain.Document) error {
	defer d.guard()()
	if _, ok := d.s.documents[doc.DocumentID]; !ok {
		return domain.WrapError(domain.ErrNotFound, "update document", errors.New(doc.DocumentID))
	}
	d.s.documents[doc.DocumentID] = doc.Clone()
	return nil
}

func (d documentRepoFake) MarkAnchored(_ context.Context, id, txID string, at time.Time) error {
	defer d.guard()()
	doc, ok := d.s.documents[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "mark anchored", errors.New(id))
	}
	doc.LedgerStatus = true
	doc.LedgerTxID = domain.StringPtr(txID)
	doc.LedgerTimestamp = domain.TimePtr(at)
	return nil
}

type sequenceFake struct {
	mu   sync.Mutex
	next map[string]int64
	err  error
}

func (f *sequenceFake) Next(_ context.Context, code string, day time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == nil {
		f.next = make(map[string]int64)
	}
	key := code + ":" + day.Format("20060102")
	f.next[key]++
	return f.next[key], nil
}

type catalogFake struct {
	types []domain.DocumentType
}

func (c catalogFake) Lookup(identifier string) (domain.DocumentType, error) {
	id := strings.TrimSpace(identifier)
	for _, t := range c.types {
		if t.Code == id {
			return t, nil
		}
	}
	for _, t := range c.types {
		if t.Name == id {
			return t, nil
		}
	}
	return domain.DocumentType{}, domain.WrapError(domain.ErrUnknownDocumentType, "lookup document type", fmt.Errorf("%q", identifier))
}

func (c catalogFake) List() []domain.DocumentType { return c.types }

func testCatalog() catalogFake {
	return catalogFake{types: []domain.DocumentType{
		{
			Code:                    "CMND",
			Name:                    "Chứng minh nhân dân",
			RequiredFields:          []string{"full_name", "date_of_birth", "place_of_origin", "place_of_residence"},
			RequiresOfficerApproval: true,
			EstimatedProcessingDays: 15,
			Fee:                     0,
			StoreOnLedger:           true,
		},
		{
			Code:                     "DKKH",
			Name:                     "Đăng ký kết hôn",
			RequiredFields:           []string{"husband_name", "wife_name"},
			RequiresOfficerApproval:  true,
			RequiresChairmanApproval: true,
			EstimatedProcessingDays:  5,
			StoreOnLedger:            true,
		},
		{
			Code:                    "DKTT",
			Name:                    "Đăng ký thường trú",
			RequiredFields:          []string{"address"},
			EstimatedProcessingDays: 7,
			Fee:                     20000,
		},
	}}
}

type staffFake struct {
	id string
}

func (f staffFake) AnyStaff(context.Context) (string, bool, error) {
	return f.id, f.id != "", nil
}

// fingerprintFake hashes the formatted payload; stable for equal payloads.
type fingerprintFake struct {
	err error
}

func (f fingerprintFake) Fingerprint(payload map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, payload[k])
	}
	return "fp:" + b.String(), nil
}

type notifierFake struct {
	mu  sync.Mutex
	ids []string
}

func (f *notifierFake) DocumentIssued(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *notifierFake) issued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type ledgerFake struct {
	mu       sync.Mutex
	records  map[string]domain.LedgerRecord
	err      error
	queryErr error
	calls    int
}

func (f *ledgerFake) RecordEvent(_ context.Context, kind, subject string, data map[string]any) (domain.LedgerReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.LedgerReceipt{}, f.err
	}
	if f.records == nil {
		f.records = make(map[string]domain.LedgerRecord)
	}
	tx := fmt.Sprintf("0xtx%d", f.calls)
	f.records[kind+"/"+subject] = domain.LedgerRecord{Kind: kind, SubjectID: subject, TxID: tx, Data: data}
	return domain.LedgerReceipt{TxID: tx, Status: "confirmed", BlockNumber: int64(f.calls)}, nil
}

func (f *ledgerFake) QueryEvent(_ context.Context, kind, subject string) (domain.LedgerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return domain.LedgerRecord{}, f.queryErr
	}
	rec, ok := f.records[kind+"/"+subject]
	if !ok {
		return domain.LedgerRecord{}, domain.WrapError(domain.ErrNotFound, "query ledger", errors.New(subject))
	}
	return rec, nil
}

type outboxFake struct {
	mu      sync.Mutex
	entries map[string]domain.OutboxEntry
}

func (f *outboxFake) Schedule(_ context.Context, id string, notBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]domain.OutboxEntry)
	}
	if _, ok := f.entries[id]; ok {
		return nil
	}
	f.entries[id] = domain.OutboxEntry{DocumentID: id, EnqueuedAt: notBefore, NextAttempt: notBefore}
	return nil
}

func (f *outboxFake) snapshot() map[string]domain.OutboxEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.OutboxEntry, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out
}

func (f *outboxFake) restore(entries map[string]domain.OutboxEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *outboxFake) Enqueue(_ context.Context, id, lastErr string, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]domain.OutboxEntry)
	}
	e := f.entries[id]
	e.DocumentID = id
	e.Attempts++
	e.LastError = lastErr
	e.NextAttempt = next
	f.entries[id] = e
	return nil
}

func (f *outboxFake) Due(_ context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxEntry
	for _, e := range f.entries {
		if !e.NextAttempt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *outboxFake) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	return nil
}

func (f *outboxFake) CountPending(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *outboxFake) entry(id string) (domain.OutboxEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	return e, ok
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIssued(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeDocumentIssued(context.Context, func(context.Context, string) error) error {
	return nil
}

type observerFake struct {
	mu          sync.Mutex
	transitions []string
	anchors     int
}

func (o *observerFake) RequestSubmitted(string) {}

func (o *observerFake) Transitioned(from, to domain.RequestStatus, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = domain.KindName(err)
	}
	o.transitions = append(o.transitions, fmt.Sprintf("%s->%s:%s", from, to, result))
}

func (o *observerFake) DocumentIssued(string, string) {}

func (o *observerFake) AnchorFinished(time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.anchors++
}

var (
	citizenAn   = domain.NewActor("citizen-an", "Nguyen Van An", domain.RoleCitizen)
	citizenBinh = domain.NewActor("citizen-binh", "Tran Thi Binh", domain.RoleCitizen)
	officerLan  = domain.NewActor("officer-lan", "Le Thi Lan", domain.RoleOfficer)
	chairmanHo  = domain.NewActor("chairman-ho", "Ho Van Minh", domain.RoleChairman)
)
