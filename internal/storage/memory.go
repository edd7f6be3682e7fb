package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
)

// MemoryStorage is an in-memory implementation of service.Storage, intended
// for tests and ephemeral runs. It honors the same invariants as the SQLite
// store: one identity per (company, fingerprint), link no-op on reprocess,
// max-weight edge upsert, append-only ledger with monotonic sequence.
type MemoryStorage struct {
	mu              sync.RWMutex
	rawEvents       map[string]model.RawEvent
	identities      map[string]model.Identity // keyed by identity id
	identityByKey   map[string]string         // (company|fingerprint) -> identity id
	links           map[string]model.IdentityLink
	edges           map[string]model.IdentityEdge
	entries         []model.LedgerEntry
	entryKeys       map[string]int      // (identity|source event) -> entry index
	projected       map[string]struct{} // identities with an initial (non-correction) entry
	classifications map[string]model.Classification
	exceptions      []model.Exception
	nextSeq         int64
}

var _ service.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rawEvents:       make(map[string]model.RawEvent),
		identities:      make(map[string]model.Identity),
		identityByKey:   make(map[string]string),
		links:           make(map[string]model.IdentityLink),
		edges:           make(map[string]model.IdentityEdge),
		entryKeys:       make(map[string]int),
		projected:       make(map[string]struct{}),
		classifications: make(map[string]model.Classification),
	}
}

// Migrate is a no-op for the in-memory store.
func (m *MemoryStorage) Migrate(ctx context.Context) error {
	return validateContext(ctx)
}

// Close is a no-op for the in-memory store.
func (m *MemoryStorage) Close() error {
	return nil
}

// SaveRawEvents stores events; known ids are ignored.
func (m *MemoryStorage) SaveRawEvents(ctx context.Context, events []model.RawEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRawEvents(events); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		if _, ok := m.rawEvents[ev.ID]; ok {
			continue
		}
		m.rawEvents[ev.ID] = ev
	}
	return nil
}

// GetRawEvent retrieves a raw event by id.
func (m *MemoryStorage) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.rawEvents[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &ev, nil
}

// ResolveOrCreateIdentity resolves or creates the identity for
// (companyID, fingerprint). The mutex plays the role of the SQLite UNIQUE
// constraint for concurrent callers.
func (m *MemoryStorage) ResolveOrCreateIdentity(ctx context.Context, companyID string, kind model.EventKind, fp string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return "", err
	}
	if err := validateString(fp, "fingerprint"); err != nil {
		return "", err
	}
	if kind == "" {
		kind = model.KindUnknown
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := companyID + "|" + fp
	if id, ok := m.identityByKey[key]; ok {
		return id, nil
	}

	ident := model.Identity{
		ID:            uuid.NewString(),
		CompanyID:     companyID,
		Fingerprint:   fp,
		CanonicalKind: kind,
		CreatedAt:     time.Now().UTC(),
	}
	m.identities[ident.ID] = ident
	m.identityByKey[key] = ident.ID
	return ident.ID, nil
}

// GetIdentity retrieves an identity by id.
func (m *MemoryStorage) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.identities[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &ident, nil
}

// GetIdentityByFingerprint retrieves an identity by its dedup key.
func (m *MemoryStorage) GetIdentityByFingerprint(ctx context.Context, companyID, fp string) (*model.Identity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}
	if err := validateString(fp, "fingerprint"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.identityByKey[companyID+"|"+fp]
	if !ok {
		return nil, common.ErrNotFound
	}
	ident := m.identities[id]
	return &ident, nil
}

// LinkRawEvent records evidence; reprocessing the same pair is a no-op.
func (m *MemoryStorage) LinkRawEvent(ctx context.Context, link model.IdentityLink) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLink(&link); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := link.IdentityID + "|" + link.RawEventID
	if _, ok := m.links[key]; ok {
		return nil
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	m.links[key] = link
	return nil
}

// GetLinksByIdentity retrieves all evidence links for an identity.
func (m *MemoryStorage) GetLinksByIdentity(ctx context.Context, identityID string) ([]model.IdentityLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []model.IdentityLink
	for _, link := range m.links {
		if link.IdentityID == identityID {
			links = append(links, link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

// AddIdentityEdge records a relation; re-adding keeps the greater weight.
func (m *MemoryStorage) AddIdentityEdge(ctx context.Context, edge model.IdentityEdge) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEdge(&edge); err != nil {
		return err
	}
	if edge.FromIdentity == edge.ToIdentity {
		return common.ErrSelfLoopEdge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := edge.FromIdentity + "|" + edge.ToIdentity + "|" + edge.Kind
	if existing, ok := m.edges[key]; ok && existing.Weight >= edge.Weight {
		return nil
	}
	m.edges[key] = edge
	return nil
}

// GetEdgesFrom retrieves outgoing edges for an identity.
func (m *MemoryStorage) GetEdgesFrom(ctx context.Context, identityID string) ([]model.IdentityEdge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var edges []model.IdentityEdge
	for _, edge := range m.edges {
		if edge.FromIdentity == identityID {
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ToIdentity != edges[j].ToIdentity {
			return edges[i].ToIdentity < edges[j].ToIdentity
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges, nil
}

// AppendLedgerEntry appends an entry. An identity's cash fact is projected at
// most once: a second non-correction entry for the identity returns
// common.ErrDuplicateEntry no matter which raw event carried it. Corrections
// (Provenance.Corrects set) append, deduplicated by (identity, source event).
func (m *MemoryStorage) AppendLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.IdentityID + "|" + entry.Provenance.SourceEventID
	if _, ok := m.entryKeys[key]; ok {
		return common.ErrDuplicateEntry
	}
	if entry.Provenance.Corrects == "" {
		if _, ok := m.projected[entry.IdentityID]; ok {
			return common.ErrDuplicateEntry
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.nextSeq++
	entry.Seq = m.nextSeq

	m.entryKeys[key] = len(m.entries)
	if entry.Provenance.Corrects == "" {
		m.projected[entry.IdentityID] = struct{}{}
	}
	m.entries = append(m.entries, *entry)
	return nil
}

// GetLedgerEntries retrieves entries for a company in ingest order.
func (m *MemoryStorage) GetLedgerEntries(ctx context.Context, companyID string, filter service.LedgerFilter) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.LedgerEntry
	for _, entry := range m.entries {
		if entry.CompanyID != companyID {
			continue
		}
		if filter.Start != nil && entry.PostedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && entry.PostedAt.After(*filter.End) {
			continue
		}
		if filter.Direction != "" && entry.Direction != filter.Direction {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GetLedgerEntriesByIdentity retrieves the causal entry chain for an identity.
func (m *MemoryStorage) GetLedgerEntriesByIdentity(ctx context.Context, identityID string) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.LedgerEntry
	for _, entry := range m.entries {
		if entry.IdentityID == identityID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// SaveClassification persists the classification for a ledger entry.
func (m *MemoryStorage) SaveClassification(ctx context.Context, c *model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if c == nil {
		return ErrNilParameter
	}
	if err := validateString(c.LedgerEntryID, "ledgerEntryID"); err != nil {
		return err
	}
	if err := validateString(c.Category, "category"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now().UTC()
	}
	m.classifications[c.LedgerEntryID] = *c
	return nil
}

// GetClassification retrieves the classification for a ledger entry.
func (m *MemoryStorage) GetClassification(ctx context.Context, ledgerEntryID string) (*model.Classification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ledgerEntryID, "ledgerEntryID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.classifications[ledgerEntryID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

// GetUnclassifiedOutflows retrieves outflow entries without a classification.
func (m *MemoryStorage) GetUnclassifiedOutflows(ctx context.Context, companyID string) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.LedgerEntry
	for _, entry := range m.entries {
		if entry.CompanyID != companyID || entry.Direction != model.DirectionOutflow {
			continue
		}
		if _, ok := m.classifications[entry.ID]; ok {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// SaveException records an advisory anomaly.
func (m *MemoryStorage) SaveException(ctx context.Context, exc *model.Exception) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateException(exc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	if exc.CreatedAt.IsZero() {
		exc.CreatedAt = time.Now().UTC()
	}
	m.exceptions = append(m.exceptions, *exc)
	return nil
}

// ListExceptions retrieves exceptions for a company, newest first.
func (m *MemoryStorage) ListExceptions(ctx context.Context, companyID string) ([]model.Exception, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Exception
	for _, exc := range m.exceptions {
		if exc.CompanyID == companyID {
			out = append(out, exc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
