// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite; Update is copy-on-write so failures roll back

package store

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// mockState is the full dataset guarded by MockStore.mu.
type mockState struct {
	admins  map[string]struct{}
	mutable *bool
	version *ContractVersion
	audit   []AuditEntry
}

func (s *mockState) clone() *mockState {
	c := &mockState{
		admins: maps.Clone(s.admins),
		audit:  slices.Clone(s.audit),
	}
	if s.mutable != nil {
		m := *s.mutable
		c.mutable = &m
	}
	if s.version != nil {
		v := *s.version
		c.version = &v
	}
	return c
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	state *mockState

	// failures maps a Tx method name to the error it should return.
	failMu   sync.Mutex
	failures map[string]error

	// Calls counts Tx method invocations by name.
	callsMu sync.Mutex
	calls   map[string]int
}

// Compile-time interface check.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		state: &mockState{
			admins: make(map[string]struct{}),
		},
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// InjectError makes every subsequent call to the named Tx method (e.g.
// "AddAdmin") fail with err. Passing a nil err clears the injection.
func (m *MockStore) InjectError(method string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns how many times the named Tx method has been invoked.
func (m *MockStore) Calls(method string) int {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return m.calls[method]
}

// ResetCalls zeroes every call counter.
func (m *MockStore) ResetCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	clear(m.calls)
}

func (m *MockStore) enter(method string) error {
	m.callsMu.Lock()
	m.calls[method]++
	m.callsMu.Unlock()

	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.failures[method]
}

// View runs fn against the committed state.
func (m *MockStore) View(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&mockTx{store: m, state: m.state, readOnly: true})
}

// Update runs fn against a private copy and publishes it only on success.
func (m *MockStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&mockTx{store: m, state: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// ListAuditLog returns audit entries newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	entries := []AuditEntry{}
	for i := len(m.state.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		e := m.state.audit[i]
		if f.matches(&e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// mockTx implements Tx over one mockState.
type mockTx struct {
	store    *MockStore
	state    *mockState
	readOnly bool
}

func (t *mockTx) write(method string) error {
	if err := t.store.enter(method); err != nil {
		return err
	}
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *mockTx) HasAdmin(ctx context.Context, principal string) (bool, error) {
	if err := t.store.enter("HasAdmin"); err != nil {
		return false, err
	}
	_, ok := t.state.admins[principal]
	return ok, nil
}

func (t *mockTx) ListAdmins(ctx context.Context) ([]string, error) {
	if err := t.store.enter("ListAdmins"); err != nil {
		return nil, err
	}
	admins := slices.Sorted(maps.Keys(t.state.admins))
	if admins == nil {
		admins = []string{}
	}
	return admins, nil
}

func (t *mockTx) AddAdmin(ctx context.Context, principal string) error {
	if err := t.write("AddAdmin"); err != nil {
		return err
	}
	t.state.admins[principal] = struct{}{}
	return nil
}

func (t *mockTx) RemoveAdmin(ctx context.Context, principal string) error {
	if err := t.write("RemoveAdmin"); err != nil {
		return err
	}
	delete(t.state.admins, principal)
	return nil
}

func (t *mockTx) GetMutable(ctx context.Context) (bool, error) {
	if err := t.store.enter("GetMutable"); err != nil {
		return false, err
	}
	if t.state.mutable == nil {
		return false, ErrNotFound
	}
	return *t.state.mutable, nil
}

func (t *mockTx) SetMutable(ctx context.Context, mutable bool) error {
	if err := t.write("SetMutable"); err != nil {
		return err
	}
	t.state.mutable = &mutable
	return nil
}

func (t *mockTx) GetContractVersion(ctx context.Context) (*ContractVersion, error) {
	if err := t.store.enter("GetContractVersion"); err != nil {
		return nil, err
	}
	if t.state.version == nil {
		return nil, ErrNotFound
	}
	v := *t.state.version
	return &v, nil
}

func (t *mockTx) SetContractVersion(ctx context.Context, v *ContractVersion) error {
	if err := t.write("SetContractVersion"); err != nil {
		return err
	}
	stored := *v
	t.state.version = &stored
	return nil
}

func (t *mockTx) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := t.write("AppendAuditLog"); err != nil {
		return err
	}
	if _, err := prepareAuditEntry(e); err != nil {
		return err
	}
	entry := *e
	entry.Detail = maps.Clone(e.Detail)
	t.state.audit = append(t.state.audit, entry)
	return nil
}
