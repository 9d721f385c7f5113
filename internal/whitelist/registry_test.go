package whitelist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/whitelist-gateway/internal/address"
	"github.com/2389/whitelist-gateway/internal/metrics"
	"github.com/2389/whitelist-gateway/internal/store"
)

func newTestRegistry(t *testing.T, admins []string, mutable bool) (*Registry, *store.MockStore) {
	t.Helper()
	s := store.NewMockStore()
	r := NewRegistry(s)
	_, err := r.Instantiate(context.Background(), "creator", admins, mutable)
	require.NoError(t, err)
	return r, s
}

func mustList(t *testing.T, r *Registry) *AdminList {
	t.Helper()
	list, err := r.ListAdmins(context.Background())
	require.NoError(t, err)
	return list
}

func TestRegistry_UpdateAndFreezeScenario(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, []string{"alice", "bob", "carl"}, true)

	resp, err := r.UpdateAdmins(ctx, "alice", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdateAdmins, resp.Action())
	assert.Equal(t, &AdminList{Admins: []string{"alice", "bob"}, Mutable: true}, mustList(t, r))

	_, err = r.Freeze(ctx, "carl")
	assert.ErrorIs(t, err, ErrUnauthorized)

	resp, err = r.Freeze(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, ActionFreeze, resp.Action())
	assert.False(t, mustList(t, r).Mutable)

	_, err = r.UpdateAdmins(ctx, "alice", []string{"alice"})
	assert.ErrorIs(t, err, ErrFrozen)
	assert.Equal(t, []string{"alice", "bob"}, mustList(t, r).Admins)
}

func TestRegistry_Instantiate(t *testing.T) {
	ctx := context.Background()

	t.Run("canonicalizes and collapses duplicates", func(t *testing.T) {
		r, _ := newTestRegistry(t, []string{"Carl", " alice", "carl", "BOB"}, true)
		assert.Equal(t, []string{"alice", "bob", "carl"}, mustList(t, r).Admins)

		info, err := r.ContractInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, ContractName, info.Contract)
		assert.Equal(t, ContractVersion, info.Version)
	})

	t.Run("invalid principal writes nothing", func(t *testing.T) {
		s := store.NewMockStore()
		r := NewRegistry(s)

		_, err := r.Instantiate(ctx, "", []string{"alice", "no spaces"}, true)
		require.ErrorIs(t, err, ErrInvalidPrincipal)
		require.ErrorIs(t, err, address.ErrInvalid)

		var ipe *InvalidPrincipalError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, "no spaces", ipe.Input)

		ok, err := r.Instantiated(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("second instantiate fails", func(t *testing.T) {
		r, _ := newTestRegistry(t, []string{"alice"}, true)
		_, err := r.Instantiate(ctx, "", []string{"mallory"}, true)
		assert.ErrorIs(t, err, ErrAlreadyInstantiated)
		assert.Equal(t, []string{"alice"}, mustList(t, r).Admins)
	})

	t.Run("empty admin set is allowed", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil, false)
		list := mustList(t, r)
		assert.Empty(t, list.Admins)
		assert.NotNil(t, list.Admins)
		assert.False(t, list.Mutable)
	})
}

func TestRegistry_ReadsBeforeInstantiate(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMockStore())

	_, err := r.ListAdmins(ctx)
	assert.ErrorIs(t, err, ErrNotInstantiated)

	_, err = r.ContractInfo(ctx)
	assert.ErrorIs(t, err, ErrNotInstantiated)

	ok, err := r.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Freeze(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegistry_IsAdmin(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, []string{"alice"}, true)

	tests := []struct {
		caller string
		want   bool
	}{
		{"alice", true},
		{"  ALICE ", true},
		{"bob", false},
		{"", false},
		{"not valid!", false},
	}
	for _, tt := range tests {
		t.Run(tt.caller, func(t *testing.T) {
			ok, err := r.IsAdmin(ctx, tt.caller)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRegistry_UpdateAdmins_CheckOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("non-admin on frozen registry sees unauthorized", func(t *testing.T) {
		r, _ := newTestRegistry(t, []string{"alice"}, false)
		_, err := r.UpdateAdmins(ctx, "mallory", []string{"mallory"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("admin on frozen registry with bad input sees frozen", func(t *testing.T) {
		r, _ := newTestRegistry(t, []string{"alice"}, false)
		_, err := r.UpdateAdmins(ctx, "alice", []string{"!!"})
		assert.ErrorIs(t, err, ErrFrozen)
	})

	t.Run("invalid entry leaves the set unchanged", func(t *testing.T) {
		r, _ := newTestRegistry(t, []string{"alice", "bob"}, true)
		_, err := r.UpdateAdmins(ctx, "alice", []string{"carl", "x"})
		require.ErrorIs(t, err, ErrInvalidPrincipal)
		assert.Equal(t, []string{"alice", "bob"}, mustList(t, r).Admins)
	})
}

func TestRegistry_UpdateAdmins_CanRemoveCaller(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, []string{"alice", "bob"}, true)

	_, err := r.UpdateAdmins(ctx, "alice", []string{"bob"})
	require.NoError(t, err)

	_, err = r.UpdateAdmins(ctx, "alice", []string{"alice"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.UpdateAdmins(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Empty(t, mustList(t, r).Admins)
}

func TestRegistry_UpdateAdmins_MinimalWrites(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t, []string{"alice", "bob", "carl"}, true)
	s.ResetCalls()

	_, err := r.UpdateAdmins(ctx, "alice", []string{"alice", "bob", "dave"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Calls("AddAdmin"))
	assert.Equal(t, 1, s.Calls("RemoveAdmin"))
	assert.Equal(t, 1, s.Calls("HasAdmin"), "only the caller check does a point lookup")
}

func TestRegistry_StorageFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t, []string{"alice", "bob"}, true)
	diskFull := errors.New("disk full")

	s.InjectError("AddAdmin", diskFull)
	_, err := r.UpdateAdmins(ctx, "alice", []string{"alice", "carl"})
	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, []string{"alice", "bob"}, mustList(t, r).Admins)

	s.InjectError("AddAdmin", nil)
	s.InjectError("AppendAuditLog", diskFull)
	_, err = r.Freeze(ctx, "alice")
	require.ErrorIs(t, err, diskFull)
	assert.True(t, mustList(t, r).Mutable)
}

func TestRegistry_FreezeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, []string{"alice"}, true)

	_, err := r.Freeze(ctx, "alice")
	require.NoError(t, err)
	_, err = r.Freeze(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, mustList(t, r).Mutable)
}

func TestRegistry_AuditTrail(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t, []string{"alice", "bob"}, true)

	_, err := r.UpdateAdmins(ctx, "ALICE", []string{"alice", "carl"})
	require.NoError(t, err)
	_, err = r.Freeze(ctx, "carl")
	require.NoError(t, err)

	entries, err := s.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, store.AuditFreeze, entries[0].Action)
	assert.Equal(t, "carl", entries[0].Actor)

	assert.Equal(t, store.AuditUpdateAdmins, entries[1].Action)
	assert.Equal(t, "alice", entries[1].Actor)
	assert.Equal(t, []string{"carl"}, entries[1].Detail["added"])
	assert.Equal(t, []string{"bob"}, entries[1].Detail["removed"])

	assert.Equal(t, store.AuditInstantiate, entries[2].Action)
	assert.Equal(t, "creator", entries[2].Actor)
}

func TestRegistry_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(store.NewMockStore(), WithMetrics(m))

	_, err := r.Instantiate(ctx, "", []string{"alice", "bob"}, true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Admins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutable))

	_, err = r.Freeze(ctx, "mallory")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.Freeze(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Mutable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntrypointTotal.WithLabelValues(ActionFreeze, metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntrypointTotal.WithLabelValues(ActionFreeze, metrics.OutcomeUnauthorized)))
}

func TestRegistry_ConcurrentUpdatesAndFreeze(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, []string{"root"}, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n == 10 {
				_, _ = r.Freeze(ctx, "root")
				return
			}
			_, err := r.UpdateAdmins(ctx, "root", []string{"root", fmt.Sprintf("user%02d", n)})
			if err != nil {
				assert.ErrorIs(t, err, ErrFrozen)
			}
		}(i)
	}
	wg.Wait()

	list := mustList(t, r)
	assert.False(t, list.Mutable)
	assert.Contains(t, list.Admins, "root")
	assert.LessOrEqual(t, len(list.Admins), 2)
}

func TestRegistry_Properties(t *testing.T) {
	ctx := context.Background()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	names := func() gopter.Gen {
		return gen.SliceOf(gen.IntRange(0, 25)).Map(func(ns []int) []string {
			out := make([]string, len(ns))
			for i, n := range ns {
				out[i] = fmt.Sprintf("User%02d", n)
			}
			return out
		})
	}

	properties.Property("update_admins leaves exactly the canonical target", prop.ForAll(
		func(initial, target []string) bool {
			r := NewRegistry(store.NewMockStore())
			if _, err := r.Instantiate(ctx, "", append([]string{"root"}, initial...), true); err != nil {
				return false
			}
			if _, err := r.UpdateAdmins(ctx, "root", target); err != nil {
				return false
			}

			want := make([]string, len(target))
			for i, s := range target {
				want[i] = address.Canonical(s)
			}
			slices.Sort(want)
			want = slices.Compact(want)

			list, err := r.ListAdmins(ctx)
			if err != nil {
				return false
			}
			return slices.Equal(list.Admins, want)
		},
		names(),
		names(),
	))

	properties.Property("is_admin agrees with list_admins", prop.ForAll(
		func(initial []string, pick int) bool {
			r := NewRegistry(store.NewMockStore())
			if _, err := r.Instantiate(ctx, "", initial, true); err != nil {
				return false
			}
			list, err := r.ListAdmins(ctx)
			if err != nil {
				return false
			}
			candidate := fmt.Sprintf("user%02d", pick)
			ok, err := r.IsAdmin(ctx, candidate)
			if err != nil {
				return false
			}
			return ok == slices.Contains(list.Admins, candidate)
		},
		names(),
		gen.IntRange(0, 25),
	))

	properties.Property("frozen registry never changes", prop.ForAll(
		func(initial, target []string) bool {
			r := NewRegistry(store.NewMockStore())
			if _, err := r.Instantiate(ctx, "", append([]string{"root"}, initial...), false); err != nil {
				return false
			}
			before, _ := r.ListAdmins(ctx)
			for _, caller := range append([]string{"root"}, target...) {
				if _, err := r.UpdateAdmins(ctx, caller, target); err == nil {
					return false
				}
			}
			after, _ := r.ListAdmins(ctx)
			return slices.Equal(before.Admins, after.Admins)
		},
		names(),
		names(),
	))

	properties.TestingRun(t)
}

func TestRegistry_WithValidator(t *testing.T) {
	ctx := context.Background()
	// Accept only wl1-prefixed addresses, kept case-sensitive.
	onlyWL1 := address.ValidatorFunc(func(raw string) (address.Principal, error) {
		if len(raw) < 4 || raw[:3] != "wl1" {
			return "", &address.InvalidError{Input: raw, Reason: "missing wl1 prefix"}
		}
		return address.Principal(raw), nil
	})

	r := NewRegistry(store.NewMockStore(), WithValidator(onlyWL1))
	_, err := r.Instantiate(ctx, "", []string{"alice"}, true)
	require.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = r.Instantiate(ctx, "", []string{"wl1Bob", "wl1alice"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"wl1Bob", "wl1alice"}, mustList(t, r).Admins)

	ok, err := r.IsAdmin(ctx, "wl1Bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.IsAdmin(ctx, "wl1bob")
	require.NoError(t, err)
	assert.False(t, ok, "custom validator does not lowercase")
}
