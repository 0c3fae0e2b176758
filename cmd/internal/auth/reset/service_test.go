package reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"wicket/cmd/security/token"
)

type fakeStore struct {
	created []CreateRecord
	grants  map[string]*Grant // keyed by token hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{grants: map[string]*Grant{}}
}

func (f *fakeStore) Create(_ context.Context, in CreateRecord) (Grant, error) {
	f.created = append(f.created, in)
	g := Grant{
		ID:        in.ID,
		AccountID: in.AccountID,
		TokenHash: in.TokenHash,
		UserAgent: in.UserAgent,
		IP:        in.IP,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	f.grants[in.TokenHash] = &g
	return g, nil
}

func (f *fakeStore) Consume(_ context.Context, tokenHash string, now time.Time) (Grant, error) {
	g, ok := f.grants[tokenHash]
	if !ok {
		return Grant{}, ErrNotFound
	}
	if g.UsedAt != nil {
		return Grant{}, ErrAlreadyUsed
	}
	if !g.ExpiresAt.After(now) {
		return Grant{}, ErrExpired
	}
	used := now
	g.UsedAt = &used
	return *g, nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for h, g := range f.grants {
		if !g.ExpiresAt.After(now) {
			delete(f.grants, h)
			n++
		}
	}
	return n, nil
}

func TestIssueStoresDigestNotToken(t *testing.T) {
	st := newFakeStore()
	svc, err := NewService(st)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	now := time.Now().UTC()
	meta := Meta{UserAgent: "wicket-test/1.0", IP: "192.0.2.7"}
	grant, plain, err := svc.Issue(context.Background(), "acc_01", meta, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if plain == "" {
		t.Fatal("empty plain token")
	}
	if grant.UserAgent != meta.UserAgent || grant.IP != meta.IP {
		t.Fatalf("grant meta = %q/%q", grant.UserAgent, grant.IP)
	}
	if grant.TokenHash == plain {
		t.Fatal("plain token persisted")
	}
	if grant.TokenHash != token.HashTokenHex(plain) {
		t.Fatal("stored digest does not match token")
	}
	if got := grant.ExpiresAt.Sub(now); got != defaultTTL {
		t.Fatalf("ttl = %v, want %v", got, defaultTTL)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	st := newFakeStore()
	svc, err := NewService(st)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	now := time.Now().UTC()
	issued, plain, err := svc.Issue(context.Background(), "acc_01", Meta{}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := svc.Consume(context.Background(), plain, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.ID != issued.ID || got.AccountID != "acc_01" {
		t.Fatalf("wrong grant: %+v", got)
	}
	if got.UsedAt == nil {
		t.Fatal("used_at not set")
	}

	if _, err := svc.Consume(context.Background(), plain, now.Add(2*time.Minute)); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("second consume: want ErrAlreadyUsed, got %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	st := newFakeStore()
	svc, err := NewService(st, WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	now := time.Now().UTC()
	_, plain, err := svc.Issue(context.Background(), "acc_01", Meta{}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Consume(context.Background(), plain, now.Add(2*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	svc, err := NewService(newFakeStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Consume(context.Background(), "never-issued", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := svc.Consume(context.Background(), "   ", time.Now().UTC()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
