package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory repository.IdentityStore. WithinTx snapshots the
// maps and restores them when fn fails, so rollback behaves like a database.
//
// The *Errs slices inject failures: each call pops the head, and a nil head
// means "behave normally".
type fakeStore struct {
	mu sync.Mutex

	users    map[string]*model.User
	accounts map[string]*model.Account // keyed by provider:externalID
	nextID   int

	createUserErrs    []error
	createAccountErrs []error
	findAccountErr    error

	createUserCalls    int
	createAccountCalls int
	updateCalls        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		accounts: make(map[string]*model.Account),
	}
}

var _ repository.IdentityStore = (*fakeStore)(nil)

func accountKey(provider model.Provider, externalID string) string {
	return string(provider) + ":" + externalID
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user *model.User) error {
	f.createUserCalls++
	if err := popErr(&f.createUserErrs); err != nil {
		return err
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateUserProfile(ctx context.Context, user *model.User) error {
	f.updateCalls++
	u, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	u.Name = user.Name
	u.AvatarURL = user.AvatarURL
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) FindAccount(ctx context.Context, provider model.Provider, externalID string) (*model.Account, error) {
	if f.findAccountErr != nil {
		return nil, f.findAccountErr
	}
	a, ok := f.accounts[accountKey(provider, externalID)]
	if !ok {
		return nil, apperror.NotFound("account", accountKey(provider, externalID))
	}
	copied := *a
	return &copied, nil
}

func (f *fakeStore) FindAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.Account, error) {
	for _, a := range f.accounts {
		if a.Provider == provider && a.UserID == userID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("account", userID)
}

func (f *fakeStore) CreateAccount(ctx context.Context, account *model.Account) error {
	f.createAccountCalls++
	if err := popErr(&f.createAccountErrs); err != nil {
		return err
	}
	key := accountKey(account.Provider, account.ProviderAccountID)
	if _, exists := f.accounts[key]; exists {
		return apperror.Conflict("account", key)
	}
	if _, err := f.FindAccountByUser(ctx, account.Provider, account.UserID); err == nil {
		return apperror.Conflict("account", account.UserID)
	}
	f.nextID++
	account.ID = fmt.Sprintf("acct-%d", f.nextID)
	account.CreatedAt = time.Now()
	copied := *account
	f.accounts[key] = &copied
	return nil
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(tx repository.IdentityStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make(map[string]*model.User, len(f.users))
	for k, v := range f.users {
		copied := *v
		users[k] = &copied
	}
	accounts := make(map[string]*model.Account, len(f.accounts))
	for k, v := range f.accounts {
		copied := *v
		accounts[k] = &copied
	}

	if err := fn(f); err != nil {
		f.users = users
		f.accounts = accounts
		return err
	}
	return nil
}

// seedUser inserts a user directly, bypassing error injection.
func (f *fakeStore) seedUser(email string, name *string) *model.User {
	f.nextID++
	u := &model.User{ID: fmt.Sprintf("user-%d", f.nextID), Email: email, Name: name}
	f.users[u.ID] = u
	copied := *u
	return &copied
}

func (f *fakeStore) seedAccount(userID, externalID string) {
	f.nextID++
	key := accountKey(model.ProviderGitHub, externalID)
	f.accounts[key] = &model.Account{
		ID:                fmt.Sprintf("acct-%d", f.nextID),
		Provider:          model.ProviderGitHub,
		ProviderAccountID: externalID,
		UserID:            userID,
	}
}

// =========================================================================
// FAKE PROVIDER
// =========================================================================

// fakeProvider stands in for auth.GitHubProvider.
type fakeProvider struct {
	mu           sync.Mutex
	exchange     func(code string) (string, error)
	fetch        func(token string) (*model.Profile, error)
	exchangeHits int
	fetchHits    int
}

func (p *fakeProvider) Provider() model.Provider { return model.ProviderGitHub }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	p.exchangeHits++
	p.mu.Unlock()
	return p.exchange(code)
}

func (p *fakeProvider) FetchProfile(ctx context.Context, token string) (*model.Profile, error) {
	p.mu.Lock()
	p.fetchHits++
	p.mu.Unlock()
	return p.fetch(token)
}

// =========================================================================
// HELPERS
// =========================================================================

func strPtr(s string) *string { return &s }

// janeProfile is the profile of Scenario A: GitHub user 555.
func janeProfile() *model.Profile {
	return &model.Profile{
		ExternalID: "555",
		Name:       strPtr("Jane"),
		Email:      strPtr("jane@x.com"),
		AvatarURL:  "https://avatars.example.com/a.png",
	}
}

func testLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
