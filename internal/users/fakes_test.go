package users

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var errAPIDown = errors.New("api down")

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only moves when told to. Advance fires due timers; Set does not.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type updateCall struct {
	ID    ID
	Draft Draft
}

// fakeAPI is an in-memory users API that records every call.
type fakeAPI struct {
	mu        sync.Mutex
	users     []User
	nextID    int
	listErr   error
	createErr error
	updateErr error
	deleteErr error

	calls   []string
	created []Draft
	updated []updateCall
	deleted []ID

	// When gate is set, CreateUser signals entered and waits for gate to close.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeAPI(users ...User) *fakeAPI {
	return &fakeAPI{users: users, nextID: 100}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListUsers(ctx context.Context) ([]User, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]User{}, f.users...), nil
}

func (f *fakeAPI) CreateUser(ctx context.Context, draft Draft) (User, error) {
	f.record("create")
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, draft)
	if f.createErr != nil {
		return User{}, f.createErr
	}
	f.nextID++
	u := User{ID: ID(strconv.Itoa(f.nextID)), Name: draft.Name, Email: draft.Email}
	f.users = append(f.users, u)
	return u, nil
}

func (f *fakeAPI) UpdateUser(ctx context.Context, id ID, draft Draft) (User, error) {
	f.record("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, updateCall{ID: id, Draft: draft})
	if f.updateErr != nil {
		return User{}, f.updateErr
	}
	for i := range f.users {
		if f.users[i].ID == id {
			f.users[i].Name = draft.Name
			f.users[i].Email = draft.Email
			return f.users[i], nil
		}
	}
	return User{}, errors.New("not found")
}

func (f *fakeAPI) DeleteUser(ctx context.Context, id ID) error {
	f.record("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.users {
		if f.users[i].ID == id {
			f.users = append(f.users[:i], f.users[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeAPI) setUsers(users ...User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = users
}

var (
	ann = User{ID: "7", Name: "Ann", Email: "a@x.com"}
	bob = User{ID: "8", Name: "Bob", Email: "b@x.com"}
)
