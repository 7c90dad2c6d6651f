package users

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrBusy rejects an action started while another one is in flight.
	ErrBusy = errors.New("users: another action is in progress")
	// ErrUnknownUser means the ID is not part of the last fetched snapshot.
	ErrUnknownUser = errors.New("users: user not in current list")
	// ErrInvalidDraft is wrapped by DraftError.
	ErrInvalidDraft = errors.New("users: invalid draft")
	// ErrNotConfirmed is returned by Delete when the caller did not confirm.
	ErrNotConfirmed = errors.New("users: deletion not confirmed")
)

// DraftError lists the draft fields that failed validation, keyed by form field name.
type DraftError struct {
	Fields map[string]string
}

func (e *DraftError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return ErrInvalidDraft.Error() + ": " + strings.Join(names, ", ")
}

func (e *DraftError) Unwrap() error { return ErrInvalidDraft }

// API is the remote users service.
type API interface {
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, draft Draft) (User, error)
	UpdateUser(ctx context.Context, id ID, draft Draft) (User, error)
	DeleteUser(ctx context.Context, id ID) error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validateDraft(draft Draft) error {
	err := validate.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Field() + " is required"
	}
	return &DraftError{Fields: fields}
}

// View is an immutable snapshot of a controller for rendering.
type View struct {
	Users        []User
	Draft        Draft
	EditTarget   ID
	Loading      bool
	Notification *Notification
	ScrollToTop  bool
}

// Editing reports whether the form is in edit mode.
func (v View) Editing() bool { return v.EditTarget != "" }

// Controller is the state of one user-management view instance. All mutations go through
// its operations; the mutex is never held across a call to the API.
type Controller struct {
	api     API
	notices *Notifier
	logger  *slog.Logger

	mu         sync.Mutex
	users      []User
	draft      Draft
	editTarget ID
	loading    bool
	mounted    bool
	scrollTop  bool
}

// NewController builds a Controller. A nil logger discards output.
func NewController(api API, notices *Notifier, logger *slog.Logger) *Controller {
	if notices == nil {
		notices = NewNotifier(nil, 0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{api: api, notices: notices, logger: logger}
}

// Mount loads users the first time the view is shown.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.loading {
		// A running action refreshes the list itself; a later render mounts again.
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.loading = true
	c.mu.Unlock()

	defer c.finish()
	c.fetch(ctx)
}

// LoadUsers replaces the cached users with the API's list.
func (c *Controller) LoadUsers(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()
	c.fetch(ctx)
	return nil
}

// Submit sends the draft to the API: an update when an edit target is set, a create
// otherwise. The draft is kept when the call fails so the user can retry.
func (c *Controller) Submit(ctx context.Context, draft Draft) error {
	c.mu.Lock()
	if c.loading {
		// The draft belongs to the action in flight.
		c.mu.Unlock()
		c.notices.Set(KindError, msgBusy)
		return ErrBusy
	}
	c.draft = draft
	if err := validateDraft(draft); err != nil {
		c.mu.Unlock()
		return err
	}
	c.loading = true
	target := c.editTarget
	c.mu.Unlock()
	defer c.finish()

	var (
		err     error
		success string
	)
	if target != "" {
		_, err = c.api.UpdateUser(ctx, target, draft)
		success = msgUserUpdated
	} else {
		_, err = c.api.CreateUser(ctx, draft)
		success = msgUserAdded
	}
	if err != nil {
		c.logger.WarnContext(ctx, "submit user failed", slog.String("edit_target", string(target)), slog.Any("error", err))
		c.notices.Set(KindError, msgMutationFailed)
		return nil
	}

	c.notices.Set(KindSuccess, success)
	c.mu.Lock()
	c.draft = Draft{}
	c.editTarget = ""
	c.mu.Unlock()
	c.fetch(ctx)
	return nil
}

// BeginEdit copies a cached user into the draft and switches to edit mode.
func (c *Controller) BeginEdit(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading {
		c.notices.Set(KindError, msgBusy)
		return ErrBusy
	}
	user, ok := c.lookup(id)
	if !ok || user.ID == "" {
		return ErrUnknownUser
	}
	c.draft = Draft{Name: user.Name, Email: user.Email}
	c.editTarget = user.ID
	c.scrollTop = true
	return nil
}

// CancelEdit clears the draft and returns to create mode.
func (c *Controller) CancelEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading {
		c.notices.Set(KindError, msgBusy)
		return ErrBusy
	}
	c.draft = Draft{}
	c.editTarget = ""
	return nil
}

// Delete removes a user once the caller has confirmed. Without confirmation nothing
// happens.
func (c *Controller) Delete(ctx context.Context, id ID, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	if err := c.api.DeleteUser(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "delete user failed", slog.String("user_id", string(id)), slog.Any("error", err))
		c.notices.Set(KindError, msgDeleteFailed)
		return nil
	}
	c.notices.Set(KindSuccess, msgUserDeleted)
	c.fetch(ctx)
	return nil
}

// View returns a snapshot for rendering and consumes the scroll-to-top request.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Users:        slices.Clone(c.users),
		Draft:        c.draft,
		EditTarget:   c.editTarget,
		Loading:      c.loading,
		Notification: c.notices.Current(),
		ScrollToTop:  c.scrollTop,
	}
	c.scrollTop = false
	return v
}

// Users returns a copy of the cached snapshot.
func (c *Controller) Users() []User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.users)
}

// User looks up a user in the cached snapshot.
func (c *Controller) User(id ID) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(id)
}

// Loading reports whether an action is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Close releases the notification timer.
func (c *Controller) Close() {
	c.notices.Close()
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		c.notices.Set(KindError, msgBusy)
		return ErrBusy
	}
	c.loading = true
	return nil
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

// fetch must run while the caller holds the in-flight flag.
func (c *Controller) fetch(ctx context.Context) {
	users, err := c.api.ListUsers(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "fetch users failed", slog.Any("error", err))
		c.notices.Set(KindError, msgFetchFailed)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = slices.Clone(users)
	if c.editTarget != "" {
		if _, ok := c.lookup(c.editTarget); !ok {
			c.editTarget = ""
		}
	}
}

func (c *Controller) lookup(id ID) (User, bool) {
	for _, u := range c.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
