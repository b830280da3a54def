// Package editor implements the profile sync controller: it owns the edit
// form, loads it from a data source, validates edits as they happen, drives
// avatar uploads and submits the result.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
	"github.com/kalambet/profedit/internal/session"
	"github.com/kalambet/profedit/internal/source"
	"github.com/kalambet/profedit/internal/upload"
)

var (
	ErrInvalidForm  = errors.New("form has validation errors")
	ErrNotReady     = errors.New("profile is not loaded")
	ErrSaveInFlight = errors.New("a save is already in progress")
	ErrClosed       = errors.New("editor closed")
	// ErrSuperseded is returned when a newer load, save or upload replaced
	// the operation before its result arrived.
	ErrSuperseded = errors.New("operation superseded")
)

// Session is the credential holder the controller consults.
type Session interface {
	Credential() (string, error)
	SetIdentity(profile.Identity)
}

// Controller is safe for concurrent use. All state changes are serialized
// behind one mutex and published to subscribers as View snapshots.
type Controller struct {
	src       source.DataSource
	sess      Session
	pipe      *upload.Pipeline
	assetBase string
	log       *logger.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	phase     Phase
	form      profile.Form
	errs      profile.Errors
	touched   profile.Touched
	saveState SaveState
	loadErr   string
	saveErr   string
	nav       Navigate
	stale     bool
	savedAt   time.Time
	upload    upload.Status
	loadGen   uint64
	saveGen   uint64
	uploadGen uint64
	// saveCancel aborts the in-flight save; a reload supersedes it.
	saveCancel context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
}

type options struct {
	assetBase string
	maxBytes  int64
	log       *logger.Logger
}

// Option configures a Controller.
type Option func(*options)

// WithAssetBase sets the address store-relative avatar paths resolve against.
func WithAssetBase(base string) Option {
	return func(o *options) { o.assetBase = base }
}

// WithMaxUploadBytes caps avatar size.
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithLogger sets the controller logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns a controller in the Loading phase. Nothing is fetched until
// Activate or Load is called.
func New(src source.DataSource, sess Session, opts ...Option) *Controller {
	o := options{maxBytes: upload.DefaultMaxBytes, log: logger.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		src:       src,
		sess:      sess,
		assetBase: o.assetBase,
		log:       o.log,
		root:      root,
		cancel:    cancel,
		phase:     Loading,
		form:      profile.NewForm(),
		errs:      profile.Errors{},
		touched:   profile.Touched{},
		subs:      make(map[int]chan View),
	}
	c.pipe = upload.New(src, o.assetBase, upload.WithMaxBytes(o.maxBytes), upload.WithLogger(o.log))
	c.pipe.OnChange(c.onUpload)
	return c
}

// --- Lifecycle ---

// Activate starts loading in the background. Cancellation is governed by
// Close, not by ctx.
func (c *Controller) Activate(ctx context.Context) error {
	return c.spawn(ctx, func(ctx context.Context) {
		if err := c.Load(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			c.log.Debug("background load finished with error", "error", err)
		}
	})
}

// Reload re-runs the fetch. It is the explicit retry after a load failure.
func (c *Controller) Reload(ctx context.Context) error {
	return c.Load(ctx)
}

// Load fetches the profile and replaces the form. Without a credential no
// fetch is made and the controller becomes Unauthenticated.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.loadGen++
	gen := c.loadGen
	c.uploadGen++
	c.saveGen++
	if c.saveCancel != nil {
		c.saveCancel()
		c.saveCancel = nil
	}
	c.phase = Loading
	c.loadErr, c.saveErr = "", ""
	c.saveState = SaveIdle
	c.nav = NavigateNone
	c.mu.Unlock()
	c.pipe.Reset()
	c.broadcast()

	if _, err := c.sess.Credential(); err != nil {
		c.finishLoad(gen, source.Profile{}, err)
		return err
	}

	ctx, cancel := c.scoped(ctx)
	defer cancel()
	p, err := c.src.Fetch(ctx)
	if ok := c.finishLoad(gen, p, err); !ok {
		return ErrSuperseded
	}
	return err
}

func (c *Controller) finishLoad(gen uint64, p source.Profile, err error) bool {
	c.mu.Lock()
	if c.closed || gen != c.loadGen {
		c.mu.Unlock()
		return false
	}
	switch {
	case isAuthError(err):
		c.phase = Unauthenticated
		c.nav = NavigateLogin
		c.log.Info("profile load requires sign-in", "error", err)
	case err != nil:
		c.phase = LoadFailed
		c.loadErr = loadMessage(err)
		c.log.Warn("profile load failed", "error", err)
	default:
		c.form = profile.ToLocal(p.Wire, p.Identity, c.assetBase)
		c.errs = profile.Validate(c.form)
		c.touched = profile.Touched{}
		c.stale = p.Stale
		c.savedAt = p.SavedAt
		c.phase = Ready
		c.sess.SetIdentity(p.Identity)
		c.log.Debug("profile loaded", "username", p.Identity.Username, "stale", p.Stale)
	}
	c.mu.Unlock()
	c.broadcast()
	return true
}

// Close cancels every in-flight fetch, upload and save, waits for background
// work to stop and closes subscriber channels. Late results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.loadGen++
	c.saveGen++
	c.uploadGen++
	c.mu.Unlock()

	c.cancel()
	c.pipe.Reset()
	c.wg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
}

// --- Edits ---

// SetField assigns a scalar form field, marks it touched and revalidates.
func (c *Controller) SetField(name, value string) error {
	return c.edit(func(f profile.Form) (profile.Form, error) {
		return f.SetField(name, value)
	}, name)
}

// SetFields applies several scalar assignments as one edit.
func (c *Controller) SetFields(values map[string]string) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	return c.edit(func(f profile.Form) (profile.Form, error) {
		var err error
		for k, v := range values {
			if f, err = f.SetField(k, v); err != nil {
				return f, err
			}
		}
		return f, nil
	}, names...)
}

// AddEntry appends a blank entry to group and returns its identifier.
func (c *Controller) AddEntry(group profile.Group) (string, error) {
	var id string
	err := c.edit(func(f profile.Form) (profile.Form, error) {
		var err error
		f, id, err = f.AddEntry(group)
		return f, err
	})
	return id, err
}

// RemoveEntry deletes the entry id from group. The last entry of a group
// cannot be removed.
func (c *Controller) RemoveEntry(group profile.Group, id string) error {
	return c.edit(func(f profile.Form) (profile.Form, error) {
		return f.RemoveEntry(group, id)
	})
}

// UpdateEntry sets one field of one entry.
func (c *Controller) UpdateEntry(group profile.Group, id, key, value string) error {
	return c.edit(func(f profile.Form) (profile.Form, error) {
		return f.UpdateEntry(group, id, key, value)
	})
}

// ReplaceForm swaps in a whole edited form, keeping the avatar, which only
// the upload pipeline may change. Every validated field is marked touched.
func (c *Controller) ReplaceForm(f profile.Form) error {
	return c.edit(func(cur profile.Form) (profile.Form, error) {
		next := f.Normalize()
		next.Avatar = cur.Avatar
		return next, nil
	}, profile.ValidatedFields...)
}

func (c *Controller) edit(fn func(profile.Form) (profile.Form, error), touch ...string) error {
	c.mu.Lock()
	if c.phase != Ready {
		c.mu.Unlock()
		return ErrNotReady
	}
	next, err := fn(c.form)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.form = next
	if len(touch) > 0 {
		t := c.touched.Clone()
		for _, name := range touch {
			t[name] = true
		}
		c.touched = t
	}
	c.errs = profile.Validate(c.form)
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// --- Save ---

// Save validates and, if the form is valid, sends it and waits for the result.
func (c *Controller) Save(ctx context.Context) error {
	gen, payload, err := c.beginSave()
	if err != nil {
		return err
	}
	return c.finishSave(ctx, gen, payload)
}

// Submit is Save with the network round trip in the background. Validation
// and state errors are still returned synchronously.
func (c *Controller) Submit(ctx context.Context) error {
	gen, payload, err := c.beginSave()
	if err != nil {
		return err
	}
	err = c.spawn(ctx, func(ctx context.Context) {
		_ = c.finishSave(ctx, gen, payload)
	})
	if err != nil {
		c.mu.Lock()
		if gen == c.saveGen && c.saveState == Saving {
			c.saveState = SaveIdle
		}
		c.mu.Unlock()
	}
	return err
}

func (c *Controller) beginSave() (uint64, profile.WireUpdate, error) {
	c.mu.Lock()
	if c.phase != Ready {
		c.mu.Unlock()
		return 0, profile.WireUpdate{}, ErrNotReady
	}
	if c.saveState == Saving {
		c.mu.Unlock()
		return 0, profile.WireUpdate{}, ErrSaveInFlight
	}

	c.errs = profile.Validate(c.form)
	if len(c.errs) > 0 {
		c.touched = c.touched.TouchAll()
		fields := make([]string, 0, len(c.errs))
		for _, name := range profile.ValidatedFields {
			if _, ok := c.errs[name]; ok {
				fields = append(fields, name)
			}
		}
		c.mu.Unlock()
		c.broadcast()
		return 0, profile.WireUpdate{}, fmt.Errorf("%w: %v", ErrInvalidForm, fields)
	}

	c.saveGen++
	gen := c.saveGen
	c.saveState = Saving
	c.saveErr = ""
	c.nav = NavigateNone
	payload := profile.ToWire(c.form)
	c.mu.Unlock()
	c.broadcast()
	return gen, payload, nil
}

func (c *Controller) finishSave(ctx context.Context, gen uint64, payload profile.WireUpdate) error {
	ctx, cancel := c.scoped(ctx)
	defer cancel()
	c.mu.Lock()
	if c.closed || gen != c.saveGen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.saveCancel = cancel
	c.mu.Unlock()

	_, err := c.src.Save(ctx, payload)

	c.mu.Lock()
	if c.closed || gen != c.saveGen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.saveCancel = nil
	if err != nil {
		c.saveState = SaveFailed
		c.saveErr = saveMessage(err)
		if isAuthError(err) {
			c.nav = NavigateLogin
		}
		c.mu.Unlock()
		c.log.Warn("profile save failed", "error", err)
		c.broadcast()
		return err
	}
	c.saveState = SaveSucceeded
	c.nav = NavigateView
	c.stale = false
	c.savedAt = time.Now()
	c.mu.Unlock()
	c.log.Info("profile saved")
	c.broadcast()
	return nil
}

// --- Avatar ---

// Upload runs the upload pipeline for f and, on success, replaces the avatar.
func (c *Controller) Upload(ctx context.Context, f upload.File) (upload.Result, error) {
	a, gen, err := c.beginUpload()
	if err != nil {
		return upload.Result{}, err
	}
	return c.finishUpload(ctx, a, gen, f)
}

// HandleFile starts an upload in the background. ErrBusy and ErrNotReady are
// returned synchronously.
func (c *Controller) HandleFile(ctx context.Context, f upload.File) error {
	a, gen, err := c.beginUpload()
	if err != nil {
		return err
	}
	err = c.spawn(ctx, func(ctx context.Context) {
		_, _ = c.finishUpload(ctx, a, gen, f)
	})
	if err != nil {
		c.pipe.Reset()
	}
	return err
}

func (c *Controller) beginUpload() (*upload.Attempt, uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if c.phase != Ready {
		c.mu.Unlock()
		return nil, 0, ErrNotReady
	}
	gen := c.uploadGen
	c.mu.Unlock()

	a, err := c.pipe.Begin()
	if err != nil {
		return nil, 0, err
	}
	return a, gen, nil
}

func (c *Controller) finishUpload(ctx context.Context, a *upload.Attempt, gen uint64, f upload.File) (upload.Result, error) {
	ctx, cancel := c.scoped(ctx)
	defer cancel()
	superseded := false
	res, err := a.Run(ctx, f, func(r upload.Result) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.uploadGen || c.phase != Ready {
			superseded = true
			return false
		}
		c.form.Avatar = r.URL
		return true
	})
	if superseded {
		return upload.Result{}, ErrSuperseded
	}
	return res, err
}

func (c *Controller) onUpload(st upload.Status) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.upload = st
	c.mu.Unlock()
	c.broadcast()
}

// --- Views ---

// View returns the current presentation snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	return View{
		Phase:   c.phase,
		Form:    c.form.Clone(),
		Errors:  c.errs.Visible(c.touched),
		Touched: c.touched.Clone(),
		CanRemove: map[string]bool{
			string(profile.GroupEducation):   profile.CanRemove(c.form.Education),
			string(profile.GroupLanguages):   profile.CanRemove(c.form.Languages),
			string(profile.GroupSocialLinks): profile.CanRemove(c.form.SocialLinks),
		},
		Upload:    c.upload,
		Save:      c.saveState,
		LoadError: c.loadErr,
		SaveError: c.saveErr,
		Navigate:  c.nav,
		Stale:     c.stale,
		SavedAt:   c.savedAt,
	}
}

// Profile returns the read-only rendering of the current form.
func (c *Controller) Profile() (ProfileView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Ready {
		return ProfileView{}, ErrNotReady
	}
	return NewProfileView(c.form), nil
}

// Subscribe returns a channel receiving the latest View after every change,
// starting with the current one. Slow readers only ever see the newest
// snapshot. The channel is closed by cancel or Close.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	c.subMu.Lock()
	c.mu.Lock()
	closed := c.closed
	v := c.viewLocked()
	c.mu.Unlock()
	if closed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- v
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) broadcast() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.subs) == 0 {
		return
	}
	v := c.View()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// --- helpers ---

// spawn runs fn on a tracked goroutine. fn's context keeps ctx's values but
// is canceled only by Close.
func (c *Controller) spawn(ctx context.Context, fn func(context.Context)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.wg.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer c.wg.Done()
		fn(detached)
	}()
	return nil
}

// scoped derives a context canceled by either ctx or Close.
func (c *Controller) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, remote.ErrUnauthorized) ||
		errors.Is(err, session.ErrNoCredential) ||
		errors.Is(err, session.ErrExpired)
}

func loadMessage(err error) string {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return "Failed to load profile: " + apiErr.Message
	}
	return "Failed to load profile."
}

func saveMessage(err error) string {
	var apiErr *remote.APIError
	switch {
	case isAuthError(err):
		return remote.ErrUnauthorized.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	default:
		return "Failed to save profile."
	}
}
