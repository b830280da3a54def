// Package upload implements the avatar upload pipeline: local checks, image
// decoding and preview building run alongside transmission, with progress
// reported to observers.
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
)

// DefaultMaxBytes is the largest image accepted unless configured otherwise.
const DefaultMaxBytes = 2 << 20

var (
	ErrBusy        = errors.New("an upload is already in progress")
	ErrNoFile      = errors.New("No selected file")
	ErrInvalidType = errors.New("Invalid file type")
	ErrTooLarge    = errors.New("File too large")
	ErrUndecodable = errors.New("Image processing failed")
	ErrCanceled    = errors.New("Upload canceled.")
)

// AllowedExtensions lists accepted file extensions, lower case, without dot.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "webp"}

// State is the pipeline's position in its lifecycle.
type State int

const (
	Idle State = iota
	Reading
	Uploading
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Uploading:
		return "uploading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is the observable pipeline state.
type Status struct {
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Preview  string `json:"preview,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Busy reports whether an attempt is in flight.
func (s Status) Busy() bool { return s.State == Reading || s.State == Uploading }

// File is one image chosen for upload.
type File struct {
	Name string
	Data []byte
}

// Result describes a successful upload.
type Result struct {
	// Path is what the store returned, URL the absolute renderable form.
	Path    string
	URL     string
	Preview string
	Format  string
	Width   int
	Height  int
}

// Uploader transmits the image and returns its store-relative path.
type Uploader interface {
	UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error)
}

// Pipeline runs at most one upload at a time. It never touches the profile
// form; callers apply Result.URL themselves.
type Pipeline struct {
	up        Uploader
	assetBase string
	maxBytes  int64
	log       *logger.Logger

	mu        sync.Mutex
	status    Status
	gen       uint64
	observers []func(Status)

	notifyMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates an idle pipeline. assetBase prefixes store-relative paths.
func New(up Uploader, assetBase string, opts ...Option) *Pipeline {
	p := &Pipeline{up: up, assetBase: assetBase, maxBytes: DefaultMaxBytes, log: logger.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// OnChange registers fn to receive every status change, in order.
func (p *Pipeline) OnChange(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Status returns the current status.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Attempt is a claimed upload slot.
type Attempt struct {
	p   *Pipeline
	gen uint64
}

// Begin claims the pipeline for a new attempt, moving it to Reading.
// It fails with ErrBusy while another attempt is in flight.
func (p *Pipeline) Begin() (*Attempt, error) {
	p.mu.Lock()
	if p.status.Busy() {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.gen++
	gen := p.gen
	p.status = Status{State: Reading}
	p.publishLocked()
	return &Attempt{p: p, gen: gen}, nil
}

// Upload is Begin followed by Run.
func (p *Pipeline) Upload(ctx context.Context, f File) (Result, error) {
	a, err := p.Begin()
	if err != nil {
		return Result{}, err
	}
	return a.Run(ctx, f, nil)
}

// Reset abandons any in-flight attempt and returns to Idle. Late results of
// the abandoned attempt are ignored.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.gen++
	p.status = Status{State: Idle}
	p.publishLocked()
}

// Run checks, decodes and transmits f. Decoding and preview building happen
// concurrently with transmission; a decode failure cancels the transfer.
//
// When apply is non-nil it is called with the result while the attempt is
// still current and before Succeeded is published, so observers of Succeeded
// already see its effect. It runs with the pipeline lock held and must not
// call back into the pipeline. Returning false abandons the attempt with
// ErrCanceled.
func (a *Attempt) Run(ctx context.Context, f File, apply func(Result) bool) (Result, error) {
	p := a.p
	if err := p.check(f); err != nil {
		return Result{}, a.fail(err)
	}

	var (
		res  Result
		path string
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		res.Format, res.Width, res.Height = format, cfg.Width, cfg.Height
		res.Preview = "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
		preview := res.Preview
		p.update(a.gen, func(s *Status) { s.Preview = preview })
		return nil
	})

	g.Go(func() error {
		p.update(a.gen, func(s *Status) {
			if s.State == Reading {
				s.State = Uploading
			}
		})
		var err error
		path, err = p.up.UploadAvatar(gctx, f.Name, bytes.NewReader(f.Data), int64(len(f.Data)), func(sent, total int64) {
			if total <= 0 {
				return
			}
			pct := int(sent * 100 / total)
			p.update(a.gen, func(s *Status) {
				if pct > s.Progress && pct <= 100 {
					s.Progress = pct
				}
			})
		})
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
		return Result{}, a.fail(err)
	}

	res.Path = path
	res.URL = profile.AbsoluteAssetURL(p.assetBase, path)
	rejected := false
	current := p.update(a.gen, func(s *Status) {
		if apply != nil && !apply(res) {
			rejected = true
			return
		}
		s.State, s.Progress, s.Error = Succeeded, 100, ""
	})
	if !current {
		return Result{}, ErrCanceled
	}
	if rejected {
		return Result{}, a.fail(ErrCanceled)
	}
	p.log.Info("avatar uploaded", "name", f.Name, "format", res.Format, "bytes", len(f.Data))
	return res, nil
}

func (a *Attempt) fail(err error) error {
	msg := Message(err)
	a.p.update(a.gen, func(s *Status) { s.State, s.Error = Failed, msg })
	a.p.log.Warn("avatar upload failed", "error", err)
	return err
}

func (p *Pipeline) check(f File) error {
	if f.Name == "" {
		return ErrNoFile
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidType
	}
	if len(f.Data) == 0 {
		return ErrNoFile
	}
	if int64(len(f.Data)) > p.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// update applies fn to the status of generation gen and notifies observers.
// fn runs with p.mu held. It reports false when gen is no longer current.
func (p *Pipeline) update(gen uint64, fn func(*Status)) bool {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false
	}
	before := p.status
	fn(&p.status)
	if p.status == before {
		p.mu.Unlock()
		return true
	}
	p.publishLocked()
	return true
}

// publishLocked must be called with p.mu held; it releases p.mu and delivers
// the current status to observers. notifyMu keeps deliveries in order.
func (p *Pipeline) publishLocked() {
	st := p.status
	obs := p.observers
	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()
	for _, o := range obs {
		o(st)
	}
}

// Message returns the user-facing text for an upload error.
func Message(err error) string {
	var apiErr *remote.APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, ErrCanceled):
		return ErrCanceled.Error()
	case errors.Is(err, ErrUndecodable):
		return ErrUndecodable.Error()
	case errors.Is(err, remote.ErrUnauthorized):
		return remote.ErrUnauthorized.Error()
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrInvalidType), errors.Is(err, ErrTooLarge):
		return err.Error()
	default:
		return "Upload failed."
	}
}
