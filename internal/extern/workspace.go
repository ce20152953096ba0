package extern

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/sirupsen/logrus"

	"github.com/vesaa/sharedshape/internal/logging"
	"github.com/vesaa/sharedshape/internal/models"
)

// Component states reported by Status.
const (
	StateUninitialized = "uninitialized"
	StateNotCheckedOut = "not-checked-out"
	StateInSync        = "in-sync"
	StateModified      = "modified"
)

// Update actions reported per pointer.
const (
	ActionCloned     = "cloned"
	ActionCheckedOut = "checked-out"
	ActionUpToDate   = "up-to-date"
	ActionSkipped    = "skipped"
	ActionFailed     = "failed"
)

// Options configures Open.
type Options struct {
	// StateDir holds the state database; relative paths are resolved
	// against the workspace root. Defaults to ".sharedshape".
	StateDir    string
	Credentials Credentials
	// GitProgress receives clone/fetch sideband output; nil discards it.
	GitProgress io.Writer
	Logger      *logrus.Logger
}

// Workspace is an outer project with its external component pointers.
type Workspace struct {
	root     string
	store    *Store
	creds    Credentials
	progress io.Writer
	log      *logrus.Logger
}

// ComponentStatus describes one pointer against its local checkout.
type ComponentStatus struct {
	Path    string `json:"path"`
	URL     string `json:"url"`
	Pinned  string `json:"pinned"`
	Current string `json:"current,omitempty"`
	State   string `json:"state"`
}

// UpdateOptions selects what Update does.
type UpdateOptions struct {
	// Paths restricts the update; empty means every pointer.
	Paths []string
	// Init runs Init on the selected pointers first.
	Init bool
	// Remote moves each pin to the tip of its tracked branch.
	Remote bool
	// Done is called after each pointer is handled.
	Done func(UpdateResult)
}

// UpdateResult reports what Update did to one pointer.
type UpdateResult struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Err    error  `json:"-"`
}

// Open opens the workspace rooted at root.
func Open(root string, opts Options) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if opts.StateDir == "" {
		opts.StateDir = ".sharedshape"
	}
	if !filepath.IsAbs(opts.StateDir) {
		opts.StateDir = filepath.Join(abs, opts.StateDir)
	}
	if opts.GitProgress == nil {
		opts.GitProgress = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	store, err := OpenStore(filepath.Join(opts.StateDir, StateFile))
	if err != nil {
		return nil, err
	}
	return &Workspace{
		root:     abs,
		store:    store,
		creds:    opts.Credentials,
		progress: opts.GitProgress,
		log:      opts.Logger,
	}, nil
}

// Close releases the state store.
func (w *Workspace) Close() error {
	return w.store.Close()
}

// Root is the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Dir is the absolute directory of a pointer path.
func (w *Workspace) Dir(p string) string {
	return filepath.Join(w.root, filepath.FromSlash(p))
}

// Manifest loads the current externals.yaml.
func (w *Workspace) Manifest() (*Manifest, error) {
	return LoadManifest(w.root)
}

// Add clones url into p, pins ref (default: the remote's HEAD) and records
// the pointer. The new component is initialized and checked out.
func (w *Workspace) Add(ctx context.Context, p, url, ref string) (Pointer, error) {
	p = CleanPath(p)
	if err := ValidatePath(p); err != nil {
		return Pointer{}, err
	}
	if err := ValidateURL(url); err != nil {
		return Pointer{}, err
	}

	m, err := w.Manifest()
	if err != nil {
		return Pointer{}, err
	}
	if _, err := m.Get(p); err == nil {
		return Pointer{}, fmt.Errorf("%w: %s", ErrExists, p)
	}
	next := &Manifest{Externals: maps.Clone(m.Externals)}
	next.Set(Pointer{Path: p, URL: url, Revision: plumbing.ZeroHash.String()})
	if err := next.Validate(); err != nil {
		return Pointer{}, err
	}

	dir := w.Dir(p)
	if empty, err := isEmptyDir(dir); err != nil {
		return Pointer{}, err
	} else if !empty {
		return Pointer{}, fmt.Errorf("%w: %s is not empty", ErrExists, p)
	}

	source := w.sourceURL(url)
	auth, err := w.creds.AuthFor(source)
	if err != nil {
		return Pointer{}, err
	}

	co, err := clone(ctx, dir, source, auth, w.progress)
	if err != nil {
		_ = os.RemoveAll(dir)
		return Pointer{}, err
	}

	ptr, err := w.pinNew(co, p, url, ref)
	if err != nil {
		_ = os.RemoveAll(dir)
		return Pointer{}, err
	}

	m.Set(ptr)
	if err := m.Save(w.root); err != nil {
		return Pointer{}, err
	}

	if err := w.store.Put(&models.Component{
		Path:        p,
		URL:         url,
		Branch:      ptr.Branch,
		Initialized: true,
		CheckedOut:  true,
		Revision:    ptr.Revision,
		LastUpdated: time.Now(),
	}); err != nil {
		return Pointer{}, fmt.Errorf("recording state: %w", err)
	}

	w.log.WithFields(logrus.Fields{"component": p, "revision": ptr.Revision}).Info("added external component")
	return ptr, nil
}

func (w *Workspace) pinNew(co *checkout, p, url, ref string) (Pointer, error) {
	h, branch, err := co.resolve(ref)
	if err != nil {
		return Pointer{}, err
	}
	if err := co.checkoutDetached(h, true); err != nil {
		return Pointer{}, fmt.Errorf("checking out %s: %w", h, err)
	}
	return Pointer{Path: p, URL: url, Revision: h.String(), Branch: branch}, nil
}

// Init registers pointers in the local state and creates their empty
// placeholder directories. It never fetches anything.
func (w *Workspace) Init(paths ...string) ([]Pointer, error) {
	m, err := w.Manifest()
	if err != nil {
		return nil, err
	}
	ptrs, err := m.Select(paths...)
	if err != nil {
		return nil, err
	}

	for _, ptr := range ptrs {
		c, err := w.store.Lookup(ptr.Path)
		if err != nil {
			return nil, err
		}
		if !c.Initialized {
			// An earlier local URL override survives re-init, as with git.
			if c.URL == "" {
				c.URL = ptr.URL
			}
			c.Branch = ptr.Branch
			c.Initialized = true
			if err := w.store.Put(c); err != nil {
				return nil, fmt.Errorf("recording state: %w", err)
			}
			w.log.WithField("component", ptr.Path).Info("initialized external component")
		}
		if err := os.MkdirAll(w.Dir(ptr.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", ptr.Path, err)
		}
	}
	return ptrs, nil
}

// Update materializes every selected, initialized pointer at its pinned
// revision. Pointers that fail do not stop the others; their errors are
// joined into the returned error.
func (w *Workspace) Update(ctx context.Context, opts UpdateOptions) ([]UpdateResult, error) {
	if opts.Init {
		if _, err := w.Init(opts.Paths...); err != nil {
			return nil, err
		}
	}

	m, err := w.Manifest()
	if err != nil {
		return nil, err
	}
	ptrs, err := m.Select(opts.Paths...)
	if err != nil {
		return nil, err
	}

	var (
		results  []UpdateResult
		errs     []error
		repinned bool
	)
	for _, ptr := range ptrs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, newPin := w.updateOne(ctx, ptr, opts.Remote)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ptr.Path, res.Err))
			w.log.WithError(res.Err).WithField("component", ptr.Path).Error("update failed")
		} else if res.Action != ActionSkipped {
			w.log.WithFields(logrus.Fields{"component": ptr.Path, "action": res.Action, "revision": res.To}).Info("updated external component")
		}
		if newPin != "" && newPin != ptr.Revision {
			ptr.Revision = newPin
			m.Set(ptr)
			repinned = true
		}

		results = append(results, res)
		if opts.Done != nil {
			opts.Done(res)
		}
	}

	if repinned {
		if err := m.Save(w.root); err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// updateOne returns the result and, with remote set, the new pin.
func (w *Workspace) updateOne(ctx context.Context, ptr Pointer, remote bool) (UpdateResult, string) {
	res := UpdateResult{Path: ptr.Path}
	fail := func(err error) (UpdateResult, string) {
		res.Action = ActionFailed
		res.Err = err
		return res, ""
	}

	c, err := w.store.Lookup(ptr.Path)
	if err != nil {
		return fail(err)
	}
	if !c.Initialized {
		res.Action = ActionSkipped
		return res, ""
	}

	url := c.URL
	if url == "" {
		url = ptr.URL
	}
	source := w.sourceURL(url)
	auth, err := w.creds.AuthFor(source)
	if err != nil {
		return fail(err)
	}

	dir := w.Dir(ptr.Path)
	co, err := openCheckout(dir, auth)
	fetched := false
	switch {
	case errors.Is(err, ErrNotCheckedOut):
		if empty, err := isEmptyDir(dir); err != nil {
			return fail(err)
		} else if !empty {
			return fail(fmt.Errorf("%w: %s is not empty", ErrExists, ptr.Path))
		}
		if co, err = clone(ctx, dir, source, auth, w.progress); err != nil {
			return fail(err)
		}
		res.Action = ActionCloned
		fetched = true
	case err != nil:
		return fail(err)
	default:
		if h, err := co.head(); err == nil {
			res.From = h.String()
		}
	}

	target := plumbing.NewHash(ptr.Revision)
	if remote {
		if !fetched {
			if err := co.fetch(ctx, w.progress); err != nil {
				return fail(err)
			}
		}
		branch := ptr.Branch
		if branch == "" {
			branch = c.Branch
		}
		if branch == "" {
			return fail(fmt.Errorf("%w: no branch to follow for %s", ErrInvalidPointer, ptr.Path))
		}
		if target, err = co.remoteTip(branch); err != nil {
			return fail(err)
		}
	} else if !co.hasCommit(target) {
		if err := co.fetch(ctx, w.progress); err != nil {
			return fail(err)
		}
		if !co.hasCommit(target) {
			return fail(fmt.Errorf("%w: revision %s not found in %s", ErrInvalidPointer, ptr.Revision, url))
		}
	}

	if res.From == target.String() && res.Action != ActionCloned {
		res.Action = ActionUpToDate
	} else {
		// A fresh clone has nothing local to lose.
		if err := co.checkoutDetached(target, res.Action == ActionCloned); err != nil {
			return fail(err)
		}
		if res.Action == "" {
			res.Action = ActionCheckedOut
		}
	}
	res.To = target.String()

	c.URL = url
	c.CheckedOut = true
	c.Revision = res.To
	c.LastUpdated = time.Now()
	if err := w.store.Put(c); err != nil {
		return fail(fmt.Errorf("recording state: %w", err))
	}

	if remote {
		return res, res.To
	}
	return res, ""
}

// Status reports every pointer against its local checkout.
func (w *Workspace) Status() ([]ComponentStatus, error) {
	m, err := w.Manifest()
	if err != nil {
		return nil, err
	}

	out := []ComponentStatus{}
	for _, ptr := range m.Pointers() {
		st := ComponentStatus{Path: ptr.Path, URL: ptr.URL, Pinned: ptr.Revision}

		c, err := w.store.Lookup(ptr.Path)
		if err != nil {
			return nil, err
		}
		if c.URL != "" {
			st.URL = c.URL
		}

		co, err := openCheckout(w.Dir(ptr.Path), nil)
		switch {
		case !c.Initialized:
			st.State = StateUninitialized
		case errors.Is(err, ErrNotCheckedOut):
			st.State = StateNotCheckedOut
		case err != nil:
			return nil, err
		default:
			h, err := co.head()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ptr.Path, err)
			}
			st.Current = h.String()
			st.State = StateInSync
			if st.Current != ptr.Revision {
				st.State = StateModified
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Pin records the checkout's current HEAD as the pinned revision of p. It
// returns the updated pointer; an unchanged HEAD leaves the manifest alone.
func (w *Workspace) Pin(p string) (Pointer, error) {
	p = CleanPath(p)
	m, err := w.Manifest()
	if err != nil {
		return Pointer{}, err
	}
	ptr, err := m.Get(p)
	if err != nil {
		return Pointer{}, err
	}

	co, err := openCheckout(w.Dir(p), nil)
	if err != nil {
		return Pointer{}, err
	}
	h, err := co.head()
	if err != nil {
		return Pointer{}, err
	}
	if h.String() == ptr.Revision {
		return ptr, nil
	}

	ptr.Revision = h.String()
	m.Set(ptr)
	if err := m.Save(w.root); err != nil {
		return Pointer{}, err
	}

	c, err := w.store.Lookup(p)
	if err != nil {
		return Pointer{}, err
	}
	if c.URL == "" {
		c.URL = ptr.URL
	}
	c.CheckedOut = true
	c.Revision = ptr.Revision
	if err := w.store.Put(c); err != nil {
		return Pointer{}, fmt.Errorf("recording state: %w", err)
	}

	w.log.WithFields(logrus.Fields{"component": p, "revision": ptr.Revision}).Info("pinned external component")
	return ptr, nil
}

// Deinit removes the checkout of p, leaving an empty placeholder, and marks
// it uninitialized. Without force it refuses when the checkout has local
// changes or sits on a revision other than the pin.
func (w *Workspace) Deinit(p string, force bool) error {
	p = CleanPath(p)
	m, err := w.Manifest()
	if err != nil {
		return err
	}
	ptr, err := m.Get(p)
	if err != nil {
		return err
	}

	dir := w.Dir(p)
	if !force {
		if err := guardLocalWork(dir, ptr); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", p, err)
	}

	c, err := w.store.Lookup(p)
	if err != nil {
		return err
	}
	c.Initialized = false
	c.CheckedOut = false
	c.Revision = ""
	if c.URL == "" {
		c.URL = ptr.URL
	}
	if err := w.store.Put(c); err != nil {
		return fmt.Errorf("recording state: %w", err)
	}

	w.log.WithField("component", p).Info("deinitialized external component")
	return nil
}

// Sync copies manifest URLs into the local state of initialized pointers
// and into their checkouts' origin remote.
func (w *Workspace) Sync(paths ...string) ([]Pointer, error) {
	m, err := w.Manifest()
	if err != nil {
		return nil, err
	}
	ptrs, err := m.Select(paths...)
	if err != nil {
		return nil, err
	}

	var synced []Pointer
	for _, ptr := range ptrs {
		c, err := w.store.Lookup(ptr.Path)
		if err != nil {
			return synced, err
		}
		if !c.Initialized {
			continue
		}
		c.URL = ptr.URL
		c.Branch = ptr.Branch
		if err := w.store.Put(c); err != nil {
			return synced, fmt.Errorf("recording state: %w", err)
		}

		co, err := openCheckout(w.Dir(ptr.Path), nil)
		switch {
		case errors.Is(err, ErrNotCheckedOut):
		case err != nil:
			return synced, err
		default:
			if err := co.setRemoteURL(w.sourceURL(ptr.URL)); err != nil {
				return synced, fmt.Errorf("%s: %w", ptr.Path, err)
			}
		}
		synced = append(synced, ptr)
	}
	return synced, nil
}

// Remove drops p from the manifest and the local state and deletes its
// directory. Like Deinit it refuses to destroy local work unless force is set.
func (w *Workspace) Remove(p string, force bool) error {
	p = CleanPath(p)
	m, err := w.Manifest()
	if err != nil {
		return err
	}
	ptr, err := m.Get(p)
	if err != nil {
		return err
	}
	if !force {
		if err := guardLocalWork(w.Dir(p), ptr); err != nil {
			return err
		}
	}

	delete(m.Externals, p)
	if err := m.Save(w.root); err != nil {
		return err
	}
	if err := w.store.Delete(p); err != nil {
		return fmt.Errorf("recording state: %w", err)
	}
	if err := os.RemoveAll(w.Dir(p)); err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}

	w.log.WithField("component", p).Info("removed external component")
	return nil
}

// sourceURL resolves a relative local path against the workspace root so
// pointers behave the same whatever the process working directory is.
func (w *Workspace) sourceURL(u string) string {
	if strings.Contains(u, "://") || filepath.IsAbs(u) {
		return u
	}
	ep, err := transport.NewEndpoint(u)
	if err != nil || ep.Protocol != "file" {
		return u
	}
	return filepath.Join(w.root, filepath.FromSlash(u))
}

// guardLocalWork returns ErrDirty when the checkout in dir holds commits
// beyond the pin or uncommitted changes. A missing checkout has nothing to lose.
func guardLocalWork(dir string, ptr Pointer) error {
	co, err := openCheckout(dir, nil)
	if errors.Is(err, ErrNotCheckedOut) {
		return nil
	}
	if err != nil {
		return err
	}

	h, err := co.head()
	if err != nil {
		return err
	}
	if h.String() != ptr.Revision {
		return fmt.Errorf("%w: %s is at %s, pinned %s (use force)", ErrDirty, ptr.Path, h, ptr.Revision)
	}
	clean, err := co.clean()
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("%w: %s has uncommitted changes (use force)", ErrDirty, ptr.Path)
	}
	return nil
}

// isEmptyDir treats a missing directory as empty.
func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
