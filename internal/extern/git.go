package extern

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const remoteName = "origin"

// checkout is the git side of one materialized component.
type checkout struct {
	repo *git.Repository
	auth transport.AuthMethod
}

func clone(ctx context.Context, dir, url string, auth transport.AuthMethod, progress io.Writer) (*checkout, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        url,
		Auth:       auth,
		RemoteName: remoteName,
		Progress:   progress,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}
	return &checkout{repo: repo, auth: auth}, nil
}

// openCheckout returns ErrNotCheckedOut when dir holds no repository.
func openCheckout(dir string, auth transport.AuthMethod) (*checkout, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) || errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotCheckedOut, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dir, err)
	}
	return &checkout{repo: repo, auth: auth}, nil
}

func (c *checkout) fetch(ctx context.Context, progress io.Writer) error {
	err := c.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       c.auth,
		RefSpecs:   []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + remoteName + "/*")},
		Tags:       git.AllTags,
		Progress:   progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", remoteName, err)
	}
	return nil
}

func (c *checkout) head() (plumbing.Hash, error) {
	ref, err := c.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// currentBranch is the branch HEAD points to, "" when detached.
func (c *checkout) currentBranch() string {
	ref, err := c.repo.Head()
	if err != nil || !ref.Name().IsBranch() {
		return ""
	}
	return ref.Name().Short()
}

func (c *checkout) hasCommit(h plumbing.Hash) bool {
	_, err := c.repo.CommitObject(h)
	return err == nil
}

// resolve turns a branch, tag or commit hash into a commit hash. Remote
// branches are tried before local ones so a fresh fetch wins. The returned
// branch is set when ref named a remote branch.
func (c *checkout) resolve(ref string) (plumbing.Hash, string, error) {
	if ref == "" {
		h, err := c.head()
		return h, c.currentBranch(), err
	}

	if r, err := c.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, ref), true); err == nil {
		return r.Hash(), ref, nil
	}
	h, err := c.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, "", fmt.Errorf("%w: cannot resolve %q: %v", ErrInvalidPointer, ref, err)
	}
	if !c.hasCommit(*h) {
		return plumbing.ZeroHash, "", fmt.Errorf("%w: %q is not a commit", ErrInvalidPointer, ref)
	}
	return *h, "", nil
}

// remoteTip is the commit at origin/<branch>.
func (c *checkout) remoteTip(branch string) (plumbing.Hash, error) {
	r, err := c.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: no remote branch %s/%s", ErrInvalidPointer, remoteName, branch)
	}
	return r.Hash(), nil
}

// checkoutDetached moves HEAD to h. Local modifications abort the switch
// unless force is set.
func (c *checkout) checkoutDetached(h plumbing.Hash, force bool) error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.Checkout(&git.CheckoutOptions{Hash: h, Force: force})
	if errors.Is(err, git.ErrUnstagedChanges) {
		return fmt.Errorf("%w: %v", ErrDirty, err)
	}
	return err
}

func (c *checkout) clean() (bool, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, err
	}
	st, err := wt.Status()
	if err != nil {
		return false, err
	}
	return st.IsClean(), nil
}

func (c *checkout) setRemoteURL(url string) error {
	cfg, err := c.repo.Config()
	if err != nil {
		return err
	}
	remote, ok := cfg.Remotes[remoteName]
	if !ok {
		return fmt.Errorf("no %s remote", remoteName)
	}
	remote.URLs = []string{url}
	return c.repo.Storer.SetConfig(cfg)
}
