package extern

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Credentials authenticate fetches of external components.
type Credentials struct {
	// Username/Password: basic auth for http(s) URLs (a token works as password).
	Username string
	Password string

	// SSHUser is used when an ssh URL carries no user.
	SSHUser    string
	SSHKeyPath string
	// SSHKnownHosts enables host key checking; empty accepts any host key.
	SSHKnownHosts string
}

// AuthFor picks the auth method for rawURL. Local paths and anonymous
// http(s) need none and get nil.
func (c Credentials) AuthFor(rawURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: url %q: %v", ErrInvalidPointer, rawURL, err)
	}

	switch ep.Protocol {
	case "http", "https":
		if c.Username == "" && c.Password == "" {
			return nil, nil
		}
		return &githttp.BasicAuth{Username: c.Username, Password: c.Password}, nil

	case "ssh":
		user := ep.User
		if user == "" {
			user = c.SSHUser
		}
		keyPath := expandHome(c.SSHKeyPath)
		auth, err := gitssh.NewPublicKeysFromFile(user, keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("loading ssh key %s: %w", keyPath, err)
		}
		cb, err := c.hostKeyCallback()
		if err != nil {
			return nil, err
		}
		auth.HostKeyCallback = cb
		return auth, nil

	default:
		return nil, nil
	}
}

func (c Credentials) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.SSHKnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil // TODO: default to ~/.ssh/known_hosts once the CLI can add entries
	}
	cb, err := knownhosts.New(expandHome(c.SSHKnownHosts))
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}
	return cb, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
