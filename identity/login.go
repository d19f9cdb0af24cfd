package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coreworld/explorer/errors"
)

// PreviousLogin is the cached session a client can present at boot instead
// of running the full challenge/signed-challenge handshake cold (§6
// "Environment at boot... optional previous login (wallet address +
// ephemeral key + auth chain)").
//
// Grounded on the server/nodedid.Handler, which generates an
// ed25519 keypair on first boot and persists it for reuse; adapted here
// from a database-backed node identity to a JSON file cache of the
// player's ephemeral session key, per §1's "persisted login storage"
// (an ambient concern carried in the idiom despite being listed
// among external-collaborator details).
type PreviousLogin struct {
	Address       Address           `json:"address"`
	EphemeralPub  ed25519.PublicKey `json:"ephemeral_pub"`
	EphemeralPriv ed25519.PrivateKey `json:"ephemeral_priv"`
	AuthChainJSON string            `json:"auth_chain_json"`
}

// GenerateEphemeralKey creates a fresh ephemeral signing keypair for a new
// session, the same generate-on-first-boot step nodedid.generate performs
// for the node's long-lived identity.
func GenerateEphemeralKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate ephemeral key")
	}
	return pub, priv, nil
}

// LoadPreviousLogin reads a cached login from path, returning (nil, nil)
// if the cache file doesn't exist yet (first run).
func LoadPreviousLogin(path string) (*PreviousLogin, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read login cache %s", path)
	}

	var login PreviousLogin
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, errors.Wrap(err, "decode login cache")
	}
	return &login, nil
}

// SavePreviousLogin persists login to path, creating parent directories as
// needed.
func SavePreviousLogin(path string, login *PreviousLogin) error {
	full := expandHome(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return errors.Wrap(err, "create login cache dir")
	}

	data, err := json.MarshalIndent(login, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode login cache")
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return errors.Wrap(err, "write login cache")
	}
	return nil
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
