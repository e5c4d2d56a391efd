package meadowkey

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/meadowlark-sync/willow/errors"
)

// keyFilePermissions restricts a persisted secret key to the owner only.
const keyFilePermissions = 0600

// expandHome resolves a leading "~" in path against the current user's home
// directory, the same convention the teacher's plugin.paths config entries use.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// SaveUserSecretKey writes k's private key to path as hex, creating parent
// directories as needed. The file is not a capability by itself: without the
// matching public key and a grant, it authorises nothing.
func SaveUserSecretKey(path string, k UserSecretKey) error {
	resolved, err := expandHome(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrapf(err, "failed to create key directory %s", dir)
		}
	}

	encoded := hex.EncodeToString(k.Private)
	if err := os.WriteFile(resolved, []byte(encoded+"\n"), keyFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write secret key to %s", resolved)
	}
	return nil
}

// LoadUserSecretKey reads a secret key previously written by
// SaveUserSecretKey and reconstructs its UserSecretKey, deriving the public
// key from the Ed25519 private key's second half.
func LoadUserSecretKey(path string) (UserSecretKey, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return UserSecretKey{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return UserSecretKey{}, errors.Wrapf(err, "failed to read secret key from %s", resolved)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return UserSecretKey{}, errors.Wrapf(err, "secret key at %s is not valid hex", resolved)
	}
	if len(raw) != 64 {
		return UserSecretKey{}, errors.Newf("secret key at %s has unexpected length %d (want 64)", resolved, len(raw))
	}

	var pub UserPublicKey
	copy(pub[:], raw[32:])
	return UserSecretKey{Public: pub, Private: raw}, nil
}

// LoadOrGenerateUserSecretKey loads the key at path, generating and
// persisting a fresh one if the file does not yet exist.
func LoadOrGenerateUserSecretKey(path string) (UserSecretKey, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return UserSecretKey{}, err
	}

	if _, err := os.Stat(resolved); err == nil {
		return LoadUserSecretKey(resolved)
	} else if !os.IsNotExist(err) {
		return UserSecretKey{}, errors.Wrapf(err, "failed to stat key file %s", resolved)
	}

	key, err := GenerateUserKey()
	if err != nil {
		return UserSecretKey{}, err
	}
	if err := SaveUserSecretKey(resolved, key); err != nil {
		return UserSecretKey{}, err
	}
	return key, nil
}

// SaveNamespaceSecretKey writes k's private key to path as hex, mirroring
// SaveUserSecretKey for the namespace keypair that owns a willow store.
func SaveNamespaceSecretKey(path string, k NamespaceSecretKey) error {
	resolved, err := expandHome(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrapf(err, "failed to create key directory %s", dir)
		}
	}

	encoded := hex.EncodeToString(k.Private)
	if err := os.WriteFile(resolved, []byte(encoded+"\n"), keyFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write secret key to %s", resolved)
	}
	return nil
}

// LoadNamespaceSecretKey reads a secret key previously written by
// SaveNamespaceSecretKey.
func LoadNamespaceSecretKey(path string) (NamespaceSecretKey, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return NamespaceSecretKey{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return NamespaceSecretKey{}, errors.Wrapf(err, "failed to read secret key from %s", resolved)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return NamespaceSecretKey{}, errors.Wrapf(err, "secret key at %s is not valid hex", resolved)
	}
	if len(raw) != 64 {
		return NamespaceSecretKey{}, errors.Newf("secret key at %s has unexpected length %d (want 64)", resolved, len(raw))
	}

	var pub NamespacePublicKey
	copy(pub[:], raw[32:])
	return NamespaceSecretKey{Public: pub, Private: raw}, nil
}

// LoadOrGenerateNamespaceSecretKey loads the key at path, generating and
// persisting a fresh one if the file does not yet exist.
func LoadOrGenerateNamespaceSecretKey(path string) (NamespaceSecretKey, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return NamespaceSecretKey{}, err
	}

	if _, err := os.Stat(resolved); err == nil {
		return LoadNamespaceSecretKey(resolved)
	} else if !os.IsNotExist(err) {
		return NamespaceSecretKey{}, errors.Wrapf(err, "failed to stat key file %s", resolved)
	}

	key, err := GenerateNamespaceKey()
	if err != nil {
		return NamespaceSecretKey{}, err
	}
	if err := SaveNamespaceSecretKey(resolved, key); err != nil {
		return NamespaceSecretKey{}, err
	}
	return key, nil
}
