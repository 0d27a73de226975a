package securestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadKeyFile returns the plaintext contents of a key file. Sealed files are
// opened with passphrase; plain files are returned as-is.
func ReadKeyFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !IsSealed(raw) {
		return raw, nil
	}
	return Open(passphrase, raw)
}

// SealKeyFile reads src, seals it and writes the envelope to dst with
// owner-only permissions. src and dst may be the same path.
func SealKeyFile(src, dst, passphrase string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	defer zeroBytes(raw)
	if IsSealed(raw) {
		return fmt.Errorf("%s is already sealed", src)
	}
	sealed, err := Seal(passphrase, raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".seal-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
