package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/pkg/logger"
)

// KeyRing holds the signing keys the gateway may use. The first key loaded is
// the relayer that submits creations; claims are signed by the owner's key.
type KeyRing struct {
	relayer common.Address
	keys    map[common.Address]*ecdsa.PrivateKey
}

// NewKeyRing wraps already-decrypted keys. The first key is the relayer.
func NewKeyRing(keys ...*ecdsa.PrivateKey) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key ring needs at least one key")
	}
	r := &KeyRing{keys: make(map[common.Address]*ecdsa.PrivateKey, len(keys))}
	for i, k := range keys {
		addr := crypto.PubkeyToAddress(k.PublicKey)
		if i == 0 {
			r.relayer = addr
		}
		r.keys[addr] = k
	}
	return r, nil
}

// LoadKeyRing decrypts every Web3 Secret Storage file under dir with password.
// Files are read in name order so the relayer is stable across restarts.
func LoadKeyRing(dir, password string) (*KeyRing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var keys []*ecdsa.PrivateKey
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", e.Name(), err)
		}
		key, err := keystore.DecryptKey(raw, password)
		if err != nil {
			logger.Warn("skipping undecryptable keystore file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		keys = append(keys, key.PrivateKey)
	}
	return NewKeyRing(keys...)
}

// Relayer is the account that submits creations.
func (r *KeyRing) Relayer() common.Address { return r.relayer }

// Key returns the key for addr.
func (r *KeyRing) Key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	k, ok := r.keys[addr]
	return k, ok
}
