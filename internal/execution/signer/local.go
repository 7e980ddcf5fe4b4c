package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	EnvPrivateKey       = "NFT_PRIVATE_KEY"
	EnvPrivateKeyFile   = "NFT_PRIVATE_KEY_FILE"
	EnvKeystorePath     = "NFT_KEYSTORE_PATH"
	EnvKeystorePassword = "NFT_KEYSTORE_PASSWORD"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultKeyHint = "~/.config/nft/key.hex"
)

var errNotInitialized = errors.New("local signer is not initialized")

// LocalSigner holds a secp256k1 key in memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errNotInitialized
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// SignTypedData hashes typed per EIP-712 and signs it. V is 27 or 28 as
// the marketplace expects.
func (s *LocalSigner) SignTypedData(typed apitypes.TypedData) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errNotInitialized
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// LocalSignerConfig names one key location. The first non-empty field wins,
// in field order.
type LocalSignerConfig struct {
	PrivateKeyHex    string
	PrivateKeyFile   string
	KeystorePath     string
	KeystorePassword string
}

// NewLocalSignerFromInputs resolves the key for source from the NFT_* env.
// A non-empty privateKey (the --private-key flag) beats every source.
func NewLocalSignerFromInputs(source, privateKey string) (*LocalSigner, error) {
	if key := strings.TrimSpace(privateKey); key != "" {
		return NewLocalSigner(LocalSignerConfig{PrivateKeyHex: key})
	}
	cfg, err := configForSource(source)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(cfg)
}

func configForSource(source string) (LocalSignerConfig, error) {
	env := func(name string) string { return strings.TrimSpace(os.Getenv(name)) }
	file := env(EnvPrivateKeyFile)
	if file == "" {
		file = defaultKeyFile()
	}
	keystoreCfg := LocalSignerConfig{KeystorePath: env(EnvKeystorePath), KeystorePassword: env(EnvKeystorePassword)}

	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		keystoreCfg.PrivateKeyHex = env(EnvPrivateKey)
		keystoreCfg.PrivateKeyFile = file
		return keystoreCfg, nil
	case KeySourceEnv:
		return LocalSignerConfig{PrivateKeyHex: env(EnvPrivateKey)}, nil
	case KeySourceFile:
		return LocalSignerConfig{PrivateKeyFile: file}, nil
	case KeySourceKeystore:
		return keystoreCfg, nil
	}
	return LocalSignerConfig{}, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	key, err := cfg.load()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (cfg LocalSignerConfig) load() (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKeyHex != "":
		return parseHexKey(cfg.PrivateKeyHex)
	case cfg.PrivateKeyFile != "":
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	case cfg.KeystorePath != "":
		if cfg.KeystorePassword == "" {
			return nil, fmt.Errorf("%s is required to unlock %s", EnvKeystorePassword, cfg.KeystorePath)
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		unlocked, err := keystore.DecryptKey(buf, cfg.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return unlocked.PrivateKey, nil
	}
	return nil, fmt.Errorf("missing signing key: pass --private-key, write it to %s, or set %s, %s or %s", defaultKeyHint, EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// defaultKeyFile is $XDG_CONFIG_HOME/nft/key.hex when that file exists.
func defaultKeyFile() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if strings.TrimSpace(base) == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, "nft", "key.hex")
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
