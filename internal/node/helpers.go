package node

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// kdfParams converts the wallet config into keystore KDF parameters,
// falling back to the defaults for unset fields.
func kdfParams(w config.WalletConfig) wallet.KDFParams {
	p := wallet.DefaultKDFParams()
	if w.KDFMemory > 0 {
		p.Memory = w.KDFMemory
	}
	if w.KDFIterations > 0 {
		p.Iterations = w.KDFIterations
	}
	if w.KDFThreads > 0 {
		p.Parallelism = w.KDFThreads
	}
	return p
}

func maxDuration(ds ...time.Duration) time.Duration {
	var m time.Duration
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}
