// ABOUTME: Optional SSH/SOCKS5 jump-host tunnel dialer for the vCenter connection
// ABOUTME: Accepts ssh+socks5://user@host:port?private-key=/path/to/key, same format as BOSH_ALL_PROXY

package hypervisor

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	proxy "github.com/cloudfoundry/socks5-proxy"
)

// DialFunc dials a TCP connection, optionally tunneled through a jump host.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// sshKeyAllowedDirs bounds where the private key file may live.
var sshKeyAllowedDirs = []string{
	"/tmp",
	"/var/tmp",
}

func allowedSSHKeyDirs() []string {
	if custom := os.Getenv("VCBALANCER_SSH_KEY_ALLOWED_DIRS"); custom != "" {
		return strings.Split(custom, ":")
	}
	dirs := make([]string, len(sshKeyAllowedDirs))
	copy(dirs, sshKeyAllowedDirs)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dirs = append(dirs, home)
	}
	return dirs
}

func isUnderAllowedDirs(absPath string, allowedDirs []string) bool {
	for _, dir := range allowedDirs {
		dirWithSep := dir
		if !strings.HasSuffix(dirWithSep, string(filepath.Separator)) {
			dirWithSep += string(filepath.Separator)
		}
		if strings.HasPrefix(absPath, dirWithSep) || absPath == dir {
			return true
		}
	}
	return false
}

// validateSSHKeyPath rejects traversal attempts and paths outside the
// allowed directories, then confirms the file exists and is regular.
func validateSSHKeyPath(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal detected in ssh key path")
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolving ssh key path: %w", err)
	}
	if !isUnderAllowedDirs(absPath, allowedSSHKeyDirs()) {
		return "", fmt.Errorf("ssh key path outside allowed directories")
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("ssh key file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("ssh key path is not a regular file")
	}
	return absPath, nil
}

// NewSocks5DialFunc parses a --socks5-proxy value of the form
// ssh+socks5://user@host:port?private-key=/path/to/key and returns a
// DialFunc that tunnels connections through it, connecting lazily and
// caching the resulting dialer. Returns nil, err on malformed input.
func NewSocks5DialFunc(proxyValue string) (DialFunc, error) {
	trimmed := strings.TrimPrefix(proxyValue, "ssh+")
	proxyURL, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing --socks5-proxy: %w", err)
	}
	query, err := url.ParseQuery(proxyURL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing --socks5-proxy query params: %w", err)
	}
	username := ""
	if proxyURL.User != nil {
		username = proxyURL.User.Username()
	}
	keyPath := query.Get("private-key")
	if keyPath == "" {
		return nil, fmt.Errorf("--socks5-proxy missing required private-key query param")
	}
	validatedPath, err := validateSSHKeyPath(keyPath)
	if err != nil {
		return nil, fmt.Errorf("invalid ssh private key path: %w", err)
	}
	key, err := os.ReadFile(validatedPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh private key: %w", err)
	}

	socks5Proxy := proxy.NewSocks5Proxy(proxy.NewHostKey(), log.Default(), 1*time.Minute)

	var (
		dialer proxy.DialFunc
		mu     sync.RWMutex
	)

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		mu.RLock()
		have := dialer != nil
		mu.RUnlock()
		if have {
			return dialer(network, address)
		}

		mu.Lock()
		defer mu.Unlock()
		if dialer == nil {
			d, err := socks5Proxy.Dialer(username, string(key), proxyURL.Host)
			if err != nil {
				return nil, fmt.Errorf("creating socks5 dialer: %w", err)
			}
			dialer = d
		}
		return dialer(network, address)
	}, nil
}
