package discovery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// AnnounceFile publishes a worker's listening address by creating its own
// file under dir/nodes/, named with a random uid so concurrently starting
// workers never collide. This is the preferred rendezvous style: per-file
// writes can't interleave the way a shared nodes.txt can.
func AnnounceFile(dir, addr string) (path string, err error) {
	nodesDir := filepath.Join(dir, NodesDir)
	if err := os.MkdirAll(nodesDir, 0o755); err != nil {
		return "", fmt.Errorf("discovery: mkdir %s: %w", nodesDir, err)
	}
	uid, err := makeUID()
	if err != nil {
		return "", err
	}
	path = filepath.Join(nodesDir, uid)
	line := fmt.Sprintf("node %s\n", addr)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("discovery: write %s: %w", path, err)
	}
	return path, nil
}

// AnnounceCat appends a line to the single shared nodes.txt file. Kept for
// interoperating with a fleet that still relies on it; deprecated because
// concurrent appends from multiple workers can interleave within a single
// file, per the specification's design notes. Prefer AnnounceFile.
func AnnounceCat(dir, addr string) error {
	path := filepath.Join(dir, NodesFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("discovery: open %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "node %s\n", addr)
	if err != nil {
		return fmt.Errorf("discovery: append %s: %w", path, err)
	}
	return nil
}

func makeUID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("discovery: generate uid: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
