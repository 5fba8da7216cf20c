package intel

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultHitScore is added for every indicator match
const DefaultHitScore = 100

// Store holds the indicator sets loaded at startup. It is never mutated after
// Load returns, so it can be shared between goroutines without locking.
type Store struct {
	maliciousIPs     map[string]struct{}
	maliciousDomains map[string]struct{}
	maliciousHashes  map[string]struct{}
	hitScore         int
}

// Files names the indicator lists, one indicator per line
type Files struct {
	MaliciousIPs     string
	MaliciousDomains string
	MaliciousHashes  string
}

// Counts reports the size of each indicator set
type Counts struct {
	IPs     int `json:"malicious_ips"`
	Domains int `json:"malicious_domains"`
	Hashes  int `json:"malicious_hashes"`
}

// NewStore builds a store from in-memory indicator lists
func NewStore(ips, domains, hashes []string) *Store {
	return &Store{
		maliciousIPs:     toSet(ips),
		maliciousDomains: toSet(normalizeDomains(domains)),
		maliciousHashes:  toSet(normalizeHashes(hashes)),
		hitScore:         DefaultHitScore,
	}
}

// Load reads the indicator files. A missing or unreadable file is logged and
// treated as an empty list.
func Load(files Files, logger *logrus.Logger) *Store {
	read := func(kind, path string) []string {
		if path == "" {
			return nil
		}
		lines, err := readIndicators(path)
		if err != nil {
			logger.Warnf("Threat intel %s not loaded: %v", kind, err)
			return nil
		}
		return lines
	}

	store := NewStore(
		read("ips", files.MaliciousIPs),
		read("domains", files.MaliciousDomains),
		read("hashes", files.MaliciousHashes),
	)

	counts := store.Counts()
	logger.WithFields(logrus.Fields{
		"ips":     counts.IPs,
		"domains": counts.Domains,
		"hashes":  counts.Hashes,
	}).Info("Loaded threat intelligence")

	return store
}

// SetHitScore overrides the per-indicator score. Call before sharing the store.
func (s *Store) SetHitScore(score int) {
	if score > 0 {
		s.hitScore = score
	}
}

func (s *Store) IsMaliciousIP(ip string) bool {
	_, ok := s.maliciousIPs[ip]
	return ok
}

func (s *Store) IsMaliciousDomain(domain string) bool {
	_, ok := s.maliciousDomains[normalizeDomain(domain)]
	return ok
}

func (s *Store) IsMaliciousHash(hash string) bool {
	_, ok := s.maliciousHashes[strings.ToLower(hash)]
	return ok
}

// Score returns the intelligence score for an address and an optional domain
func (s *Store) Score(ip, domain string) int {
	score := 0
	if s.IsMaliciousIP(ip) {
		score += s.hitScore
	}
	if domain != "" && s.IsMaliciousDomain(domain) {
		score += s.hitScore
	}
	return score
}

func (s *Store) Counts() Counts {
	return Counts{
		IPs:     len(s.maliciousIPs),
		Domains: len(s.maliciousDomains),
		Hashes:  len(s.maliciousHashes),
	}
}

func readIndicators(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// normalizeDomain lowercases and strips the trailing root dot
func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		out = append(out, normalizeDomain(d))
	}
	return out
}

func normalizeHashes(hashes []string) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, strings.ToLower(h))
	}
	return out
}
