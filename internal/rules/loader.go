package rules

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultRulesExtension is the suffix of signature files inside the rules directory
const DefaultRulesExtension = ".rules"

// FileResult is the outcome of loading one rules file
type FileResult struct {
	Path     string
	Loaded   int
	Failures []*ParseError
	Err      error
}

// LoadResult aggregates every file of a rules directory
type LoadResult struct {
	Dir   string
	Rules []model.Rule
	Files []FileResult
	Err   error
}

// Failed returns the number of rejected lines across all files
func (r *LoadResult) Failed() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Failures)
	}
	return n
}

// LoadRules reads every file with the given extension in dir. Loading is best
// effort: unreadable files and bad lines are recorded and skipped.
func LoadRules(dir, ext string, logger *logrus.Logger) *LoadResult {
	if ext == "" {
		ext = DefaultRulesExtension
	}

	result := &LoadResult{Dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.Err = fmt.Errorf("failed to read rules directory %s: %w", dir, err)
		logger.Warnf("Rules directory not available, continuing with no rules: %v", result.Err)
		return result
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		rules, fileResult := loadFile(path)
		result.Rules = append(result.Rules, rules...)
		result.Files = append(result.Files, fileResult)

		if fileResult.Err != nil {
			logger.Warnf("Error loading %s: %v", name, fileResult.Err)
			continue
		}
		for _, failure := range fileResult.Failures {
			logger.Debugf("Skipped rule: %v", failure)
		}
		logger.WithFields(logrus.Fields{
			"file":    name,
			"loaded":  fileResult.Loaded,
			"skipped": len(fileResult.Failures),
		}).Info("Loaded rules file")
	}

	logger.Infof("Total rules loaded: %d (%d lines rejected)", len(result.Rules), result.Failed())
	return result
}

func loadFile(path string) ([]model.Rule, FileResult) {
	fileResult := FileResult{Path: path}

	f, err := os.Open(path)
	if err != nil {
		fileResult.Err = fmt.Errorf("failed to open rules file: %w", err)
		return nil, fileResult
	}
	defer f.Close()

	var rules []model.Rule
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := ParseRule(line)
		if err != nil {
			perr, ok := err.(*ParseError)
			if !ok {
				perr = &ParseError{Reason: ReasonBadHeader, Text: line}
			}
			perr.File = filepath.Base(path)
			perr.Line = lineNo
			fileResult.Failures = append(fileResult.Failures, perr)
			continue
		}

		rule.File = filepath.Base(path)
		rules = append(rules, *rule)
	}

	if err := scanner.Err(); err != nil {
		// keep what was read before the failure
		fileResult.Err = fmt.Errorf("failed to read rules file: %w", err)
	}

	fileResult.Loaded = len(rules)
	return rules, fileResult
}

// Store holds the loaded signatures. It is read-only after construction.
type Store struct {
	rules []model.Rule
	bySid map[string]int
}

// NewStore builds a store from parsed rules
func NewStore(rules []model.Rule) *Store {
	s := &Store{
		rules: rules,
		bySid: make(map[string]int, len(rules)),
	}
	for i := range rules {
		if rules[i].Options.Sid != nil {
			s.bySid[*rules[i].Options.Sid] = i
		}
	}
	return s
}

func (s *Store) Rules() []model.Rule {
	return s.rules
}

func (s *Store) Len() int {
	return len(s.rules)
}

// BySid returns the last loaded rule carrying the given sid
func (s *Store) BySid(sid string) (model.Rule, bool) {
	i, ok := s.bySid[sid]
	if !ok {
		return model.Rule{}, false
	}
	return s.rules[i], true
}
