package discovery

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	importLineRe = regexp.MustCompile(`^\s*import\s`)
	jsxOpenTagRe = regexp.MustCompile(`<[A-Z][A-Za-z0-9_]*[\s/>]`)

	generatedNameRe = regexp.MustCompile(`(\.generated\.|\.gen\.|_generated|\.min\.)`)
	testFileRe      = regexp.MustCompile(`(\.test\.|\.spec\.|\.stories\.)`)
	configFileRe    = regexp.MustCompile(`(^|\.)config\.[cm]?[jt]sx?$`)
)

// generatedMarkers are matched case-insensitively against the first 10
// lines of a file.
var generatedMarkers = []string{"@generated", "generated by", "do not edit", "autogenerated"}

// contentScan is the cacheable result of one cheap line-by-line pass.
type contentScan struct {
	lines      int
	importHits int
	jsxHits    int
	generated  bool

	// trailing line-end punctuation counts, for the minified heuristic
	semiEnds  int
	commaEnds int
	braceEnds int
}

// scanContent reads path line by line, counting import statements and
// capitalized JSX open tags with two regexes. This is a fast pre-filter,
// not the authoritative extraction.
func scanContent(path string) (contentScan, error) {
	f, err := os.Open(path)
	if err != nil {
		return contentScan{}, err
	}
	defer f.Close()

	var scan contentScan
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		scan.lines++

		if importLineRe.MatchString(line) {
			scan.importHits++
		}
		scan.jsxHits += len(jsxOpenTagRe.FindAllString(line, -1))

		if scan.lines <= 10 {
			lower := strings.ToLower(line)
			for _, marker := range generatedMarkers {
				if strings.Contains(lower, marker) {
					scan.generated = true
					break
				}
			}
		}

		trimmed := strings.TrimRight(line, " \t")
		switch {
		case strings.HasSuffix(trimmed, ";"):
			scan.semiEnds++
		case strings.HasSuffix(trimmed, ","):
			scan.commaEnds++
		case strings.HasSuffix(trimmed, "}"):
			scan.braceEnds++
		}
	}
	if err := sc.Err(); err != nil {
		return contentScan{}, err
	}
	return scan, nil
}

// looksMinified fires for files with very few lines but a large byte size,
// or with a high density of trailing punctuation across at least two
// pattern categories.
func (s contentScan) looksMinified(sizeBytes int64) bool {
	if s.lines == 0 {
		return false
	}
	if s.lines < 10 && sizeBytes > 5*1024 {
		return true
	}
	dense := 0
	for _, count := range []int{s.semiEnds, s.commaEnds, s.braceEnds} {
		if float64(count)/float64(s.lines) > 0.4 {
			dense++
		}
	}
	return dense >= 2
}

func looksGeneratedName(path string) bool {
	return generatedNameRe.MatchString(filepath.Base(path))
}

func looksLikeTestFile(path string) bool {
	base := filepath.Base(path)
	if testFileRe.MatchString(base) {
		return true
	}
	dir := filepath.ToSlash(filepath.Dir(path))
	return strings.Contains(dir, "/__tests__") || strings.HasSuffix(dir, "__tests__")
}

func looksLikeConfigFile(path string) bool {
	return configFileRe.MatchString(filepath.Base(path))
}

// SortByPriority orders candidates by descending priority, breaking ties by
// path so the merge order stays deterministic.
func SortByPriority(cands []*Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Priority != cands[j].Priority {
			return cands[i].Priority > cands[j].Priority
		}
		return cands[i].Path < cands[j].Path
	})
}

// Batch groups processable candidates (in their current order) into chunks
// of at most size.
func Batch(cands []*Candidate, size int) [][]*Candidate {
	if size <= 0 {
		size = 100
	}
	var batches [][]*Candidate
	var current []*Candidate
	for _, c := range cands {
		if !c.ShouldProcess {
			continue
		}
		current = append(current, c)
		if len(current) == size {
			batches = append(batches, current)
			current = nil
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
