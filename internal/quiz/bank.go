package quiz

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultFiles embed.FS

// Bank holds questions grouped by subject and picks one at random per call.
type Bank struct {
	mu        sync.RWMutex
	bySubject map[string][]Question

	randMu sync.Mutex
	rand   *rand.Rand
}

// LoadBank reads the embedded questions and then every *.yaml/*.yml in overrideDir.
// Override files add questions; they never remove embedded ones.
func LoadBank(overrideDir string) (*Bank, error) {
	b := &Bank{
		bySubject: make(map[string][]Question),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	raw, err := fs.ReadFile(defaultFiles, "questions.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded questions: %w", err)
	}
	if err := b.add("embedded", raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := b.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// NewBank builds a bank from explicit questions, keyed by their Subject.
func NewBank(questions []Question, seed int64) *Bank {
	b := &Bank{bySubject: make(map[string][]Question), rand: rand.New(rand.NewSource(seed))}
	for _, q := range questions {
		subject := normalizeSubject(q.Subject)
		q.Subject = subject
		b.bySubject[subject] = append(b.bySubject[subject], q)
	}
	return b
}

func (b *Bank) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read quiz dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := b.add(name, raw); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) add(source string, raw []byte) error {
	parsed, err := ParseQuestions(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for subject, qs := range parsed {
		for i := range qs {
			if qs[i].ID == "" {
				qs[i].ID = fmt.Sprintf("%s-%s-%d", strings.TrimSuffix(source, filepath.Ext(source)), subject, len(b.bySubject[subject])+i+1)
			}
		}
		b.bySubject[subject] = append(b.bySubject[subject], qs...)
	}
	return nil
}

// ParseQuestions decodes a subject → questions YAML document and validates every entry.
func ParseQuestions(raw []byte) (map[string][]Question, error) {
	var doc map[string][]Question
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string][]Question, len(doc))
	for subject, qs := range doc {
		key := normalizeSubject(subject)
		if key == "" {
			return nil, fmt.Errorf("empty subject key")
		}
		for i, q := range qs {
			q.Subject = key
			q.Answer = strings.ToUpper(strings.TrimSpace(q.Answer))
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			out[key] = append(out[key], q)
		}
	}
	return out, nil
}

// Has reports whether the subject has at least one question.
func (b *Bank) Has(subject string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bySubject[normalizeSubject(subject)]) > 0
}

// Subjects lists known subjects in sorted order.
func (b *Bank) Subjects() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.bySubject))
	for s, qs := range b.bySubject {
		if len(qs) > 0 {
			out = append(out, s)
		}
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (b *Bank) NextQuestion(ctx context.Context, subject string) (Question, error) {
	if err := ctx.Err(); err != nil {
		return Question{}, err
	}
	key := normalizeSubject(subject)
	b.mu.RLock()
	qs := b.bySubject[key]
	b.mu.RUnlock()
	if len(qs) == 0 {
		return Question{}, fmt.Errorf("%w: %s", ErrNoQuestions, key)
	}
	b.randMu.Lock()
	i := b.rand.Intn(len(qs))
	b.randMu.Unlock()
	q := qs[i]
	q.Choices = append([]string(nil), q.Choices...)
	return q, nil
}

func normalizeSubject(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
