// Package questionbank loads question banks from YAML files and seeds them
// into a question store.
//
// A bank file holds a default category and a list of questions. Older banks
// used option_a..option_d and letter answers; both shapes are accepted and
// normalized here so the rest of the engine only sees canonical questions.
package questionbank

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// bankNamespace derives stable ids for bank questions that do not set one,
// so reseeding the same bank updates rows instead of duplicating them.
var bankNamespace = uuid.MustParse("6f1c7a52-3a0e-4b7e-9a55-0d7f1c6e2b91")

// Store is the subset of the question store that seeding needs
type Store interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
}

// Loader reads and caches bank questions
type Loader struct {
	mu        sync.RWMutex
	questions map[string]*models.Question
	order     []string
	log       *zap.Logger
	now       func() time.Time
}

// NewLoader creates an empty loader
func NewLoader(log *zap.Logger) *Loader {
	return &Loader{
		questions: make(map[string]*models.Question),
		log:       log,
		now:       time.Now,
	}
}

// LoadFromDir loads every *.yaml / *.yml bank in dir and its direct
// subdirectories. Invalid files or questions are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("question bank directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*/*.yaml", "*/*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		n, err := l.LoadFromFile(file)
		if err != nil {
			l.log.Warn("failed to load question bank", zap.String("file", file), zap.Error(err))
			continue
		}
		loaded += n
	}

	l.log.Info("question banks loaded",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("questions", loaded),
	)
	return nil
}

// LoadFromFile loads one bank file and returns the number of valid questions
func (l *Loader) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var bank bankFile
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return 0, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(bank.Questions) == 0 {
		return 0, fmt.Errorf("no questions in bank")
	}

	defaultCategory := bank.Category
	if defaultCategory == "" {
		base := filepath.Base(path)
		defaultCategory = strings.TrimSuffix(base, filepath.Ext(base))
	}

	loaded := 0
	for i, entry := range bank.Questions {
		q := entry.toQuestion(defaultCategory, l.now())
		if err := q.Validate(); err != nil {
			l.log.Warn("skipping invalid bank question",
				zap.String("file", path),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		l.Add(q)
		loaded++
	}

	return loaded, nil
}

// Add registers a question, replacing any previous one with the same id
func (l *Loader) Add(q *models.Question) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.questions[q.ID]; !exists {
		l.order = append(l.order, q.ID)
	}
	l.questions[q.ID] = q
}

// Get retrieves a loaded question by id
func (l *Loader) Get(id string) *models.Question {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.questions[id]
}

// List returns loaded questions in load order
func (l *Loader) List() []*models.Question {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.Question, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.questions[id])
	}
	return out
}

// Seed writes every loaded question into the store and returns how many were written
func (l *Loader) Seed(ctx context.Context, store Store) (int, error) {
	written := 0
	for _, q := range l.List() {
		if err := store.CreateQuestion(ctx, q); err != nil {
			return written, fmt.Errorf("failed to seed question %s: %w", q.ID, err)
		}
		written++
	}
	return written, nil
}

// --- YAML file structs ---

type bankFile struct {
	Category  string      `yaml:"category"`
	Questions []bankEntry `yaml:"questions"`
}

// bankEntry accepts both the current and the lettered legacy shape.
// "question" is an alias of "question_text".
type bankEntry struct {
	ID            string   `yaml:"id"`
	Category      string   `yaml:"category"`
	Text          string   `yaml:"question_text"`
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	OptionA       *string  `yaml:"option_a"`
	OptionB       *string  `yaml:"option_b"`
	OptionC       *string  `yaml:"option_c"`
	OptionD       *string  `yaml:"option_d"`
	CorrectAnswer any      `yaml:"correct_answer"`
	Explanation   string   `yaml:"explanation"`
	IsPremium     bool     `yaml:"is_premium"`
}

func (e bankEntry) toQuestion(defaultCategory string, now time.Time) *models.Question {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		text = strings.TrimSpace(e.Question)
	}

	category := e.Category
	if category == "" {
		category = defaultCategory
	}

	id := e.ID
	if id == "" {
		id = uuid.NewSHA1(bankNamespace, []byte(category+"\x00"+text)).String()
	}

	return &models.Question{
		ID:            id,
		Category:      category,
		Text:          text,
		Options:       models.NormalizeOptions(e.Options, e.OptionA, e.OptionB, e.OptionC, e.OptionD),
		CorrectAnswer: models.NormalizeCorrectAnswer(e.CorrectAnswer),
		Explanation:   strings.TrimSpace(e.Explanation),
		IsPremium:     e.IsPremium,
		CreatedAt:     now,
	}
}
