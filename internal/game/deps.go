package game

import (
	"context"
	"time"

	"github.com/park285/quizchess/internal/ai"
	"github.com/park285/quizchess/internal/domain"
	"github.com/park285/quizchess/internal/quiz"
	"github.com/park285/quizchess/internal/rating"
	"github.com/park285/quizchess/internal/rules"
	"github.com/park285/quizchess/internal/store"
)

const (
	DefaultQuizTimeout = 30 * time.Second
	defaultAITimeout   = 15 * time.Second
)

// Notifier delivers encoded frames to the connections of a game.
type Notifier interface {
	Broadcast(code string, frame []byte)
	SendRole(code string, role domain.Role, frame []byte)
}

// LiveStore keeps the latest snapshot of a game outside the process.
type LiveStore interface {
	ReserveCode(ctx context.Context, code string) (bool, error)
	SaveSnapshot(ctx context.Context, code string, v any) error
	LoadSnapshot(ctx context.Context, code string, dst any) (bool, error)
	Forget(ctx context.Context, code string) error
}

// OpeningNamer classifies a UCI move list.
type OpeningNamer interface {
	Opening(moves []string) (code, title string)
}

type Timer interface {
	Stop() bool
}

// Clock is injectable so quiz deadlines and stale sweeps are testable.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Deps are shared by every session of a Manager.
type Deps struct {
	Rules    rules.Adapter
	Openings OpeningNamer
	// Quiz serves questions when QuizFor is nil.
	Quiz    quiz.Provider
	QuizFor func(code string) quiz.Provider
	Rating  rating.Updater
	Repo    store.Repository
	Live    LiveStore
	Notify  Notifier
	AI      ai.Mover
	Clock   Clock

	QuizTimeout time.Duration
	AITimeout   time.Duration
	DefaultElo  int
}

func (d *Deps) withDefaults() {
	if d.Clock == nil {
		d.Clock = realClock{}
	}
	if d.Notify == nil {
		d.Notify = nopNotifier{}
	}
	if d.Quiz == nil {
		d.Quiz = quiz.ProviderFunc(func(context.Context, string) (quiz.Question, error) {
			return quiz.Question{}, quiz.ErrNoQuestions
		})
	}
	if d.Repo == nil {
		d.Repo = store.NewMemoryRepository()
	}
	if d.QuizTimeout <= 0 {
		d.QuizTimeout = DefaultQuizTimeout
	}
	if d.AITimeout <= 0 {
		d.AITimeout = defaultAITimeout
	}
	if d.DefaultElo <= 0 {
		d.DefaultElo = 1200
	}
	if d.Rating.K <= 0 {
		d.Rating = rating.NewUpdater(rating.DefaultK)
	}
}

func (d *Deps) quizFor(code string) quiz.Provider {
	if d.QuizFor != nil {
		if p := d.QuizFor(code); p != nil {
			return p
		}
	}
	return d.Quiz
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, []byte)              {}
func (nopNotifier) SendRole(string, domain.Role, []byte) {}
