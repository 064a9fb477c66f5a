// Package uci drives UCI engine processes such as stockfish.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/obslog"
)

const (
	handshakeTimeout = 4 * time.Second
	searchSlack      = 3 * time.Second
	depthOnlyBudget  = 10 * time.Second

	// stockfish rejects UCI_Elo below this
	MinEngineElo = 1320
	MaxEngineElo = 3190
)

var errEngineExited = errors.New("uci: engine output closed")

// Options are applied once per process with setoption.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
}

func (o Options) validate() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("uci: skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB <= 0:
		return fmt.Errorf("uci: hash size must be positive, got %d", o.HashMB)
	case o.MultiPV <= 0:
		return fmt.Errorf("uci: multipv must be positive, got %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("uci: negative elo %d", o.Elo)
	}
	return nil
}

func (o Options) commands() []string {
	threads := max(o.Threads, 1)
	cmds := []string{
		setoption("Threads", threads),
		setoption("Hash", o.HashMB),
		setoption("Skill Level", o.SkillLevel),
		setoption("MultiPV", o.MultiPV),
	}
	if o.Elo > 0 {
		cmds = append(cmds, setoption("UCI_LimitStrength", "true"), setoption("UCI_Elo", ClampElo(o.Elo)))
	}
	return cmds
}

func (o Options) key() string {
	return fmt.Sprintf("%d/%d/%d/%d/%d", o.Threads, o.SkillLevel, o.HashMB, o.MultiPV, o.Elo)
}

func setoption(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

// ClampElo keeps a target rating inside the range the engine accepts.
func ClampElo(elo int) int {
	return min(max(elo, MinEngineElo), MaxEngineElo)
}

// Limits bound one search. At least one field must be set.
type Limits struct {
	Depth          int
	MoveTimeMillis int
}

func (l Limits) goCommand() (string, error) {
	if l.Depth <= 0 && l.MoveTimeMillis <= 0 {
		return "", errors.New("uci: search needs a depth or move time")
	}
	var b strings.Builder
	b.WriteString("go")
	if l.Depth > 0 {
		b.WriteString(" depth " + strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		b.WriteString(" movetime " + strconv.Itoa(l.MoveTimeMillis))
	}
	return b.String(), nil
}

func (l Limits) budget() time.Duration {
	if l.MoveTimeMillis > 0 {
		return 2*time.Duration(l.MoveTimeMillis)*time.Millisecond + searchSlack
	}
	return depthOnlyBudget
}

// Candidate is one multipv line, best first.
type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
}

// Session is one engine process. Searches are serialized.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewSession starts the engine binary and runs the uci/isready handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	// 프로세스 수명은 세션이 관리한다
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("uci: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("uci: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("uci: start %s: %w", binaryPath, err)
	}
	s := &Session{cmd: cmd, stdin: stdin, lines: make(chan string, 64), done: make(chan struct{})}
	go s.pump(stdout)

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := s.handshake(hctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// pump is the only reader of stdout, so a timed-out wait never loses a line.
func (s *Session) pump(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case s.lines <- strings.TrimSpace(sc.Text()):
		case <-s.done:
			return
		}
	}
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	if err := s.send("uci"); err != nil {
		return err
	}
	if err := s.waitFor(ctx, "uciok"); err != nil {
		return err
	}
	for _, c := range opt.commands() {
		if err := s.send(c); err != nil {
			return err
		}
	}
	return s.Ready(ctx)
}

// Ready sends isready and waits for readyok.
func (s *Session) Ready(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := s.send("isready"); err != nil {
		return err
	}
	return s.waitFor(rctx, "readyok")
}

// NewGame clears engine state between games.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return err
	}
	return s.Ready(ctx)
}

// Search analyses fen ("" or "startpos" for the initial position) and returns
// the multipv lines together with the engine's bestmove.
func (s *Session) Search(ctx context.Context, fen string, l Limits) (SearchResponse, error) {
	goCmd, err := l.goCommand()
	if err != nil {
		return SearchResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sendLocked(positionCommand(fen)); err != nil {
		return SearchResponse{}, err
	}
	if err := s.sendLocked(goCmd); err != nil {
		return SearchResponse{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, l.budget())
	defer cancel()
	lines := make(map[int]Candidate)
	for {
		line, err := s.next(sctx)
		if err != nil {
			obslog.L().Warn("uci_search_failed", zap.String("fen", fen), zap.String("go", goCmd), zap.Error(err))
			return SearchResponse{}, err
		}
		if rank, c, ok := parseInfo(line); ok {
			lines[rank] = c
			continue
		}
		if rest, ok := strings.CutPrefix(line, "bestmove"); ok {
			best, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
			return SearchResponse{Candidates: ranked(lines), BestMove: best}, nil
		}
	}
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.send("quit")
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	})
	return nil
}

func (s *Session) send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(line)
}

func (s *Session) sendLocked(line string) error {
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("uci: write %q: %w", line, err)
	}
	return nil
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", errEngineExited
		}
		return line, nil
	}
}

func (s *Session) waitFor(ctx context.Context, token string) error {
	for {
		line, err := s.next(ctx)
		if err != nil {
			return fmt.Errorf("uci: waiting for %s: %w", token, err)
		}
		if line == token {
			return nil
		}
	}
}

func positionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos"
	}
	return "position fen " + fen
}

const mateScore = 30000

// parseInfo extracts the multipv rank, score and principal variation of an
// info line. Lines without a pv are skipped.
func parseInfo(line string) (int, Candidate, bool) {
	if !strings.HasPrefix(line, "info ") {
		return 0, Candidate{}, false
	}
	fields := strings.Fields(line)
	rank, c := 1, Candidate{}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil {
					rank = n
				}
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err != nil {
					break
				}
				switch fields[i+1] {
				case "cp":
					c.EvalCP = n
				case "mate":
					c.EvalCP = mateScore
					if n < 0 {
						c.EvalCP = -mateScore
					}
				}
			}
		case "pv":
			c.Principal = slices.Clone(fields[i+1:])
			if len(c.Principal) == 0 {
				return 0, Candidate{}, false
			}
			c.Move = c.Principal[0]
			return rank, c, true
		}
	}
	return 0, Candidate{}, false
}

func ranked(lines map[int]Candidate) []Candidate {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(lines))
	for _, rank := range slices.Sorted(maps.Keys(lines)) {
		out = append(out, lines[rank])
	}
	return out
}
