package uci

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

const fakeEngine = `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info depth 1 multipv 2 score cp -40 pv d7d5"; echo "info depth 1 multipv 1 score cp 15 pv e7e5 g1f3"; echo "bestmove e7e5" ;;
    quit) exit 0 ;;
  esac
done
`

func writeFakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell engine stub needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(fakeEngine), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	return path
}

func TestPoolSearchWithFakeEngine(t *testing.T) {
	pool, err := NewPool(PoolConfig{BinaryPath: writeFakeEngine(t), PerOptionsCapacity: 1})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opt := Options{HashMB: 16, MultiPV: 2, Elo: 900}
	s, err := pool.Acquire(ctx, opt)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := s.NewGame(ctx); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	resp, err := s.Search(ctx, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1", Limits{MoveTimeMillis: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e7e5" || len(resp.Candidates) != 2 || resp.Candidates[0].Move != "e7e5" || resp.Candidates[1].EvalCP != -40 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	pool.Release(s, nil)

	again, err := pool.Acquire(ctx, opt)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if again != s {
		t.Fatalf("expected the released session to be reused")
	}
	pool.Release(again, nil)
}

func TestPoolRejectsMissingBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected missing binary error")
	}
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("expected empty path error")
	}
}

func TestBuildCommands(t *testing.T) {
	if got := positionCommand(""); got != "position startpos" {
		t.Fatalf("unexpected position command %q", got)
	}
	if got := positionCommand(" 8/8/8/8/8/8/8/K6k w - - 0 1 "); got != "position fen 8/8/8/8/8/8/8/K6k w - - 0 1" {
		t.Fatalf("unexpected fen command %q", got)
	}
	goCmd, err := Limits{Depth: 8, MoveTimeMillis: 300}.goCommand()
	if err != nil || goCmd != "go depth 8 movetime 300" {
		t.Fatalf("go command %q err=%v", goCmd, err)
	}
	if _, err := (Limits{}).goCommand(); err == nil {
		t.Fatalf("expected error without limits")
	}
}

func TestClampEloAndOptions(t *testing.T) {
	if ClampElo(900) != MinEngineElo || ClampElo(1800) != 1800 || ClampElo(5000) != MaxEngineElo {
		t.Fatalf("clamp mismatch")
	}
	cmds := Options{HashMB: 16, MultiPV: 1, Elo: 900}.commands()
	last := cmds[len(cmds)-1]
	if last != "setoption name UCI_Elo value 1320" {
		t.Fatalf("expected clamped elo, got %q", last)
	}
	if cmds[0] != "setoption name Threads value 1" {
		t.Fatalf("threads default, got %q", cmds[0])
	}
	if err := (Options{HashMB: 0, MultiPV: 1}).validate(); err == nil {
		t.Fatalf("expected hash validation error")
	}
}

func TestParseInfoMate(t *testing.T) {
	pv, cand, ok := parseInfo("info depth 12 multipv 1 score mate -3 nodes 100 pv h7h6 d8b8")
	if !ok || pv != 1 || cand.EvalCP != -mateScore || cand.Move != "h7h6" || len(cand.Principal) != 2 {
		t.Fatalf("unexpected parse: %d %+v %v", pv, cand, ok)
	}
	if _, _, ok := parseInfo("info string hello"); ok {
		t.Fatalf("info without pv must be ignored")
	}
}
