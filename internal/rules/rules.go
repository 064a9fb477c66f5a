// Package rules wraps corentings/chess as the legality and terminal-state oracle.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/quizchess/internal/domain"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrBadPosition = errors.New("rules: malformed position")

// Verdict describes a proposed move. Resulting is empty when Legal is false.
type Verdict struct {
	Legal     bool
	Piece     string
	Captured  string
	Promotion string
	UCI       string
	SAN       string
	Resulting string
}

type Kind string

const (
	KindNone                 Kind = ""
	KindCheckmate            Kind = "checkmate"
	KindStalemate            Kind = "stalemate"
	KindInsufficientMaterial Kind = "insufficient_material"
	KindFiftyMove            Kind = "fifty_move"
	KindThreefold            Kind = "threefold_repetition"
)

// IsDraw reports whether the kind ends the game without a winner.
func (k Kind) IsDraw() bool { return k != KindNone && k != KindCheckmate }

type Terminal struct {
	Terminal bool
	Kind     Kind
	Winner   domain.Side
}

// Adapter is the legality oracle consumed by game sessions.
type Adapter interface {
	IsLegal(position, from, to, promotion string) (Verdict, error)
	// ClassifyTerminal inspects position; history holds earlier positions for repetition.
	ClassifyTerminal(position string, history ...string) (Terminal, error)
}

// Chess implements Adapter.
type Chess struct {
	eco *opening.BookECO
}

func New() *Chess { return &Chess{eco: opening.NewBookECO()} }

func (c *Chess) IsLegal(position, from, to, promotion string) (Verdict, error) {
	game, err := load(position)
	if err != nil {
		return Verdict{}, err
	}
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))

	sqFrom, ok := parseSquare(from)
	if !ok {
		return Verdict{}, nil
	}
	if _, ok := parseSquare(to); !ok {
		return Verdict{}, nil
	}
	pos := game.Position()
	board := pos.Board()
	moving := board.Piece(sqFrom)
	if moving == nchess.NoPiece || moving.Color() != pos.Turn() {
		return Verdict{}, nil
	}
	// 승급 기물 미지정 시 퀸
	if promotion == "" && moving.Type() == nchess.Pawn && (to[1] == '8' || to[1] == '1') {
		promotion = "q"
	}
	if promotion != "" && !strings.Contains("qrbn", promotion) {
		return Verdict{}, nil
	}

	uci := from + to + promotion
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil || mv == nil {
		return Verdict{}, nil
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)

	captured := ""
	if target := board.Piece(mv.S2()); target != nchess.NoPiece {
		captured = pieceLetter(target.Type())
	} else if mv.HasTag(nchess.EnPassant) {
		captured = "p"
	}

	if err := game.Move(mv, nil); err != nil {
		return Verdict{}, nil
	}
	return Verdict{
		Legal:     true,
		Piece:     pieceLetter(moving.Type()),
		Captured:  captured,
		Promotion: promotion,
		UCI:       uci,
		SAN:       san,
		Resulting: game.FEN(),
	}, nil
}

func (c *Chess) ClassifyTerminal(position string, history ...string) (Terminal, error) {
	game, err := load(position)
	if err != nil {
		return Terminal{}, err
	}
	pos := game.Position()
	switch pos.Status() {
	case nchess.Checkmate:
		// 수를 둘 차례인 쪽이 메이트
		loser := sideOf(pos.Turn())
		return Terminal{Terminal: true, Kind: KindCheckmate, Winner: loser.Opponent()}, nil
	case nchess.Stalemate:
		return Terminal{Terminal: true, Kind: KindStalemate}, nil
	}
	if insufficientMaterial(pos.Board()) {
		return Terminal{Terminal: true, Kind: KindInsufficientMaterial}, nil
	}
	if halfmoveClock(position) >= 100 {
		return Terminal{Terminal: true, Kind: KindFiftyMove}, nil
	}
	if repetitions(position, history) >= 3 {
		return Terminal{Terminal: true, Kind: KindThreefold}, nil
	}
	return Terminal{}, nil
}

// LegalMoves lists every legal move in UCI.
func (c *Chess) LegalMoves(position string) ([]string, error) {
	game, err := load(position)
	if err != nil {
		return nil, err
	}
	moves := game.ValidMoves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.String())
	}
	return out, nil
}

// Opening names the ECO opening reached by a UCI move list from the start position.
func (c *Chess) Opening(moves []string) (code, title string) {
	if c == nil || c.eco == nil || len(moves) == 0 {
		return "", ""
	}
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return "", ""
		}
	}
	if eco := c.eco.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// SideToMove reads the active color field of a FEN.
func SideToMove(position string) domain.Side {
	fields := strings.Fields(position)
	if len(fields) > 1 && fields[1] == "b" {
		return domain.Black
	}
	return domain.White
}

// IsTriggerPiece reports whether capturing the piece requires a quiz.
func IsTriggerPiece(letter string) bool {
	switch strings.ToLower(letter) {
	case "q", "r", "b":
		return true
	}
	return false
}

func load(position string) (*nchess.Game, error) {
	position = strings.TrimSpace(position)
	if position == "" || position == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}

func sideOf(c nchess.Color) domain.Side {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

// insufficientMaterial covers K v K, K+minor v K and K+B v K+B with same-colored bishops.
func insufficientMaterial(board *nchess.Board) bool {
	var minors []nchess.Piece
	var bishopShades []int
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			p := board.Piece(nchess.NewSquare(file, rank))
			switch p.Type() {
			case nchess.NoPieceType, nchess.King:
				continue
			case nchess.Knight:
				minors = append(minors, p)
			case nchess.Bishop:
				minors = append(minors, p)
				bishopShades = append(bishopShades, (int(file)+int(rank))%2)
			default:
				return false
			}
		}
	}
	switch len(minors) {
	case 0, 1:
		return true
	case 2:
		return len(bishopShades) == 2 && minors[0].Color() != minors[1].Color() && bishopShades[0] == bishopShades[1]
	}
	return false
}

func halfmoveClock(position string) int {
	fields := strings.Fields(position)
	if len(fields) < 5 {
		return 0
	}
	n, _ := strconv.Atoi(fields[4])
	return n
}

func repetitions(position string, history []string) int {
	key := repetitionKey(position)
	if key == "" {
		return 0
	}
	count := 1
	for _, h := range history {
		if repetitionKey(h) == key {
			count++
		}
	}
	return count
}

func repetitionKey(position string) string {
	fields := strings.Fields(position)
	if len(fields) < 4 {
		return ""
	}
	return strings.Join(fields[:4], " ")
}
