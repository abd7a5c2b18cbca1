package learn

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/prukaya/finbuddy/internal/dispatch"
)

// QuizSize is how many questions a module quiz draws.
const QuizSize = 4

const (
	gameIntro  = "Test your knowledge about insurance products with a KayaTee Mini Game! Use /gamestart to start the quiz and see how much you know!"
	nextSteps  = "Type /quiz to take a quiz or /learn to learn another module."
	noQuizText = "No quiz in progress. Type /quiz or /gamestart to start one."
	emptyText  = "Nothing to show here yet."
)

type progress struct {
	questions []Question
	current   int
	score     int
}

// Tutor answers the learning commands and keeps each user's quiz progress.
type Tutor struct {
	content *Content
	// pick returns n distinct question indexes out of total.
	pick func(total, n int) []int

	mu       sync.Mutex
	progress map[int64]*progress

	logger *slog.Logger
}

func NewTutor(content *Content) *Tutor {
	if content == nil {
		content = &Content{}
	}
	return &Tutor{
		content:  content,
		pick:     randomPick,
		progress: make(map[int64]*progress),
		logger:   slog.Default().With(slog.String("component", "learn")),
	}
}

func randomPick(total, n int) []int {
	return rand.Perm(total)[:n]
}

// Register installs the learning commands and callbacks on d.
func (t *Tutor) Register(d *dispatch.Dispatcher) {
	d.HandleCommand("learn", t.modules)
	d.HandleCommand("quiz", t.quizzes)
	d.HandleCommand("playgame", t.playGame)
	d.HandleCommand("gamestart", t.gameStart)

	d.HandleCallback("learn_", t.moduleDetails)
	d.HandleCallback("quiz_", t.startQuiz)
	d.HandleCallback("answer_", t.answer)
}

func text(s string) []dispatch.Reply {
	return []dispatch.Reply{{Text: s}}
}

func (t *Tutor) modules(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, m := range t.content.Modules {
		rows = append(rows, []dispatch.Button{{Text: "Learn " + m.Title, Data: fmt.Sprintf("learn_%d", m.ID)}})
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return []dispatch.Reply{{Text: "Select a module to learn:", Buttons: rows}}
}

func (t *Tutor) moduleDetails(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	id, err := strconv.ParseInt(strings.TrimPrefix(msg.CallbackData, "learn_"), 10, 64)
	if err != nil {
		return text("Module not found.")
	}
	m, ok := t.content.module(id)
	if !ok {
		return text("Module not found.")
	}

	parts := make([]string, 0, len(m.Submodules))
	for _, sub := range m.Submodules {
		parts = append(parts, sub.Title+": "+sub.Content)
	}
	return []dispatch.Reply{{Text: strings.Join(parts, "\n\n")}, {Text: nextSteps}}
}

func (t *Tutor) quizzes(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, m := range t.content.Modules {
		if _, ok := t.content.quiz(m.ID); ok {
			rows = append(rows, []dispatch.Button{{Text: "Quiz - " + m.Title, Data: fmt.Sprintf("quiz_%d", m.ID)}})
		}
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return []dispatch.Reply{{Text: "Select a module to take the quiz on:", Buttons: rows}}
}

func (t *Tutor) startQuiz(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	id, err := strconv.ParseInt(strings.TrimPrefix(msg.CallbackData, "quiz_"), 10, 64)
	if err != nil {
		return text("No questions available for that module. Please select a different module.")
	}
	quiz, ok := t.content.quiz(id)
	if !ok {
		return text("No questions available for that module. Please select a different module.")
	}

	n := min(QuizSize, len(quiz.Questions))
	questions := make([]Question, 0, n)
	for _, i := range t.pick(len(quiz.Questions), n) {
		questions = append(questions, quiz.Questions[i])
	}
	return t.begin(msg.UserID, questions)
}

func (t *Tutor) playGame(context.Context, dispatch.Message) []dispatch.Reply {
	return text(gameIntro)
}

func (t *Tutor) gameStart(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	if len(t.content.Game) == 0 {
		return text(emptyText)
	}
	return t.begin(msg.UserID, t.content.Game)
}

// begin replaces any quiz the user had in progress.
func (t *Tutor) begin(userID int64, questions []Question) []dispatch.Reply {
	p := &progress{questions: questions}

	t.mu.Lock()
	t.progress[userID] = p
	t.mu.Unlock()

	return []dispatch.Reply{questionReply(p)}
}

func questionReply(p *progress) dispatch.Reply {
	q := p.questions[p.current]
	rows := make([][]dispatch.Button, 0, len(q.Options))
	for i, opt := range q.Options {
		rows = append(rows, []dispatch.Button{{Text: opt, Data: fmt.Sprintf("answer_%d_%d", p.current, i)}})
	}
	return dispatch.Reply{
		Text:    fmt.Sprintf("Question %d: %s", p.current+1, q.Question),
		Buttons: rows,
	}
}

// answer scores callback data answer_<question>_<option>. Presses on an
// earlier question's buttons are ignored.
func (t *Tutor) answer(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	parts := strings.Split(strings.TrimPrefix(msg.CallbackData, "answer_"), "_")
	if len(parts) != 2 {
		return nil
	}
	questionIdx, err1 := strconv.Atoi(parts[0])
	selected, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.progress[msg.UserID]
	if !ok {
		return text(noQuizText)
	}
	if questionIdx != p.current {
		return nil
	}

	q := p.questions[p.current]
	correct := q.CorrectIndex()
	var feedback string
	switch {
	case selected == correct:
		p.score++
		feedback = "Correct!"
	case correct >= 0 && correct < len(q.Options):
		feedback = "Incorrect. The correct answer was " + q.Options[correct] + "."
	default:
		feedback = "Incorrect."
	}
	p.current++

	if p.current < len(p.questions) {
		return []dispatch.Reply{{Text: feedback}, questionReply(p)}
	}

	delete(t.progress, msg.UserID)
	t.logger.Info("Quiz finished",
		slog.Int64("user_id", msg.UserID),
		slog.Int("score", p.score),
		slog.Int("questions", len(p.questions)))
	return []dispatch.Reply{
		{Text: feedback},
		{Text: fmt.Sprintf("Quiz finished! Your score is %d out of %d. Thank you for participating!", p.score, len(p.questions))},
	}
}
