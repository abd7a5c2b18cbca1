// Package report runs the /generate_report questionnaire and asks the answer
// service for a personalised financial report.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prukaya/finbuddy/internal/dispatch"
	"github.com/prukaya/finbuddy/internal/session"
)

const (
	introText   = "Let's build your personalised financial report. Type /cancel at any time to stop."
	askAge      = "Please enter your age."
	askGender   = "Please enter your gender (Male/Female/Other)."
	askIncome   = "Please enter your monthly income."
	askExpenses = "Please enter your monthly expenses."
	askGoal     = "Please enter your savings goal."

	badAge      = "Invalid input. Please enter a valid number for your age."
	badGender   = "Please enter your gender."
	badIncome   = "Invalid input. Please enter a valid number for your monthly income."
	badExpenses = "Invalid input. Please enter a valid number for your monthly expenses."
	badGoal     = "Please describe your savings goal."

	generatingText = "Please wait while the report is generating..."
	failedText     = "Failed to generate the report. Please try again later."
	retryGoalText  = "Send your savings goal again once your previous question has been answered."
	cancelledText  = "Report cancelled."
	noReportText   = "There is no report in progress."

	reportTitle = "Personalized Financial Report"
)

type step int

const (
	stepAge step = iota
	stepGender
	stepIncome
	stepExpenses
	stepGoal
)

// Profile is what the questionnaire collects.
type Profile struct {
	Age           int
	Gender        string
	MonthlyIncome float64
	Expenses      float64
	SavingsGoal   string
}

// Surplus is the monthly income left after expenses.
func (p Profile) Surplus() float64 { return p.MonthlyIncome - p.Expenses }

// Prompt is the query sent to the answer service.
func (p Profile) Prompt() string {
	return fmt.Sprintf("Generate a personalised financial report for a %d-year-old %s in Singapore "+
		"with a monthly income of S$%.2f and monthly expenses of S$%.2f, leaving S$%.2f a month. "+
		"Their savings goal is: %s. Include a monthly savings plan with a timeline to reach the goal, "+
		"an emergency fund target, and suitable Singapore savings, investment and insurance options.",
		p.Age, strings.ToLower(p.Gender), p.MonthlyIncome, p.Expenses, p.Surplus(), p.SavingsGoal)
}

type draft struct {
	profile Profile
	next    step
}

// Gate is the per-user processing gate shared with free-text questions.
type Gate interface {
	Begin(userID int64, username string) (session.Session, bool)
	EndProcessing(userID int64, sessionID string)
}

type Config struct {
	Gate           Gate
	Answerer       dispatch.Answerer
	Sender         dispatch.Sender
	Safety         dispatch.SafetyChecker
	Timeout        time.Duration
	TypingInterval time.Duration
	Logger         *slog.Logger
}

// Flow keeps each user's questionnaire and claims their free text until the
// report is produced or cancelled.
type Flow struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	drafts map[int64]*draft
}

func NewFlow(cfg Config) *Flow {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Flow{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "report")),
		drafts: make(map[int64]*draft),
	}
}

// Register installs /generate_report, /cancel and the questionnaire on d.
func (f *Flow) Register(d *dispatch.Dispatcher) {
	d.HandleCommand("generate_report", f.start)
	d.HandleCommand("cancel", f.cancel)
	d.HandleFlow(f)
}

func text(s string) []dispatch.Reply {
	return []dispatch.Reply{{Text: s}}
}

func (f *Flow) start(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	f.mu.Lock()
	f.drafts[msg.UserID] = &draft{}
	f.mu.Unlock()
	return []dispatch.Reply{{Text: introText}, {Text: askAge}}
}

func (f *Flow) cancel(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	f.mu.Lock()
	_, ok := f.drafts[msg.UserID]
	delete(f.drafts, msg.UserID)
	f.mu.Unlock()

	if !ok {
		return text(noReportText)
	}
	return text(cancelledText)
}

// Active reports whether userID is answering the questionnaire.
func (f *Flow) Active(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.drafts[userID]
	return ok
}

// Intercept records one answer. An invalid answer repeats the question.
func (f *Flow) Intercept(ctx context.Context, msg dispatch.Message) ([]dispatch.Reply, bool) {
	f.mu.Lock()
	d, ok := f.drafts[msg.UserID]
	if !ok {
		f.mu.Unlock()
		return nil, false
	}

	input := strings.TrimSpace(msg.Text)
	switch d.next {
	case stepAge:
		age, err := strconv.Atoi(input)
		if err != nil || age <= 0 || age > 120 {
			f.mu.Unlock()
			return text(badAge), true
		}
		d.profile.Age, d.next = age, stepGender
		f.mu.Unlock()
		return text(askGender), true

	case stepGender:
		if input == "" {
			f.mu.Unlock()
			return text(badGender), true
		}
		d.profile.Gender, d.next = input, stepIncome
		f.mu.Unlock()
		return text(askIncome), true

	case stepIncome:
		income, err := parseAmount(input)
		if err != nil {
			f.mu.Unlock()
			return text(badIncome), true
		}
		d.profile.MonthlyIncome, d.next = income, stepExpenses
		f.mu.Unlock()
		return text(askExpenses), true

	case stepExpenses:
		expenses, err := parseAmount(input)
		if err != nil {
			f.mu.Unlock()
			return text(badExpenses), true
		}
		d.profile.Expenses, d.next = expenses, stepGoal
		f.mu.Unlock()
		return text(askGoal), true

	default:
		if input == "" {
			f.mu.Unlock()
			return text(badGoal), true
		}
		d.profile.SavingsGoal = input
		profile := d.profile
		f.mu.Unlock()
		return f.generate(ctx, msg, profile), true
	}
}

// parseAmount accepts amounts such as 3500, 3,500.50 or S$3500.
func parseAmount(s string) (float64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ToUpper(s), "S"), "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid amount %v", v)
	}
	return v, nil
}

func (f *Flow) generate(ctx context.Context, msg dispatch.Message, profile Profile) []dispatch.Reply {
	if f.cfg.Safety != nil && (f.cfg.Safety.IsFlagged(profile.SavingsGoal) || f.cfg.Safety.IsFlagged(profile.Gender)) {
		f.drop(msg.UserID)
		return text(dispatch.InappropriateText)
	}

	sess, ok := f.cfg.Gate.Begin(msg.UserID, msg.Username)
	if !ok {
		// The draft stays at the goal step so the user can resend it.
		return []dispatch.Reply{{Text: dispatch.WaitNotice}, {Text: retryGoalText}}
	}
	defer f.cfg.Gate.EndProcessing(msg.UserID, sess.ID)
	f.drop(msg.UserID)

	logger := f.logger.With(slog.String("session_id", sess.ID), slog.String("username", msg.Username))
	if err := f.cfg.Sender.Send(ctx, msg.UserID, generatingText, nil); err != nil {
		logger.WarnContext(ctx, "Failed to send progress notice", slog.Any("error", err))
	}
	stopTyping := dispatch.KeepTyping(ctx, f.cfg.Sender, msg.UserID, f.cfg.TypingInterval, logger)
	defer stopTyping()

	answerCtx := ctx
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		answerCtx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	body, err := f.cfg.Answerer.Answer(answerCtx, profile.Prompt(), nil)
	if err != nil {
		logger.ErrorContext(ctx, "Report generation failed", slog.Any("error", err))
		return text(failedText)
	}

	logger.InfoContext(ctx, "Report generated", slog.Int("age", profile.Age))
	return text(fmt.Sprintf("%s\n\nMonthly income: S$%.2f\nMonthly expenses: S$%.2f\nMonthly surplus: S$%.2f\nSavings goal: %s\n\n%s",
		reportTitle, profile.MonthlyIncome, profile.Expenses, profile.Surplus(), profile.SavingsGoal, body))
}

func (f *Flow) drop(userID int64) {
	f.mu.Lock()
	delete(f.drafts, userID)
	f.mu.Unlock()
}
