package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/prukaya/finbuddy/internal/session"
)

const helpText = `Here's what I can do:
/listallpolicies - browse insurance policies
/listallfinancialproducts - browse savings and investment products
/findfa - find a financial adviser
/listresources - government resources (CPF, IRAS and more)
/buyinsurance - shop for microinsurance
/learn - learning modules and quizzes
/playgame - test your product knowledge
/generate_report - a personalised financial report
/cancel - stop the report questionnaire
/reset - start a fresh conversation

Or just ask me a question about saving, investing or insurance in Singapore.`

func (d *Dispatcher) startCommand(_ context.Context, msg Message) []Reply {
	d.sessions.GetOrCreate(msg.UserID, msg.Username)
	greeting := fmt.Sprintf("Hi %s! I'm PRUKaya, your financial buddy. Ask me anything about saving, investing or insurance.", msg.Username)
	return []Reply{{Text: greeting}, {Text: helpText}}
}

func (d *Dispatcher) helpCommand(context.Context, Message) []Reply {
	return []Reply{{Text: helpText}}
}

func (d *Dispatcher) resetCommand(_ context.Context, msg Message) []Reply {
	if err := d.sessions.End(msg.UserID); errors.Is(err, session.ErrBusy) {
		return []Reply{{Text: WaitNotice}}
	}
	return []Reply{{Text: ResetText}}
}
