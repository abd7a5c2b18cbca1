// Package catalog serves the insurance, financial product, adviser and
// government resource menus.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prukaya/finbuddy/internal/dispatch"
	"github.com/prukaya/finbuddy/internal/session"
	"github.com/prukaya/finbuddy/internal/store"
)

const (
	notFoundText = "Sorry, that item is no longer available."
	emptyText    = "Nothing to show here yet."
)

// SessionOpener opens or refreshes the caller's session.
type SessionOpener interface {
	GetOrCreate(userID int64, username string) session.Session
}

// Menus answers catalog commands and button presses from a snapshot.
type Menus struct {
	catalog   *store.Catalog
	resources []ResourceCategory
	webAppURL string
	sessions  SessionOpener
	logger    *slog.Logger
}

func NewMenus(c *store.Catalog, resources []ResourceCategory, webAppURL string, sessions SessionOpener) *Menus {
	if c == nil {
		c = &store.Catalog{}
	}
	return &Menus{
		catalog:   c,
		resources: resources,
		webAppURL: webAppURL,
		sessions:  sessions,
		logger:    slog.Default().With(slog.String("component", "catalog")),
	}
}

// Register installs every catalog command and callback on d.
func (m *Menus) Register(d *dispatch.Dispatcher) {
	d.HandleCommand("listallpolicies", m.insuranceCategories)
	d.HandleCommand("findfa", m.agents)
	d.HandleCommand("listallfinancialproducts", m.financialCategories)
	d.HandleCommand("listresources", m.resourceCategories)
	d.HandleCommand("buyinsurance", m.buyInsurance)

	d.HandleCallback("category_", m.insuranceProducts)
	d.HandleCallback("product_", m.insuranceProduct)
	d.HandleCallback("back_to_categories", m.insuranceCategories)
	d.HandleCallback("agent_", m.agent)

	d.HandleCallback("financial_category_", m.financialCategory)
	d.HandleCallback("financial_bank_", m.financialProducts)
	d.HandleCallback("financial_product_", m.financialProduct)
	d.HandleCallback("financial_back_to_categories", m.financialCategories)
	d.HandleCallback("financial_back_to_banks_", m.backToBanks)

	d.HandleCallback("cat_", m.resourceLinks)
	d.HandleCallback("link_", m.resourceLink)
	d.HandleCallback("back_to_cats", m.resourceCategories)
}

func menu(text string, rows [][]dispatch.Button) []dispatch.Reply {
	return []dispatch.Reply{{Text: text, Buttons: rows}}
}

func text(s string) []dispatch.Reply {
	return []dispatch.Reply{{Text: s}}
}

func row(label, data string) []dispatch.Button {
	return []dispatch.Button{{Text: label, Data: data}}
}

// callbackIDs parses the underscore-separated ids after prefix.
func callbackIDs(data, prefix string, n int) ([]int64, bool) {
	parts := strings.Split(strings.TrimPrefix(data, prefix), "_")
	if len(parts) != n {
		return nil, false
	}
	ids := make([]int64, n)
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func (m *Menus) badCallback(msg dispatch.Message) []dispatch.Reply {
	m.logger.Warn("Malformed callback data", slog.String("data", msg.CallbackData))
	return text(notFoundText)
}

// Insurance

func (m *Menus) insuranceCategories(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, c := range m.catalog.InsuranceCategories {
		rows = append(rows, row(c.Name, fmt.Sprintf("category_%d", c.ID)))
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return menu("Select a category:", rows)
}

func (m *Menus) insuranceProducts(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "category_", 1)
	if !ok {
		return m.badCallback(msg)
	}

	var rows [][]dispatch.Button
	for _, p := range m.catalog.InsuranceProducts {
		if p.CategoryID == ids[0] {
			rows = append(rows, row(p.Name, fmt.Sprintf("product_%d", p.ID)))
		}
	}
	rows = append(rows, row("Back to categories", "back_to_categories"))
	return menu("Select a product in the category:", rows)
}

func (m *Menus) insuranceProduct(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "product_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	for _, p := range m.catalog.InsuranceProducts {
		if p.ID == ids[0] {
			return text(fmt.Sprintf("Product: %s\n\nSummary:\n%s", p.Name, summary(p.Description)))
		}
	}
	return text(notFoundText)
}

// Advisers

func (m *Menus) agents(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, a := range m.catalog.Agents {
		rows = append(rows, row(a.FirstName+" "+a.LastName, fmt.Sprintf("agent_%d", a.ID)))
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return menu("Select an agent:", rows)
}

func (m *Menus) agent(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "agent_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	for _, a := range m.catalog.Agents {
		if a.ID != ids[0] {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Name: %s %s\nBio: %s\nYears of Experience: %d", a.FirstName, a.LastName, a.Bio, a.YearsOfExperience)
		if a.PictureURL != "" {
			fmt.Fprintf(&b, "\n%s", a.PictureURL)
		}

		var rows [][]dispatch.Button
		if a.Telegram != "" {
			rows = append(rows, []dispatch.Button{{
				Text: "Contact " + a.FirstName + " on Telegram",
				URL:  "https://t.me/" + strings.TrimPrefix(a.Telegram, "@"),
			}})
		}
		return menu(b.String(), rows)
	}
	return text("Agent not found.")
}

// Financial products

func (m *Menus) financialCategories(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, c := range m.catalog.FinancialCategories {
		rows = append(rows, row(c.Name, fmt.Sprintf("financial_category_%d", c.ID)))
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return menu("Select a financial product category:", rows)
}

// GovernmentBacked reports whether no product in the category has a bank.
func GovernmentBacked(c *store.Catalog, categoryID int64) bool {
	for _, p := range c.FinancialProducts {
		if p.CategoryID == categoryID && p.BankID != nil {
			return false
		}
	}
	return true
}

func (m *Menus) financialCategory(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "financial_category_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	categoryID := ids[0]

	if !GovernmentBacked(m.catalog, categoryID) {
		return m.banks(categoryID)
	}

	var rows [][]dispatch.Button
	for _, p := range m.catalog.FinancialProducts {
		if p.CategoryID == categoryID && p.BankID == nil {
			rows = append(rows, row(p.Name, fmt.Sprintf("financial_product_%d", p.ID)))
		}
	}
	rows = append(rows, row("Back to Categories", "financial_back_to_categories"))
	return menu("Select a government-backed product:", rows)
}

func (m *Menus) banks(categoryID int64) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, b := range m.catalog.Banks {
		rows = append(rows, row(b.Name, fmt.Sprintf("financial_bank_%d_%d", categoryID, b.ID)))
	}
	rows = append(rows, row("Back to Categories", "financial_back_to_categories"))
	return menu("Select a bank for this category:", rows)
}

func (m *Menus) backToBanks(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "financial_back_to_banks_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	return m.banks(ids[0])
}

func (m *Menus) financialProducts(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "financial_bank_", 2)
	if !ok {
		return m.badCallback(msg)
	}
	categoryID, bankID := ids[0], ids[1]

	var rows [][]dispatch.Button
	for _, p := range m.catalog.FinancialProducts {
		if p.CategoryID == categoryID && p.BankID != nil && *p.BankID == bankID {
			rows = append(rows, row(p.Name, fmt.Sprintf("financial_product_%d", p.ID)))
		}
	}
	rows = append(rows,
		row("Back to Banks", fmt.Sprintf("financial_back_to_banks_%d", categoryID)),
		row("Back to Categories", "financial_back_to_categories"),
	)
	return menu("Select a financial product for this bank:", rows)
}

func (m *Menus) financialProduct(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "financial_product_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	for _, p := range m.catalog.FinancialProducts {
		if p.ID == ids[0] {
			return text(fmt.Sprintf("Financial Product: %s\n\nSummary:\n%s", p.Name, summary(p.Description)))
		}
	}
	return text(notFoundText)
}

func summary(description string) string {
	if strings.TrimSpace(description) == "" {
		return "No summary available."
	}
	return description
}

// Government resources

func (m *Menus) resourceCategories(context.Context, dispatch.Message) []dispatch.Reply {
	var rows [][]dispatch.Button
	for _, c := range m.resources {
		rows = append(rows, row(c.Name, fmt.Sprintf("cat_%d", c.ID)))
	}
	if len(rows) == 0 {
		return text(emptyText)
	}
	return menu("Select a resource category:", rows)
}

func (m *Menus) resourceLinks(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "cat_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	for _, c := range m.resources {
		if c.ID != ids[0] {
			continue
		}
		var rows [][]dispatch.Button
		for _, l := range c.Links {
			rows = append(rows, row(l.Name, fmt.Sprintf("link_%d", l.ID)))
		}
		rows = append(rows, row("Back to categories", "back_to_cats"))
		return menu("Select a link for the resource:", rows)
	}
	return text("Category not found.")
}

func (m *Menus) resourceLink(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	ids, ok := callbackIDs(msg.CallbackData, "link_", 1)
	if !ok {
		return m.badCallback(msg)
	}
	for _, c := range m.resources {
		for _, l := range c.Links {
			if l.ID != ids[0] {
				continue
			}
			body := fmt.Sprintf("%s\n\n%s", l.Name, l.Description)
			if l.URL == "" {
				return text(body)
			}
			return menu(body, [][]dispatch.Button{{{Text: "Visit " + l.Name, URL: l.URL}}})
		}
	}
	return text("Link not found.")
}

// Shop

func (m *Menus) buyInsurance(_ context.Context, msg dispatch.Message) []dispatch.Reply {
	if m.sessions != nil {
		sess := m.sessions.GetOrCreate(msg.UserID, msg.Username)
		m.logger.Info("Shop opened", slog.String("session_id", sess.ID), slog.String("username", msg.Username))
	}
	return menu("Click the button below to start shopping for microinsurance.",
		[][]dispatch.Button{{{Text: "Shop for Microinsurance", URL: m.webAppURL}}})
}
