package store

import (
	"database/sql"
	"fmt"
)

// ReplaceCatalog swaps every catalog table for the rows in c inside one transaction.
func (s *SQLiteStore) ReplaceCatalog(c *Catalog) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin catalog import: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// children first so foreign keys never dangle
	for _, table := range []string{"insurance_products", "financial_products", "insurance_categories", "financial_categories", "banks", "agents"} {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, cat := range c.InsuranceCategories {
		if _, err = tx.Exec("INSERT INTO insurance_categories (id, category_name) VALUES (?, ?)", cat.ID, cat.Name); err != nil {
			return fmt.Errorf("failed to insert insurance category %d: %w", cat.ID, err)
		}
	}
	for _, p := range c.InsuranceProducts {
		if _, err = tx.Exec("INSERT INTO insurance_products (id, category_id, product_name, description) VALUES (?, ?, ?, ?)",
			p.ID, p.CategoryID, p.Name, p.Description); err != nil {
			return fmt.Errorf("failed to insert insurance product %d: %w", p.ID, err)
		}
	}
	for _, a := range c.Agents {
		if _, err = tx.Exec("INSERT INTO agents (id, first_name, last_name, bio, yoe, telegram, picture_url) VALUES (?, ?, ?, ?, ?, ?, ?)",
			a.ID, a.FirstName, a.LastName, a.Bio, a.YearsOfExperience, a.Telegram, a.PictureURL); err != nil {
			return fmt.Errorf("failed to insert agent %d: %w", a.ID, err)
		}
	}
	for _, cat := range c.FinancialCategories {
		if _, err = tx.Exec("INSERT INTO financial_categories (id, category_name) VALUES (?, ?)", cat.ID, cat.Name); err != nil {
			return fmt.Errorf("failed to insert financial category %d: %w", cat.ID, err)
		}
	}
	for _, b := range c.Banks {
		if _, err = tx.Exec("INSERT INTO banks (id, bank_name) VALUES (?, ?)", b.ID, b.Name); err != nil {
			return fmt.Errorf("failed to insert bank %d: %w", b.ID, err)
		}
	}
	for _, p := range c.FinancialProducts {
		if _, err = tx.Exec("INSERT INTO financial_products (id, category_id, bank_id, product_name, description) VALUES (?, ?, ?, ?, ?)",
			p.ID, p.CategoryID, p.BankID, p.Name, p.Description); err != nil {
			return fmt.Errorf("failed to insert financial product %d: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog import: %w", err)
	}
	return nil
}

// LoadCatalog reads every catalog table, ordered by id.
func (s *SQLiteStore) LoadCatalog() (*Catalog, error) {
	c := &Catalog{}

	if err := s.queryRows("SELECT id, category_name FROM insurance_categories ORDER BY id", func(rows *sql.Rows) error {
		var cat InsuranceCategory
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return err
		}
		c.InsuranceCategories = append(c.InsuranceCategories, cat)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load insurance categories: %w", err)
	}

	if err := s.queryRows("SELECT id, category_id, product_name, description FROM insurance_products ORDER BY id", func(rows *sql.Rows) error {
		var p InsuranceProduct
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description); err != nil {
			return err
		}
		c.InsuranceProducts = append(c.InsuranceProducts, p)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load insurance products: %w", err)
	}

	if err := s.queryRows("SELECT id, first_name, last_name, bio, yoe, telegram, picture_url FROM agents ORDER BY id", func(rows *sql.Rows) error {
		var a Agent
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Bio, &a.YearsOfExperience, &a.Telegram, &a.PictureURL); err != nil {
			return err
		}
		c.Agents = append(c.Agents, a)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}

	if err := s.queryRows("SELECT id, category_name FROM financial_categories ORDER BY id", func(rows *sql.Rows) error {
		var cat FinancialCategory
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return err
		}
		c.FinancialCategories = append(c.FinancialCategories, cat)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load financial categories: %w", err)
	}

	if err := s.queryRows("SELECT id, bank_name FROM banks ORDER BY id", func(rows *sql.Rows) error {
		var b Bank
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return err
		}
		c.Banks = append(c.Banks, b)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load banks: %w", err)
	}

	if err := s.queryRows("SELECT id, category_id, bank_id, product_name, description FROM financial_products ORDER BY id", func(rows *sql.Rows) error {
		var p FinancialProduct
		var bankID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.CategoryID, &bankID, &p.Name, &p.Description); err != nil {
			return err
		}
		if bankID.Valid {
			p.BankID = &bankID.Int64
		}
		c.FinancialProducts = append(c.FinancialProducts, p)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load financial products: %w", err)
	}

	return c, nil
}

func (s *SQLiteStore) queryRows(query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
