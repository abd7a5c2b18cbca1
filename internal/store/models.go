package store

import "time"

// User is a Telegram chat that has talked to the bot at least once.
type User struct {
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type DataChunk struct {
	ID            int64     `json:"id"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"` // Don't marshal to JSON response, internal
	EmbeddingJSON string    `json:"-"` // Store as JSON string for DB
}

type InsuranceCategory struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"category_name" yaml:"name"`
}

type InsuranceProduct struct {
	ID          int64  `json:"id" yaml:"id"`
	CategoryID  int64  `json:"category_id" yaml:"category_id"`
	Name        string `json:"product_name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Agent is a financial adviser users can contact.
type Agent struct {
	ID                int64  `json:"id" yaml:"id"`
	FirstName         string `json:"first_name" yaml:"first_name"`
	LastName          string `json:"last_name" yaml:"last_name"`
	Bio               string `json:"bio" yaml:"bio"`
	YearsOfExperience int    `json:"yoe" yaml:"yoe"`
	Telegram          string `json:"telegram" yaml:"telegram"`
	PictureURL        string `json:"picture_url" yaml:"picture_url"`
}

type FinancialCategory struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"category_name" yaml:"name"`
}

type Bank struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"bank_name" yaml:"name"`
}

// FinancialProduct is a savings or investment product. BankID is nil for
// government-backed products.
type FinancialProduct struct {
	ID          int64  `json:"id" yaml:"id"`
	CategoryID  int64  `json:"category_id" yaml:"category_id"`
	BankID      *int64 `json:"bank_id" yaml:"bank_id"`
	Name        string `json:"product_name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is every browsable product row.
type Catalog struct {
	InsuranceCategories []InsuranceCategory `yaml:"insurance_categories"`
	InsuranceProducts   []InsuranceProduct  `yaml:"insurance_products"`
	Agents              []Agent             `yaml:"agents"`
	FinancialCategories []FinancialCategory `yaml:"financial_categories"`
	Banks               []Bank              `yaml:"banks"`
	FinancialProducts   []FinancialProduct  `yaml:"financial_products"`
}
