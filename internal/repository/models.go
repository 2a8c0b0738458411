package repository

import (
	"time"
)

// UserState is the lifecycle state of a staff account
type UserState int

const (
	UserDeactivated UserState = 0
	UserActive      UserState = 1
	UserBlocked     UserState = 2
	UserDeleted     UserState = 3
)

func (s UserState) String() string {
	switch s {
	case UserDeactivated:
		return "deactivated"
	case UserActive:
		return "active"
	case UserBlocked:
		return "blocked"
	case UserDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the known states
func (s UserState) Valid() bool {
	return s >= UserDeactivated && s <= UserDeleted
}

// Block codes recorded on blocked accounts
const (
	BlockCodeAttemptsExceeded = 210
	BlockCodeAdministrative   = 220
)

// Menu ids granted to roles
const (
	MenuArticles = 1
	MenuAgencies = 2
	MenuLogs     = 3
	MenuUsers    = 4
)

// User represents a staff account in the database
type User struct {
	ID            int64      `db:"id"`
	Username      string     `db:"username"`
	Email         *string    `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	State         UserState  `db:"state"`
	LoginAttempts int        `db:"login_attempts"`
	BlockCode     *int       `db:"block_code"`
	BlockedDate   *time.Time `db:"blocked_date"`
	RoleID        int64      `db:"role_id"`
	ServiceID     *int64     `db:"service_id"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Session is one browser login
type Session struct {
	ID         int64      `db:"session_id"`
	UserID     int64      `db:"user_id"`
	IPAddress  string     `db:"ip_address"`
	IsActive   bool       `db:"is_active"`
	LoginDate  time.Time  `db:"login_date"`
	LogoutDate *time.Time `db:"logout_date"`
}

// Article is an agency dispatch ingested by the parsers
type Article struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Slug        string    `db:"slug" json:"slug"`
	FullText    string    `db:"full_text" json:"full_text,omitempty"`
	FileName    string    `db:"file_name" json:"file_name"`
	Label       *string   `db:"label" json:"label,omitempty"`
	CreatedDate time.Time `db:"created_date" json:"created_date"`
	AgencyID    int64     `db:"id_agency" json:"agency_id"`
	AgencyName  string    `db:"agency_name" json:"agency_name"`
}

// ArticleSummary is an article row as listed, with an excerpt instead of the body
type ArticleSummary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt"`
	Label       *string   `json:"label,omitempty"`
	CreatedDate time.Time `json:"created_date"`
	AgencyID    int64     `json:"agency_id"`
	AgencyName  string    `json:"agency_name"`
}

// ListArticleParams filters and paginates article listings
type ListArticleParams struct {
	Page     int
	Limit    int
	AgencyID *int64
	Search   string
}
