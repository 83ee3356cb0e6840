package domain

import (
	"strings"
	"time"
)

// Contact is one spreadsheet row. An empty field means the cell was missing.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

// Complete reports whether every required field carries a value.
func (c Contact) Complete() bool {
	return strings.TrimSpace(c.Name) != "" &&
		strings.TrimSpace(c.Phone) != "" &&
		strings.TrimSpace(c.Company) != ""
}

// Greeting is the time-of-day salutation that opens every message.
type Greeting string

const (
	GreetingMorning   Greeting = "Bom dia"
	GreetingAfternoon Greeting = "Boa tarde"
	GreetingEvening   Greeting = "Boa noite"
)

// Gender selects the gendered forms used in the sender's self-introduction.
type Gender string

const (
	GenderFeminine  Gender = "F"
	GenderMasculine Gender = "M"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderFeminine, GenderMasculine:
		return true
	}
	return false
}

// RenderContext is shared by every contact of one run.
type RenderContext struct {
	Greeting   Greeting
	SenderName string
	Gender     Gender
}

// PreparedMessage is the rendered text for one eligible contact.
type PreparedMessage struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// RunStatus tracks the lifecycle of a send run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunPreparing RunStatus = "preparing"
	RunSending   RunStatus = "sending"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunCancelled, RunFailed:
		return true
	}
	return false
}

// RunState is mutated only by the pipeline while it processes contacts.
type RunState struct {
	Total     int  `json:"total"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// Outcome is the terminal summary of a run.
type Outcome struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Progress is emitted after every step of a run, in order.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

// Fraction returns the completed share of the run in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

// Run is the record a foreground surface keeps about one send run.
type Run struct {
	ID          string     `json:"id"`
	SenderName  string     `json:"sender_name"`
	Gender      Gender     `json:"gender"`
	Status      RunStatus  `json:"status"`
	Total       int        `json:"total"`
	Current     int        `json:"current"`
	Sent        int        `json:"sent"`
	Failed      int        `json:"failed"`
	LastMessage string     `json:"last_message"`
	LastOK      bool       `json:"last_ok"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Progress returns the last progress line recorded on the run.
func (r *Run) Progress() Progress {
	return Progress{Current: r.Current, Total: r.Total, Message: r.LastMessage, OK: r.LastOK}
}
