package model

import "time"

// Report status values recorded per recipient.
const (
	StatusSent         = "Sent"
	StatusNotReachable = "Not reachable"
	StatusFailedPrefix = "Failed: "
)

// Simulation styles for composing a message.
const (
	StyleTyping = "typing"
	StylePasted = "pasted"
	StyleRandom = "random"
)

// Recipient is one row of a contact source. Number is the raw, pre-normalization value.
type Recipient struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// Template is a message template. Message may contain spintax and the {name} placeholder.
type Template struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Message     string    `json:"message" db:"message"`
	Attachments []string  `json:"filePaths" db:"attachments"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WarmUp ramps the daily quota over consecutive days.
type WarmUp struct {
	Enabled    bool `json:"enabled"`
	Start      int  `json:"start"`
	Increment  int  `json:"increment"`
	Days       int  `json:"days"`
	CurrentDay int  `json:"currentDay"`
}

// CampaignConfig holds the knobs fixed when a campaign starts.
type CampaignConfig struct {
	BatchSize       int           `json:"batchSize"`
	DailyLimit      int           `json:"dailyLimit"`
	MinDelay        time.Duration `json:"minDelay"`
	MaxDelay        time.Duration `json:"maxDelay"`
	MinTypingDelay  time.Duration `json:"minTypingDelay"`
	MaxTypingDelay  time.Duration `json:"maxTypingDelay"`
	MinAttachDelay  time.Duration `json:"minAttachDelay"`
	MaxAttachDelay  time.Duration `json:"maxAttachDelay"`
	SimulationStyle string        `json:"simulationStyle"`
	SimulateReading bool          `json:"simulateReading"`
	WarmUp          WarmUp        `json:"warmUp"`
}

// ReportRow is one delivery ledger entry.
type ReportRow struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Snapshot is the externally visible campaign state.
type Snapshot struct {
	IsRunning bool `json:"isRunning"`
	IsPaused  bool `json:"isPaused"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Total     int  `json:"total"`
	Current   int  `json:"current"`
}

// DailyStat is the sent count for one calendar date (YYYY-MM-DD).
type DailyStat struct {
	Date string `json:"date"`
	Sent int    `json:"sent"`
}

// Stats is the aggregate delivery counter.
type Stats struct {
	TotalSent      int         `json:"totalSent"`
	TotalCampaigns int         `json:"totalCampaigns"`
	Daily          []DailyStat `json:"daily"`
}

// Presence is the chat state shown to a recipient.
type Presence int

const (
	PresenceIdle Presence = iota
	PresenceTyping
)

// Conversation identifies an open chat on the channel.
type Conversation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Attachment is a resolved media file.
type Attachment struct {
	FileName string
	MimeType string
	Data     []byte
}
