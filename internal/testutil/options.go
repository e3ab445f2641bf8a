package testutil

import (
	"strings"
	"time"
)

// issueData holds all data for an issue to be inserted.
type issueData struct {
	key       string
	project   string
	summary   string
	issueType string
	status    string
	priority  string
	assignee  *string
	parentKey *string
	epicKey   *string
	epicName  *string
	labels    []string
	createdAt time.Time
	updatedAt time.Time
}

// defaultIssue returns an issueData with sensible defaults.
func defaultIssue(key string) issueData {
	now := time.Now()
	project, _, _ := strings.Cut(key, "-")
	return issueData{
		key:       key,
		project:   project,
		summary:   key, // Default summary is the key
		issueType: "task",
		status:    "open",
		priority:  "medium",
		createdAt: now,
		updatedAt: now,
	}
}

// IssueOption configures an issue during builder setup.
type IssueOption func(*issueData)

// Project overrides the project derived from the key prefix.
func Project(p string) IssueOption {
	return func(i *issueData) { i.project = p }
}

// Summary sets the issue summary.
func Summary(s string) IssueOption {
	return func(i *issueData) { i.summary = s }
}

// Status sets the issue status.
func Status(status string) IssueOption {
	return func(i *issueData) { i.status = status }
}

// Priority sets the issue priority (lowest, low, medium, high, highest).
func Priority(p string) IssueOption {
	return func(i *issueData) { i.priority = p }
}

// IssueType sets the issue type (epic, story, task, subtask, bug).
func IssueType(t string) IssueOption {
	return func(i *issueData) { i.issueType = t }
}

// Assignee sets the issue assignee.
func Assignee(a string) IssueOption {
	return func(i *issueData) { i.assignee = &a }
}

// Parent sets the direct parent key.
func Parent(key string) IssueOption {
	return func(i *issueData) { i.parentKey = &key }
}

// Epic sets the epic link.
func Epic(key string) IssueOption {
	return func(i *issueData) { i.epicKey = &key }
}

// EpicName marks the issue as an epic with the given name.
func EpicName(name string) IssueOption {
	return func(i *issueData) {
		i.epicName = &name
		i.issueType = "epic"
	}
}

// Labels adds labels to the issue (nested option).
func Labels(labels ...string) IssueOption {
	return func(i *issueData) { i.labels = append(i.labels, labels...) }
}

// CreatedAt sets the created_at timestamp.
func CreatedAt(t time.Time) IssueOption {
	return func(i *issueData) { i.createdAt = t }
}

// UpdatedAt sets the updated_at timestamp.
func UpdatedAt(t time.Time) IssueOption {
	return func(i *issueData) { i.updatedAt = t }
}
