package testutil

import "time"

// WithStandardTestData adds a flat dataset covering every queryable field.
func (b *Builder) WithStandardTestData() *Builder {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	return b.
		WithIssue("CORE-1",
			Summary("Fix login bug"), Status("open"), Priority("highest"), IssueType("bug"),
			Assignee("alice"), Labels("urgent", "auth"), CreatedAt(lastWeek), UpdatedAt(now)).
		WithIssue("CORE-2",
			Summary("Add search"), Status("open"), Priority("high"), IssueType("story"),
			CreatedAt(yesterday), UpdatedAt(yesterday)).
		WithIssue("CORE-3",
			Summary("Refactor auth"), Status("in progress"), Priority("medium"), IssueType("task"),
			Assignee("bob"), Labels("auth"), CreatedAt(lastWeek), UpdatedAt(yesterday)).
		WithIssue("CORE-4",
			Summary("Update docs"), Status("done"), Priority("low"), IssueType("task"),
			CreatedAt(lastWeek), UpdatedAt(lastWeek)).
		WithIssue("OPS-1",
			Summary("Rotate certificates"), Status("open"), Priority("highest"), IssueType("bug"),
			Assignee("alice"), Labels("urgent", "security"), CreatedAt(now), UpdatedAt(now))
}

// WithHierarchyTestData adds the parent, epic and subtask shapes the tree
// engine assembles.
//
// Structure:
//
//	CORE-10 (epic "Checkout")
//	  ├── CORE-11 (story, epic link)
//	  │     └── CORE-12 (subtask)
//	  └── CORE-13 (story, epic link)
//	CORE-20 (story)
//	  └── CORE-21 (subtask, epic link CORE-10; parent wins)
//	CORE-30 (standalone)
func (b *Builder) WithHierarchyTestData() *Builder {
	return b.
		WithIssue("CORE-10", Summary("Checkout"), EpicName("Checkout")).
		WithIssue("CORE-11", Summary("Cart page"), IssueType("story"), Epic("CORE-10")).
		WithIssue("CORE-12", Summary("Cart totals"), IssueType("subtask"), Parent("CORE-11")).
		WithIssue("CORE-13", Summary("Payment page"), IssueType("story"), Epic("CORE-10")).
		WithIssue("CORE-20", Summary("Receipts"), IssueType("story")).
		WithIssue("CORE-21", Summary("Receipt email"), IssueType("subtask"),
			Parent("CORE-20"), Epic("CORE-10")).
		WithIssue("CORE-30", Summary("Standalone"), IssueType("task"))
}
