package issue

const prefix = "issue/"

// Key returns the record key for an issue.
// Format: issue/{id}
func Key(issueID string) []byte {
	return []byte(prefix + issueID)
}
