package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// triggerPrefix namespaces reminder triggers in the shared trigger store.
const triggerPrefix = "reminder:"

// TriggerName derives the deterministic trigger name for a task. One task can
// have at most one live reminder trigger, so the name is re-derivable from the
// task id alone and re-arming replaces rather than duplicates.
func TriggerName(taskID string) string {
	return triggerPrefix + taskID
}

// Handle encodes a trigger handle: the stable name plus the fire instant that
// identifies this particular arm. The fire instant lets disarm be
// compare-and-delete, so a stale handle cannot remove a newer trigger.
func Handle(taskID string, fireAt time.Time) string {
	return TriggerName(taskID) + "@" + strconv.FormatInt(fireAt.UnixMilli(), 10)
}

// parseHandle splits a handle back into its trigger name.
func parseHandle(handle string) (name string, err error) {
	h := strings.TrimSpace(handle)
	if !strings.HasPrefix(h, triggerPrefix) {
		return "", fmt.Errorf("malformed trigger handle %q", handle)
	}
	i := strings.LastIndex(h, "@")
	if i <= len(triggerPrefix) {
		return "", fmt.Errorf("malformed trigger handle %q", handle)
	}
	if _, err := strconv.ParseInt(h[i+1:], 10, 64); err != nil {
		return "", fmt.Errorf("malformed trigger handle %q", handle)
	}
	return h[:i], nil
}

// FirePayload is the self-contained dispatch input stored on the trigger at
// arm time. It carries everything delivery needs so the dispatcher never
// queries back into the task store.
type FirePayload struct {
	TaskID         string `json:"taskId"`
	Title          string `json:"title"`
	DueDate        string `json:"dueDate"`
	DueTime        string `json:"dueTime"`
	EmailChannel   bool   `json:"emailChannel"`
	SMSChannel     bool   `json:"smsChannel"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	TriggerHandle  string `json:"triggerHandle"`
}
