package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique credentials using a timestamp suffix.
func TestAccount(suffix string) (username, email, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("user-%d-%s", ts, suffix)
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "Warehouse2024pass"
	return
}
