package integration

import (
	"fmt"
	"time"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().Unix()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// DeviceHeaders returns the request headers a browser would send for the
// given platform, used to drive device fingerprinting in login tests.
func DeviceHeaders(platform string) map[string]string {
	return map[string]string{
		"User-Agent":        "integration-test-agent/1.0",
		"Sec-CH-UA-Platform": platform,
		"X-Timezone":        "Europe/Dublin",
	}
}
