package backend

import "strings"

// Available returns a comma-separated list of devices this build supports.
func Available() string {
	entries := []string{CPU}
	if Has(CUDA) {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}
