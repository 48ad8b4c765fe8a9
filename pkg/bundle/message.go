package bundle

import "fmt"

// ComposeMessage renders the notification text for a batch with count
// distinct friends, the first of whom is name. A count below one returns
// ErrInvalidBatchCount.
func ComposeMessage(count int, name string) (string, error) {
	switch {
	case count <= 0:
		return "", invalidBatchCount(count)
	case count == 1:
		return name + " went on a tour", nil
	case count == 2:
		return name + " and 1 other went on a tour", nil
	default:
		return fmt.Sprintf("%s and %d others went on a tour", name, count-1), nil
	}
}
