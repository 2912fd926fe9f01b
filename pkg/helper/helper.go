package helper

import "fmt"

// Plural formats a count with its unit, adding "s" when the count is not one.
func Plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
