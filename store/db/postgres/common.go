package postgres

import (
	"fmt"
	"strings"
)

// placeholder returns the nth positional parameter.
func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

// placeholders returns n placeholders starting at $1.
func placeholders(n int) string {
	return placeholdersFrom(1, n)
}

// placeholdersFrom returns n placeholders starting at $start.
func placeholdersFrom(start, n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(start+i))
	}
	return strings.Join(list, ", ")
}
