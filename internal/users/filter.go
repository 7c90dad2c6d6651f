package users

import (
	"iter"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Filter yields the users whose name contains query, ignoring case. An empty query
// yields every user. Nothing is computed until the sequence is ranged over, and each
// range starts again from the first user.
func Filter(users []User, query string) iter.Seq[User] {
	needle := lower(query)
	return func(yield func(User) bool) {
		for _, u := range users {
			if needle != "" && !strings.Contains(lower(u.Name), needle) {
				continue
			}
			if !yield(u) {
				return
			}
		}
	}
}

// Collect materialises a filtered sequence. The result is never nil.
func Collect(seq iter.Seq[User]) []User {
	out := slices.Collect(seq)
	if out == nil {
		out = []User{}
	}
	return out
}

// lower folds s with Unicode-aware, language-neutral lower-casing. cases.Caser is not
// safe for concurrent use, so a fresh one is built per call.
func lower(s string) string {
	if s == "" {
		return s
	}
	return cases.Lower(language.Und).String(s)
}
