package common

import "regexp"

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// IsIdentifier reports whether s is safe to interpolate into SQL as a bare
// table or column name. Only lower case is accepted: Postgres folds unquoted
// names to lower case while gorm quotes them, so anything else would resolve
// to two different tables.
func IsIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
