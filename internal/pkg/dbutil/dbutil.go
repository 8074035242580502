package dbutil

import (
	"regexp"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize rewrites a gendry built query for postgres: MySQL style
// "LIMIT ?,?" becomes "LIMIT ? OFFSET ?" and placeholders become $n.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// The Build helpers run the gendry builders and
// Finalize in one step.
func BuildSelect(table string, where map[string]interface{}, fields []string) (string, []interface{}, error) {
	return finalizeBuilt(builder.BuildSelect(table, where, fields))
}

func BuildInsert(table string, rows []map[string]interface{}) (string, []interface{}, error) {
	return finalizeBuilt(builder.BuildInsert(table, rows))
}

func BuildUpdate(table string, where map[string]interface{}, update map[string]interface{}) (string, []interface{}, error) {
	return finalizeBuilt(builder.BuildUpdate(table, where, update))
}

func BuildDelete(table string, where map[string]interface{}) (string, []interface{}, error) {
	return finalizeBuilt(builder.BuildDelete(table, where))
}

func finalizeBuilt(query string, args []interface{}, err error) (string, []interface{}, error) {
	if err != nil {
		return "", nil, err
	}
	query, args = Finalize(query, args)
	return query, args, nil
}
