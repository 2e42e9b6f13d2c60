package core

// DBOrdering expresses a result ordering on a repository query.
type DBOrdering struct {
	Field     string
	Ascending bool
}
