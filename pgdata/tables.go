package pgdata

// Table whitelists the columns a gateway call may touch.
type Table struct {
	Name string
	// Columns are the writable columns; id and timestamps are server-assigned.
	Columns []string
	// OwnerColumn, when set, restricts writes to rows owned by the actor.
	OwnerColumn string
	// OrderColumns may be used to sort query results.
	OrderColumns []string
	// Touch sets updated_at on every update.
	Touch bool
}

func (t Table) writable(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t Table) filterable(col string) bool {
	return col == "id" || t.writable(col)
}

func (t Table) orderable(col string) bool {
	for _, c := range t.OrderColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Tables returns the schema shipped in the migrations package.
func Tables() []Table {
	return []Table{
		{
			Name:         "community_posts",
			Columns:      []string{"user_email", "username", "content", "image_url"},
			OwnerColumn:  "user_email",
			OrderColumns: []string{"created_at", "updated_at"},
			Touch:        true,
		},
		{
			Name:         "community_comments",
			Columns:      []string{"post_id", "user_email", "username", "content"},
			OwnerColumn:  "user_email",
			OrderColumns: []string{"created_at"},
			Touch:        true,
		},
		{
			Name:         "drawings",
			Columns:      []string{"user_email", "title", "paths", "thumbnail"},
			OwnerColumn:  "user_email",
			OrderColumns: []string{"created_at", "updated_at"},
			Touch:        true,
		},
	}
}
