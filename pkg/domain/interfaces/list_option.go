package interfaces

// SortDirection orders list results
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ListOption is a functional option for paginated list queries
type ListOption func(*listConfig)

type listConfig struct {
	limit     int
	cursor    string
	sortKey   string
	direction SortDirection
	search    string
}

// WithLimit caps the number of entries per page
func WithLimit(limit int) ListOption {
	return func(c *listConfig) {
		c.limit = limit
	}
}

// WithCursor resumes listing from an opaque pagination cursor
func WithCursor(cursor string) ListOption {
	return func(c *listConfig) {
		c.cursor = cursor
	}
}

// WithSort orders results by the given key and direction
func WithSort(key string, direction SortDirection) ListOption {
	return func(c *listConfig) {
		c.sortKey = key
		c.direction = direction
	}
}

// WithSearch filters results by a case-insensitive substring match
func WithSearch(query string) ListOption {
	return func(c *listConfig) {
		c.search = query
	}
}

// BuildListConfig builds a listConfig from options
func BuildListConfig(opts ...ListOption) *listConfig {
	cfg := &listConfig{
		limit:     20,
		direction: SortDesc,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Limit returns the page size
func (c *listConfig) Limit() int { return c.limit }

// Cursor returns the pagination cursor, empty for the first page
func (c *listConfig) Cursor() string { return c.cursor }

// SortKey returns the sort key, empty for the backend default
func (c *listConfig) SortKey() string { return c.sortKey }

// Direction returns the sort direction
func (c *listConfig) Direction() SortDirection { return c.direction }

// Search returns the search query, empty when unfiltered
func (c *listConfig) Search() string { return c.search }
