package components

// List tracks a cursor and scroll offset over a list whose items live
// elsewhere. Lists that are refreshed from the store keep their cursor
// where possible.
type List struct {
	Cursor   int
	Offset   int
	PageSize int
	n        int
}

// NewList creates a list with the given page size.
func NewList(pageSize int) *List {
	if pageSize < 1 {
		pageSize = 1
	}
	return &List{PageSize: pageSize}
}

// Len returns the number of items.
func (l *List) Len() int {
	return l.n
}

// SetLen sets the number of items, clamping the cursor and offset.
func (l *List) SetLen(n int) {
	if n < 0 {
		n = 0
	}
	l.n = n
	if l.Cursor >= n {
		l.Cursor = n - 1
	}
	if l.Cursor < 0 {
		l.Cursor = 0
	}
	if l.Offset > l.Cursor {
		l.Offset = l.Cursor
	}
	if l.Cursor >= l.Offset+l.PageSize {
		l.Offset = l.Cursor - l.PageSize + 1
	}
}

// Reset moves the cursor to the top.
func (l *List) Reset() {
	l.Cursor = 0
	l.Offset = 0
}

// Down moves the cursor down.
func (l *List) Down() {
	if l.Cursor < l.n-1 {
		l.Cursor++
		if l.Cursor >= l.Offset+l.PageSize {
			l.Offset++
		}
	}
}

// Up moves the cursor up.
func (l *List) Up() {
	if l.Cursor > 0 {
		l.Cursor--
		if l.Cursor < l.Offset {
			l.Offset--
		}
	}
}

// Window returns the half-open range of visible indexes.
func (l *List) Window() (start, end int) {
	end = l.Offset + l.PageSize
	if end > l.n {
		end = l.n
	}
	return l.Offset, end
}

// Selected returns the cursor index, or -1 when the list is empty.
func (l *List) Selected() int {
	if l.n == 0 {
		return -1
	}
	return l.Cursor
}
