package pagination

const (
	DefaultSize = 50
	MaxSize     = 200
)

// Pagination carries offset-style paging parameters through list
// requests. Zero or out-of-range values normalize to the first page at
// DefaultSize.
type Pagination struct {
	Page int `form:"page,default=1" json:"page"`
	Size int `form:"size,default=50" json:"size"`
}

// Normalized clamps the parameters into valid bounds.
func (p Pagination) Normalized() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 || p.Size > MaxSize {
		p.Size = DefaultSize
	}
	return p
}

// Offset translates the normalized page into a row offset.
func (p Pagination) Offset() int {
	n := p.Normalized()
	return (n.Page - 1) * n.Size
}

// Limit is the normalized page size.
func (p Pagination) Limit() int {
	return p.Normalized().Size
}
