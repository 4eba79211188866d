package pagination_test

import (
	"testing"

	"github.com/smallbiznis/settleway/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
)

func TestNormalized(t *testing.T) {
	p := pagination.Pagination{}.Normalized()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, pagination.DefaultSize, p.Size)

	p = pagination.Pagination{Page: -3, Size: 10000}.Normalized()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, pagination.DefaultSize, p.Size)

	p = pagination.Pagination{Page: 4, Size: 25}.Normalized()
	assert.Equal(t, 4, p.Page)
	assert.Equal(t, 25, p.Size)
}

func TestOffsetAndLimit(t *testing.T) {
	p := pagination.Pagination{Page: 3, Size: 20}
	assert.Equal(t, 40, p.Offset())
	assert.Equal(t, 20, p.Limit())

	assert.Equal(t, 0, pagination.Pagination{}.Offset())
	assert.Equal(t, pagination.DefaultSize, pagination.Pagination{}.Limit())
}
