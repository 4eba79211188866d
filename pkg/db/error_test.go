package db_test

import (
	"errors"
	"testing"

	"github.com/smallbiznis/settleway/pkg/db"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, db.IsDuplicateKeyErr(nil))
	assert.False(t, db.IsDuplicateKeyErr(errors.New("connection refused")))

	assert.True(t, db.IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, db.IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "ux_order_settlements_order" (SQLSTATE 23505)`)))
	assert.True(t, db.IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry 'spice-garden' for key 'slug'")))
	assert.True(t, db.IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: restaurants.slug")))
}
