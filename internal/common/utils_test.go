package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"gfs", "gefs", "ecmwf"}, SplitList("gfs, gefs", "ecmwf", "gfs", " , "))
	assert.Nil(t, SplitList())
	assert.Nil(t, SplitList("", " "))
}
