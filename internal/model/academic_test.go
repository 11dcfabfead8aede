package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcademic(t *testing.T) {
	cases := []struct {
		name     string
		program  string
		branch   string
		semester int
		ok       bool
	}{
		{"btech cse", "B.Tech", "CSE", 8, true},
		{"mtech past range", "M.Tech", "CSE", 5, false},
		{"zero semester", "MBA", "General", 0, false},
		{"branch of other program", "MBA", "CSE", 1, false},
		{"unknown program", "PhD", "CSE", 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAcademic(tc.program, tc.branch, tc.semester)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFileKindForMIME(t *testing.T) {
	kind, ok := FileKindForMIME("application/pdf")
	assert.True(t, ok)
	assert.Equal(t, FileKindPDF, kind)

	kind, ok = FileKindForMIME("image/jpeg")
	assert.True(t, ok)
	assert.Equal(t, FileKindImage, kind)

	_, ok = FileKindForMIME("text/plain")
	assert.False(t, ok)
}
