package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionParams_ConnString(t *testing.T) {
	p := ConnectionParams{
		Host:     "localhost",
		Port:     5432,
		User:     "codeqa",
		Password: "secret",
		DBName:   "codeqa",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=codeqa password=secret dbname=codeqa sslmode=disable", p.ConnString())
}
