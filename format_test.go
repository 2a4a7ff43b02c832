package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"VERSION", "STATE", "SOURCE"}
	rows := [][]string{
		{"1", "applied", "00001_init.sql"},
		{"12", "pending", "00012_chat_history_index.sql"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "VERSION  STATE    SOURCE"))
	assert.True(t, strings.HasPrefix(lines[1], "1        applied  00001_init.sql"))
	assert.True(t, strings.HasPrefix(lines[2], "12       pending  00012_chat_history_index.sql"))
}

func TestPrintTable_NoRows(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"FOLDER", "ID"}, nil)
	assert.Equal(t, "FOLDER  ID\n", buf.String())
}
