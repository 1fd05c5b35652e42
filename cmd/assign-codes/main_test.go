package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
)

func TestParseFormat(t *testing.T) {
	format, err := parseFormat(nil)
	require.NoError(t, err)
	require.Equal(t, formatText, format)

	format, err = parseFormat([]string{"-format", "json"})
	require.NoError(t, err)
	require.Equal(t, formatJSON, format)

	_, err = parseFormat([]string{"-format", "yaml"})
	require.ErrorContains(t, err, "unsupported format")
}

func TestPrintSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, formatText, customercode.BatchSummary{
		CodesAssigned: 2,
		StartingCode:  domain.Int64Ptr(1001),
		EndingCode:    domain.Int64Ptr(1002),
		Message:       "Assigned 2 customer codes (1001-1002)",
		Skipped:       []string{"acc-9"},
	}))
	require.Equal(t, "Assigned 2 customer codes (1001-1002)\nrange: 1001..1002\nskipped: acc-9\n", buf.String())
}

func TestPrintSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, formatJSON, customercode.BatchSummary{Message: "nothing to do"}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "nothing to do", decoded["message"])
	require.EqualValues(t, 0, decoded["codesAssigned"])
	require.NotContains(t, decoded, "startingCode")
}

func TestRun_MemoryStorageHasNothingToAssign(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageDriverMemory

	var buf bytes.Buffer
	summary, err := run(context.Background(), cfg, formatText, &buf)
	require.NoError(t, err)
	require.Zero(t, summary.CodesAssigned)
	require.Nil(t, summary.StartingCode)
	require.NotEmpty(t, buf.String())
}

func TestRun_UnsupportedDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"

	_, err := run(context.Background(), cfg, formatText, &bytes.Buffer{})
	require.Error(t, err)
}
