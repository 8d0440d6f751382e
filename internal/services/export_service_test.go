package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"parts-tracker/internal/entities"
	"parts-tracker/pkg/types"
)

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "X-1", entities.PartTypeCNC)
	f.create(t, "X-2", entities.PartTypeHand)
	p := f.create(t, "X-3", entities.PartTypeMisc)
	_, err := f.workflow.Approve(ctx, p.ID, "completed")
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := NewExportService(f.parts, zap.NewNop()).ExportXLSX(ctx, types.PartFilter{Category: "review", Limit: 1}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "paging is ignored, the category filter is not")

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	sheet, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, sheet, 3)
	assert.Equal(t, "Part ID", sheet[0][1])
	assert.Equal(t, "X-1", sheet[1][1])
	assert.Equal(t, "X-2", sheet[2][1])
	assert.Equal(t, "review", sheet[1][9])
}
