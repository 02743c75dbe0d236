package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(rows int) Dataset {
	data := Dataset{Headers: []string{"student", "subject", "reason"}}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{
			"student": fmt.Sprintf("stu-%d", i),
			"subject": "Math",
			"reason":  "NO_SUBMISSION",
		})
	}
	return data
}

func TestCSVRender(t *testing.T) {
	data := sampleDataset(1)
	data.Rows = append(data.Rows, map[string]string{"student": "stu-x"})

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)

	assert.Equal(t, "student,subject,reason\nstu-0,Math,NO_SUBMISSION\nstu-x,,\n", string(out))
}

func TestCSVRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFRenderPaginates(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(120), "Incomplete lessons", "2025-01-06 to 2025-01-11")
	require.NoError(t, err)

	small, err := NewPDFExporter().Render(sampleDataset(1), "Incomplete lessons", "")
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Greater(t, len(out), len(small))
}

func TestFormatContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
}
