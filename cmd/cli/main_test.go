package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/bapaynter/commtrack/internal/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func TestWriteListAlignsColouredColumns(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	records := []models.Commission{
		{ID: "a", Title: "Fox", ClientName: "Sam", Status: models.StatusStarted, PaymentStatus: models.PaymentDeposit, Price: 45},
		{ID: "bb", Title: "Long dragon piece", ClientName: "Robin", Status: models.StatusRequested, PaymentStatus: models.PaymentUnpaid, Price: 120.5},
		{ID: "c", Title: "Badge", ClientName: "Al", Status: models.StatusFinished, PaymentStatus: models.PaymentPaid, Price: 9},
	}

	var buf bytes.Buffer
	require.NoError(t, writeList(&buf, records))
	assert.Contains(t, buf.String(), "\x1b[", "labels are coloured")

	lines := strings.Split(strings.TrimRight(ansi.ReplaceAllString(buf.String(), ""), "\n"), "\n")
	require.Len(t, lines, 4)

	statusCol := strings.Index(lines[0], "STATUS")
	paymentCol := strings.Index(lines[0], "PAYMENT")
	for i, want := range []string{"In Progress", "Requested", "Completed"} {
		assert.Equal(t, statusCol, strings.Index(lines[i+1], want), lines[i+1])
	}
	for i, want := range []string{"Deposit", "Unpaid", "Paid"} {
		assert.Equal(t, paymentCol, strings.LastIndex(lines[i+1], want), lines[i+1])
	}
}
