package state

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/palma21/referral-drip-bot/internal/models"
)

// CSVHeader lists the export columns in order
var CSVHeader = []string{"ts", "level", "event", "sub", "title", "url", "comment_id", "error", "seconds", "user", "count"}

const csvTimeFormat = "2006-01-02 15:04:05"

// WriteCSV renders entries as delimited rows; missing fields are empty
func WriteCSV(w io.Writer, entries []models.LogEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{
			e.Timestamp.Format(csvTimeFormat),
			string(e.Level),
			string(e.Event),
			e.Community,
			e.Title,
			e.URL,
			e.ID,
			e.Error,
			optionalInt(e.Seconds),
			e.User,
			optionalInt(e.Count),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
