// Package export writes journal records for use in spreadsheets and
// other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/journal"
)

// WriteJSON writes one JSON document per line.
func WriteJSON(w io.Writer, recs []journal.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes status samples as columns and keeps other kinds as raw
// JSON payloads.
func WriteCSV(w io.Writer, recs []journal.Record) error {
	cw := csv.NewWriter(w)
	header := []string{"timestamp", "session_id", "kind", "solar_kw", "load_kw", "grid_kw", "buffer_kw", "charging_state", "battery_level", "amps", "payload"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{r.Timestamp.Format(time.RFC3339), r.SessionID, r.Kind, "", "", "", "", "", "", "", ""}
		var p journal.StatusPayload
		if r.Kind == journal.KindStatus && r.Decode(&p) == nil {
			row[3] = fmt.Sprintf("%.3f", p.SolarKW)
			row[4] = fmt.Sprintf("%.3f", p.LoadKW)
			row[5] = fmt.Sprintf("%.3f", p.GridKW)
			row[6] = fmt.Sprintf("%.3f", p.BufferKW)
			row[7] = p.State
			row[8] = fmt.Sprint(p.BatteryLevel)
			row[9] = fmt.Sprint(p.Amps)
		} else {
			row[10] = string(r.Payload)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write picks the format from the file extension of name: .csv or
// .json/.jsonl.
func Write(w io.Writer, name string, recs []journal.Record) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return WriteCSV(w, recs)
	case ".json", ".jsonl":
		return WriteJSON(w, recs)
	}
	return fmt.Errorf("unsupported export format %s", name)
}
