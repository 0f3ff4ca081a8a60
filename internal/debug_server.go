// Package internal hosts operator-facing debug tooling that is not part of
// the protocol surface: a read-only HTML view over the message store.
package internal

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const inspectPage = `<!DOCTYPE html>
<html>
<head>
<title>Message store inspector</title>
<style>
body { font-family: monospace; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 4px 12px; border-bottom: 1px solid #ddd; }
.stats { color: #555; margin-bottom: 1em; }
</style>
</head>
<body>
<h2>Message store inspector</h2>
<div class="stats">{{range $k, $v := .Stats}}{{$k}}={{$v}} {{end}}</div>
<form method="get">
  prefix: <input type="text" name="prefix" value="{{.Prefix}}">
  <input type="submit" value="scan">
</form>
<table>
<tr><th>Key</th><th>Room</th><th>Time</th><th>Sender</th><th>Content</th><th>Flags</th></tr>
{{range .Items}}
<tr><td>{{.Key}}</td><td>{{.Room}}</td><td>{{.Timestamp}}</td><td>{{.Sender}}</td><td>{{.Content}}</td><td>{{.Flags}}</td></tr>
{{end}}
</table>
</body>
</html>`

type InspectRow struct {
	Key       string
	Room      string
	Timestamp string
	Sender    string
	Content   string
	Flags     string
}

// StatsProvider supplies the live counters shown on the dashboard.
type StatsProvider func() map[string]any

type pageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes /inspect on its own port, separate from the
// protocol endpoint. It reads the store through View transactions only.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.New("inspect").Parse(inspectPage))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}
		data := pageData{Prefix: prefix, Stats: map[string]any{}}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				// Secondary index entries hold keys, not records.
				if strings.HasPrefix(string(item.Key()), "idx:") {
					continue
				}
				_ = item.Value(func(value []byte) error {
					data.Items = append(data.Items, mapRow(string(item.Key()), value))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		address := fmt.Sprintf("0.0.0.0:%d", port)
		log.Info("Debug inspector listening", "address", address)
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Warn("Debug inspector stopped", "error", err)
		}
	}()
}

// mapRow decodes one stored message for display. The CBOR tags mirror the
// repository's record layout; an undecodable value degrades to a size note
// instead of failing the page.
func mapRow(key string, value []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Timestamp: "--:--:--",
		Content:   "size: " + strconv.Itoa(len(value)) + " bytes",
	}

	// msg:{room}:{timestamp}:{uuid}
	parts := strings.SplitN(key, ":", 4)
	if len(parts) == 4 {
		row.Room = parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("15:04:05")
		}
	}

	var rec struct {
		SenderName string   `cbor:"sender_name"`
		Content    string   `cbor:"content"`
		ReceiverID string   `cbor:"receiver_id"`
		Kind       string   `cbor:"kind"`
		StarredBy  []string `cbor:"starred_by"`
		IsEdited   bool     `cbor:"is_edited"`
		IsDeleted  bool     `cbor:"is_deleted"`
	}
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return row
	}

	row.Sender = rec.SenderName
	row.Content = rec.Content
	var flags []string
	if rec.Kind != "" && rec.Kind != "text" {
		flags = append(flags, rec.Kind)
	}
	if rec.IsEdited {
		flags = append(flags, "edited")
	}
	if rec.IsDeleted {
		flags = append(flags, "deleted")
	}
	if len(rec.StarredBy) > 0 {
		flags = append(flags, fmt.Sprintf("stars:%d", len(rec.StarredBy)))
	}
	row.Flags = strings.Join(flags, ",")
	return row
}
