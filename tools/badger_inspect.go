// Command badger_inspect dumps the message store of a stopped (or crashed)
// server. It opens the database read-only, so it is safe to point at a
// production data directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:{room}: narrows to one room)")
	showDeleted := flag.Bool("deleted", false, "Include soft-deleted messages")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Time", "Sender", "Kind", "Content", "Flags"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Index entries hold primary keys, not records.
			if strings.HasPrefix(string(item.Key()), "idx:") {
				continue
			}

			err := item.Value(func(value []byte) error {
				var rec struct {
					ID         string   `cbor:"id"`
					SenderName string   `cbor:"sender_name"`
					Content    string   `cbor:"content"`
					Room       string   `cbor:"room"`
					ReceiverID string   `cbor:"receiver_id"`
					Kind       string   `cbor:"kind"`
					StarredBy  []string `cbor:"starred_by"`
					IsEdited   bool     `cbor:"is_edited"`
					IsDeleted  bool     `cbor:"is_deleted"`
					CreatedAt  int64    `cbor:"created_at"`
				}
				if err := cbor.Unmarshal(value, &rec); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if rec.IsDeleted && !*showDeleted {
					return nil
				}

				var flags []string
				if rec.IsEdited {
					flags = append(flags, "edited")
				}
				if rec.IsDeleted {
					flags = append(flags, "deleted")
				}
				if rec.ReceiverID != "" {
					flags = append(flags, "to:"+rec.ReceiverID)
				}
				if len(rec.StarredBy) > 0 {
					flags = append(flags, "stars:"+strconv.Itoa(len(rec.StarredBy)))
				}

				// Short key form for readability: keep the first 8 uuid chars.
				rawKey := string(item.Key())
				if idx := strings.LastIndex(rawKey, ":"); idx > 0 && len(rawKey) > idx+9 {
					rawKey = rawKey[:idx+9]
				}

				table.Append([]string{
					rawKey,
					rec.Room,
					time.Unix(0, rec.CreatedAt).UTC().Format("15:04:05"),
					rec.SenderName,
					rec.Kind,
					rec.Content,
					strings.Join(flags, ","),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty shutdown leaves the value log needing a truncate, which a
		// read-only open refuses. Open writable once, then reopen read-only.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
