// Viewer dumps the relay's message store as a table, read-only.
// Useful while the relay is running: BypassLockGuard lets it open the
// database under another process's lock.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"quantum-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "/tmp/quantum-relay/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Timestamp", "Sender", "Type", "Text", "Delivered", "Read"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
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

			// Skip the id index entries, they hold keys and not messages
			if strings.HasPrefix(string(item.Key()), "msgidx:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var message domain.Message
				if err := json.Unmarshal(v, &message); err != nil {
					// Log the error and keep scanning instead of stopping
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				text := message.Content.Text
				if message.Type != domain.MessageText {
					text = fmt.Sprintf("<%s %s>", message.Type, message.Content.MimeType)
				}
				if len(text) > 48 {
					text = text[:48] + "…"
				}

				table.Append([]string{
					string(message.Room),
					message.CreatedAt.Format("15:04:05"),
					message.SenderID,
					string(message.Type),
					text,
					fmt.Sprintf("%d", len(message.DeliveredTo)),
					fmt.Sprintf("%d", len(message.ReadBy)),
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
