package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rafaelq/licita-radar/internal/db"
	"github.com/rafaelq/licita-radar/internal/pncp"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT c.name, l.status, l.results_count, l.params, COALESCE(l.error_message, ''), l.created_at
		FROM search_logs l
		JOIN search_configurations c ON c.id = l.search_configuration_id
		ORDER BY l.created_at DESC LIMIT 20`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Profile", "Status", "New Tenders", "Modalidades", "Error", "Ran At"})

	for rows.Next() {
		var name, status, errMsg string
		var count int
		var params []byte
		var createdAt time.Time

		if err := rows.Scan(&name, &status, &count, &params, &errMsg, &createdAt); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		t.AppendRow(table.Row{name, status, count, modalidadeNames(params), errMsg, createdAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}

// modalidadeNames renders the modality codes of a run's params snapshot
// as display names.
func modalidadeNames(params []byte) string {
	var p struct {
		Modalidades []int `json:"modalidades"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p.Modalidades) == 0 {
		return ""
	}
	names := make([]string, 0, len(p.Modalidades))
	for _, code := range p.Modalidades {
		if name := pncp.ModalidadeNome(code); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 3 {
		names = append(names[:3], "...")
	}
	return strings.Join(names, ", ")
}
