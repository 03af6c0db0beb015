// Command deliveryreport prints delivery success rates per tenant from the
// bot_deliveries table.
//
//	go run ./scripts/deliveryreport -dsn "root:root@tcp(127.0.0.1:3306)/bot?parseTime=true" -since 24h
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("BOT_REPORT_DSN"), "MySQL DSN of the bot database")
	since := flag.Duration("since", 24*time.Hour, "report window")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn or BOT_REPORT_DSN is required")
	}

	db, err := sql.Open("mysql", *dsn)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	rows, err := db.Query(`
		SELECT tenant_id,
		       COUNT(*),
		       SUM(CASE WHEN success THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status_code = 401 THEN 1 ELSE 0 END),
		       COALESCE(AVG(duration_ms), 0)
		FROM bot_deliveries
		WHERE created_at >= ?
		GROUP BY tenant_id
		ORDER BY COUNT(*) DESC`, time.Now().Add(-*since))
	if err != nil {
		log.Fatal("Failed to query deliveries:", err)
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tTOTAL\tDELIVERED\tUNAUTHORIZED\tAVG MS")
	for rows.Next() {
		var (
			tenant                         string
			total, delivered, unauthorized int
			avgMs                          float64
		)
		if err := rows.Scan(&tenant, &total, &delivered, &unauthorized, &avgMs); err != nil {
			log.Fatal("Failed to scan row:", err)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f\n", tenant, total, delivered, unauthorized, avgMs)
	}
	if err := rows.Err(); err != nil {
		log.Fatal("Failed to read deliveries:", err)
	}
	w.Flush()
}
