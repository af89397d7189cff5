package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/beachmarket/concurso-api/process/report"
)

func main() {
	month := flag.String("month", "2025-10", "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching rows")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}

	report.RunReport(*month, *list)
}
