// Command vidstream runs the API server and its database maintenance tasks.
//
//	vidstream serve
//	vidstream migrate [up|status]
//	vidstream seed dev
package main

import (
	"context"
	"log"
	"os"

	"github.com/vidstream/backend/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
