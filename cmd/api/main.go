package main

import (
	"context"
	"log"

	"github.com/commercekit/orderflow/internal/app/api"
)

func main() {
	if err := api.Run(context.Background()); err != nil {
		log.Fatalf("api exited: %v", err)
	}
}
