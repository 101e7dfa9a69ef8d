package main

import (
	"paperboy/cmd/handlers"
	"paperboy/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
