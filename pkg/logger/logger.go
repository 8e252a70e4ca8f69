package logger

import (
	"log"
	"os"
)

// Logger defaults to stderr so packages can log before Init runs (tests).
var Logger = log.New(os.Stderr, "", log.LstdFlags)

func Init() {
	logFile, err := os.OpenFile("postfetcher.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}
	Logger = log.New(logFile, "", log.LstdFlags)
	// Also log to stdout
	log.SetOutput(os.Stdout)
}
