package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"voice-agent-server/internal/callctl"

	"github.com/joho/godotenv"
)

const defaultServerURL = "http://localhost:8765"

func main() {
	// env.local is optional for the CLI, SERVER_URL may come from it
	_ = godotenv.Load("env.local")

	urlFlag := flag.String("u", "", "URL of the voice agent server")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-u server-url] <phone-number>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	serverURL := *urlFlag
	if serverURL == "" {
		serverURL = os.Getenv("SERVER_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	callUUID, err := callctl.New(serverURL).MakeCall(ctx, flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initiate call: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Call initiated successfully! Call UUID: %s\n", callUUID)
}
